package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Tags 问题标签。线上可能是 ["a","b"]，也可能是序列化后的字符串 "[\"a\",\"b\"]"，
// 解码时统一归一化为 []string。
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = compact(list)
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = ParseTags(raw)
	return nil
}

// ParseTags normalizes a stored tag string. A JSON list is decoded as-is;
// anything else is treated as comma separated.
func ParseTags(raw string) Tags {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tags{}
	}
	var list []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &list) == nil {
		return compact(list)
	}
	return compact(strings.Split(raw, ","))
}

func compact(in []string) Tags {
	out := make(Tags, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Has reports whether tag is present (exact match).
func (t Tags) Has(tag string) bool {
	for _, s := range t {
		if s == tag {
			return true
		}
	}
	return false
}

// Value stores tags as a JSON string column, which is why they can come back
// over the wire as a string.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Tags{}
	case string:
		*t = ParseTags(v)
	case []byte:
		*t = ParseTags(string(v))
	default:
		return fmt.Errorf("tags: unsupported scan type %T", src)
	}
	return nil
}
