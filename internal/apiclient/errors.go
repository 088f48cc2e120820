package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFetchFailed snapshot GET 失败
	ErrFetchFailed = errors.New("fetch failed")
	// ErrMutationRejected 写操作被服务端拒绝（非 2xx）
	ErrMutationRejected = errors.New("mutation rejected")
	// ErrParseFailure 响应不是预期的结构
	ErrParseFailure = errors.New("parse failure")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoCredential = errors.New("no credential")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Status)
}

// Is maps the status onto the package sentinels so callers can use errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrFetchFailed:
		return e.Method == http.MethodGet
	case ErrMutationRejected:
		return e.Method != http.MethodGet
	}
	return false
}
