package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsDecodeBothWireForms(t *testing.T) {
	cases := map[string]struct {
		in   string
		want Tags
	}{
		"list":          {`{"tags":["go","exams"]}`, Tags{"go", "exams"}},
		"encoded list":  {`{"tags":"[\"go\",\"exams\"]"}`, Tags{"go", "exams"}},
		"comma string":  {`{"tags":"go, exams,"}`, Tags{"go", "exams"}},
		"empty string":  {`{"tags":""}`, Tags{}},
		"null":          {`{"tags":null}`, Tags{}},
		"blank entries": {`{"tags":["", " go "]}`, Tags{"go"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var q Question
			require.NoError(t, json.Unmarshal([]byte(tc.in), &q))
			assert.Equal(t, tc.want, q.Tags)
		})
	}
}

func TestTagsRejectsNonStringShape(t *testing.T) {
	var q Question
	assert.Error(t, json.Unmarshal([]byte(`{"tags":42}`), &q))
}

func TestTagsValueScanRoundTrip(t *testing.T) {
	v, err := Tags{"physics", "lab"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["physics","lab"]`, v)

	var back Tags
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.True(t, back.Has("lab"))
	assert.False(t, back.Has("La"))
}
