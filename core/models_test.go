package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FrameID
		wantErr bool
	}{
		{name: "string", input: `"frame-7"`, want: "frame-7"},
		{name: "integer", input: `42`, want: "42"},
		{name: "float", input: `1.5`, want: "1.5"},
		{name: "null", input: `null`, want: ""},
		{name: "object", input: `{"a":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FrameID
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestFrameID_String(t *testing.T) {
	assert.Equal(t, "N/A", FrameID("").String())
	assert.Equal(t, "12", FrameID("12").String())
}

func TestMetadataGet(t *testing.T) {
	meta := Metadata{
		Label:      "person",
		BBox:       `{"x":1,"y":2,"width":3,"height":4}`,
		Confidence: 0.5,
		UTC:        "2025-01-01T00:00:00Z",
		Extra:      map[string]string{"frame": "9"},
	}

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{key: "label", want: "person", wantOK: true},
		{key: "bbox", want: `{"x":1,"y":2,"width":3,"height":4}`, wantOK: true},
		{key: "confidence", want: "0.5", wantOK: true},
		{key: "utc", want: "2025-01-01T00:00:00Z", wantOK: true},
		{key: "frame", want: "9", wantOK: true},
		{key: "Detection", want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := meta.Get(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
