package core

import (
	"encoding/json"
	"strconv"
	"time"
)

// BBox is the bounding region of a detection in frame coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one detected object within one camera frame.
// All four fields are required.
type Detection struct {
	Label      string  `json:"label"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	UTC        string  `json:"utc"`
}

// RawDetection is a detection as it arrives on the wire. Pointer fields let
// validation tell an absent field apart from a zero value.
type RawDetection struct {
	Label      *string  `json:"label"`
	BBox       *RawBBox `json:"bbox"`
	Confidence *float64 `json:"confidence"`
	UTC        *string  `json:"utc"`
}

// RawBBox is the wire form of BBox.
type RawBBox struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// FrameMessage is a single transport message: every detection captured in
// one camera frame.
type FrameMessage struct {
	Frame FrameID `json:"frame"`
	// Detections are kept undecoded so one bad element does not reject its
	// siblings. See DecodeDetection.
	Detections []json.RawMessage `json:"detections"`
}

// FrameID identifies a frame. Devices send either a string or a number;
// both are kept as text.
type FrameID string

// UnmarshalJSON accepts a JSON string, number or null.
func (f *FrameID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FrameID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FrameID(n.String())
	return nil
}

// String returns the frame id, or "N/A" when the message carried none.
func (f FrameID) String() string {
	if f == "" {
		return "N/A"
	}
	return string(f)
}

// Metadata is the flat, filterable description stored next to each vector.
type Metadata struct {
	Label      string            `json:"label"`
	BBox       string            `json:"bbox"` // canonical JSON encoding of BBox
	Confidence float64           `json:"confidence"`
	UTC        string            `json:"utc"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Get returns the string form of a metadata key. Extra keys are consulted
// after the four detection fields.
func (m Metadata) Get(key string) (string, bool) {
	switch key {
	case "label":
		return m.Label, true
	case "bbox":
		return m.BBox, true
	case "confidence":
		return strconv.FormatFloat(m.Confidence, 'f', -1, 64), true
	case "utc":
		return m.UTC, true
	}
	v, ok := m.Extra[key]
	return v, ok
}

// Entry is the unit of storage in a vector index collection.
type Entry struct {
	ID         string
	Collection string
	Seq        uint64 // insertion order within the index
	Embedding  []float32
	Metadata   Metadata
	Document   string // the original detection serialized as JSON
	InsertedAt time.Time
}

// Collection describes a named partition of entries.
type Collection struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"` // fixed by the first write
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryResult is an entry returned by a similarity query.
// Distance is the cosine distance to the query vector; lower is closer.
type QueryResult struct {
	Entry    *Entry
	Distance float32
}

// Checkpoint records how far a maintenance job got through a collection.
type Checkpoint struct {
	Job        string
	Collection string
	LastSeq    uint64
	UpdatedAt  time.Time
}
