package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FrameMetadataKey is the Extra metadata key holding the parent frame id.
const FrameMetadataKey = "frame"

// Normalized is a detection prepared for embedding and storage.
type Normalized struct {
	// Text is the deterministic string that gets embedded.
	Text     string
	Metadata Metadata
	// Document is the detection serialized as JSON.
	Document string
}

// Normalize converts a validated detection into its embedding text,
// flat metadata and stored document. Equal detections always produce
// identical output.
func Normalize(d *Detection, frame FrameID) (*Normalized, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: detection is nil", ErrValidation)
	}

	bbox := CanonicalBBox(d.BBox)
	doc, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	meta := Metadata{
		Label:      d.Label,
		BBox:       bbox,
		Confidence: d.Confidence,
		UTC:        d.UTC,
	}
	if frame != "" {
		meta.Extra = map[string]string{FrameMetadataKey: string(frame)}
	}

	return &Normalized{
		Text:     EmbeddingText(d),
		Metadata: meta,
		Document: string(doc),
	}, nil
}

// EmbeddingText renders the text that represents a detection in vector space.
// The format must stay stable: changing it changes every embedding.
func EmbeddingText(d *Detection) string {
	return fmt.Sprintf("Label: %s, BBox: %s, Confidence: %s, UTC: %s",
		d.Label,
		CanonicalBBox(d.BBox),
		strconv.FormatFloat(d.Confidence, 'f', -1, 64),
		d.UTC)
}

// CanonicalBBox encodes a bounding box as compact JSON with keys in
// x, y, width, height order.
func CanonicalBBox(b BBox) string {
	// Marshalling a struct of finite floats cannot fail.
	data, _ := json.Marshal(b)
	return string(data)
}

// DecodeBBox parses the canonical bbox encoding produced by CanonicalBBox.
func DecodeBBox(s string) (BBox, error) {
	var raw RawBBox
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return BBox{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	b, err := validateBBox(&raw)
	if err != nil {
		return BBox{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return b, nil
}
