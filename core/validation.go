// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ParseFrame decodes a transport payload into a FrameMessage.
//
// The payload must be a JSON object. A missing detections array yields a
// frame with no detections. Individual detections are not decoded here;
// see DecodeDetection.
func ParseFrame(payload []byte) (*FrameMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %w: payload is not a JSON object", ErrValidation, ErrMalformedFrame)
	}

	var msg FrameMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrValidation, ErrMalformedFrame, err)
	}
	return &msg, nil
}

// DecodeDetection decodes and validates one element of a frame's
// detections array.
func DecodeDetection(data json.RawMessage) (*Detection, error) {
	var raw RawDetection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return ValidateDetection(&raw)
}

// ValidateDetection checks that a raw detection carries every required field
// and converts it to a Detection.
//
// Validation rules:
//   - label must be present and non-empty
//   - bbox must be present with all four coordinates
//   - confidence must be present and within [0, 1]
//   - utc must be present and non-empty
func ValidateDetection(raw *RawDetection) (*Detection, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: detection is nil", ErrValidation)
	}
	if raw.Label == nil || *raw.Label == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrMissingLabel)
	}
	bbox, err := validateBBox(raw.BBox)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrMissingConfidence)
	}
	if c := *raw.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
		return nil, fmt.Errorf("%w: %w: %v", ErrValidation, ErrInvalidConfidence, c)
	}
	if raw.UTC == nil || *raw.UTC == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrMissingUTC)
	}

	return &Detection{
		Label:      *raw.Label,
		BBox:       bbox,
		Confidence: *raw.Confidence,
		UTC:        *raw.UTC,
	}, nil
}

func validateBBox(raw *RawBBox) (BBox, error) {
	if raw == nil || raw.X == nil || raw.Y == nil || raw.Width == nil || raw.Height == nil {
		return BBox{}, ErrMissingBBox
	}
	return BBox{X: *raw.X, Y: *raw.Y, Width: *raw.Width, Height: *raw.Height}, nil
}
