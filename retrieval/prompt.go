package retrieval

import (
	"fmt"
	"strings"

	"github.com/poiesic/bifrost/core"
)

// Fixed context and answer strings.
const (
	NoRelevantData       = "No relevant data found."
	NoMatchingMetadata   = "No matching metadata entries found."
	EmbeddingFailed      = "Error: Failed to generate a valid embedding for the question."
	NoResponse           = "No response from Ollama."
	queryFailedFormat    = "Error during vector query: %s"
	metadataFailedFormat = "Error querying metadata: %s"
	generateFailedFormat = "Error: %s"
)

// SystemPrompt describes the detection schema to the answer generator.
const SystemPrompt = "You are an AI assistant that answers questions about object detection results. " +
	"The input data is a list of detections in JSON format. " +
	"Each detection includes:\n" +
	"- a 'label' describing the detected object,\n" +
	"- a 'bbox' (bounding box) with 'x', 'y', 'width', and 'height' coordinates,\n" +
	"- a 'confidence' score indicating the certainty of the classification,\n" +
	"- and a 'utc' timestamp.\n\n" +
	"Use this context to provide accurate and insightful answers."

// UserPrompt embeds the retrieved context and the question, bounding the
// answer to maxWords words.
func UserPrompt(context, question string, maxWords int) string {
	return fmt.Sprintf("Context data:\n%s\n\n"+
		"Based on the above detection data, answer the following question with maximum of %d words:\n"+
		"%s\n\n"+
		"Answer:", context, maxWords, question)
}

// FormatDetection renders one context line. Rank starts at 1.
func FormatDetection(rank int, meta core.Metadata) string {
	label := meta.Label
	if label == "" {
		label = "unknown"
	}
	bbox := meta.BBox
	if bbox == "" {
		bbox = "{}"
	}
	utc := meta.UTC
	if utc == "" {
		utc = "unknown"
	}
	return fmt.Sprintf("Detection %d: label=%s, confidence=%.3f, bbox=%s, timestamp=%s",
		rank, label, meta.Confidence, bbox, utc)
}

// FormatContext renders entries as newline separated context lines in the
// given order. An empty slice yields empty, which the caller substitutes.
func FormatContext(entries []*core.Entry, empty string) string {
	if len(entries) == 0 {
		return empty
	}
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = FormatDetection(i+1, entry.Metadata)
	}
	return strings.Join(lines, "\n")
}
