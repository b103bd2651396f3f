// Package api serves the detection collections, the subscriber lifecycle
// and question answering over HTTP.
//
// Routes:
//
//	GET  /collection                 detections of the aggregate collection grouped by label
//	GET  /collections                every entry id and label across all collections
//	GET  /collections/{label}/stats  count, first and last detection for a label
//	POST /mqtt/start                 start the subscriber
//	POST /mqtt/stop                  stop the subscriber
//	GET  /mqtt/status                subscriber state
//	POST /query                      answer a question from stored detections
//	POST /query/metadata             list detections matching exact metadata values
//	GET  /ingestion/stats            ingestion pipeline counters
//	GET  /healthz                    liveness
package api
