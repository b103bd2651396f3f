// Package ingestion turns frame messages into stored detection vectors.
//
// A Pipeline accepts raw transport payloads through Enqueue, buffers them in
// a bounded queue and hands them one at a time to a worker pool. Each
// message is parsed, and every detection it carries is normalized, embedded
// and added to the vector index:
//
//	Received -> Parsed -> {Normalized -> Embedded -> Stored}* -> Done
//
// A detection that fails any step is logged with its error kind and skipped;
// the remaining detections of the same frame are still processed. Ingest
// runs the same state machine synchronously for callers that want the
// outcome, such as the command line seeder.
package ingestion
