// Package reembed rebuilds the embeddings of stored detections with the
// currently configured embedding model.
//
// Entries are read in insertion order in batches, their embedding text is
// rebuilt from the stored detection document, and the new vectors replace
// the old ones together with the collection dimension. Progress is saved as
// a checkpoint after every batch so an interrupted run resumes where it
// stopped. Running reembed is the remedy for an embedding dimension
// mismatch reported at startup.
package reembed
