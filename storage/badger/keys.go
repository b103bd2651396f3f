package badger

import (
	"fmt"

	"github.com/poiesic/bifrost/storage"
)

// Key prefixes for different data types
const (
	collectionPrefix = "col:"
	entryPrefix      = "ent:"
	entryIDPrefix    = "eid:"
	checkpointPrefix = "chk:"
	entrySeq         = "entseq"
)

// keySep ends a collection name inside composite keys. Collection names
// may not contain it, so one collection's prefix never matches another's.
const keySep = 0x00

// makeCollectionKey generates the key holding a collection descriptor.
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + name)
}

// makeEntryPrefix generates the prefix shared by every entry of a collection.
// Format: prefix:collection\x00
func makeEntryPrefix(collection string) []byte {
	buf := make([]byte, 0, len(entryPrefix)+len(collection)+1)
	buf = append(buf, entryPrefix...)
	buf = append(buf, collection...)
	return append(buf, keySep)
}

// makeEntryKey generates a composite key for an entry.
// Format: prefix:collection\x00seq
// The sequence is written BigEndian so iteration follows insertion order.
func makeEntryKey(collection string, seq uint64) []byte {
	return append(makeEntryPrefix(collection), storage.MarshalSeq(seq)...)
}

// makeEntryIDKey generates the key mapping an entry ID to its sequence.
// Format: prefix:collection\x00id
func makeEntryIDKey(collection, id string) []byte {
	buf := make([]byte, 0, len(entryIDPrefix)+len(collection)+1+len(id))
	buf = append(buf, entryIDPrefix...)
	buf = append(buf, collection...)
	buf = append(buf, keySep)
	return append(buf, id...)
}

// makeCheckpointKey generates a key for job checkpoints.
// Format: prefix:job\x00collection
func makeCheckpointKey(job, collection string) []byte {
	return []byte(fmt.Sprintf("%s%s%c%s", checkpointPrefix, job, keySep, collection))
}
