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


package storage

import (
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/bifrost/core"
)

// Serializers for the persisted records. Fields are written in declaration
// order; changing the order or a field type changes the on-disk format.
var (
	EntryMUS      mus.Serializer[core.Entry]      = entryMUS{}
	CollectionMUS mus.Serializer[core.Collection] = collectionMUS{}
	CheckpointMUS mus.Serializer[core.Checkpoint] = checkpointMUS{}
)

// MarshalSeq encodes a sequence number so that byte order matches numeric order.
func MarshalSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// UnmarshalSeq decodes a sequence number written by MarshalSeq.
func UnmarshalSeq(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: sequence needs 8 bytes, got %d", ErrSerializationFailed, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// MarshalEntry serializes an Entry to bytes.
func MarshalEntry(entry *core.Entry) ([]byte, error) {
	return marshal(EntryMUS, *entry), nil
}

// UnmarshalEntry deserializes an Entry from bytes.
func UnmarshalEntry(data []byte) (*core.Entry, error) {
	return unmarshal(EntryMUS, data)
}

// MarshalCollection serializes a Collection to bytes.
func MarshalCollection(c *core.Collection) ([]byte, error) {
	return marshal(CollectionMUS, *c), nil
}

// UnmarshalCollection deserializes a Collection from bytes.
func UnmarshalCollection(data []byte) (*core.Collection, error) {
	return unmarshal(CollectionMUS, data)
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	return marshal(CheckpointMUS, *checkpoint), nil
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	return unmarshal(CheckpointMUS, data)
}

func marshal[T any](ser mus.Serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

func unmarshal[T any](ser mus.Serializer[T], data []byte) (*T, error) {
	v, n, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &v, nil
}

// reader threads the offset and first error through a sequence of field
// reads. After an error every read is a no-op returning the zero value.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) readString() (v string) {
	if r.err == nil {
		var n int
		v, n, r.err = ord.String.Unmarshal(r.bs[r.n:])
		r.n += n
	}
	return
}

func (r *reader) readUint64() (v uint64) {
	if r.err == nil {
		var n int
		v, n, r.err = varint.Uint64.Unmarshal(r.bs[r.n:])
		r.n += n
	}
	return
}

func (r *reader) readFloat64() (v float64) {
	if r.err == nil {
		var n int
		v, n, r.err = raw.Float64.Unmarshal(r.bs[r.n:])
		r.n += n
	}
	return
}

func (r *reader) readTime() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	sec, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.err = err
		return time.Time{}
	}
	r.n += n
	nsec, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.err = err
		return time.Time{}
	}
	r.n += n
	return time.Unix(sec, nsec).UTC()
}

func (r *reader) readEmbedding() []float32 {
	count := r.readUint64()
	if r.err != nil {
		return nil
	}
	width := raw.Float32.Size(0)
	if count > uint64((len(r.bs)-r.n)/width) {
		r.err = fmt.Errorf("embedding of %d values exceeds %d remaining bytes", count, len(r.bs)-r.n)
		return nil
	}
	v := make([]float32, count)
	for i := range v {
		var n int
		v[i], n, r.err = raw.Float32.Unmarshal(r.bs[r.n:])
		if r.err != nil {
			return nil
		}
		r.n += n
	}
	return v
}

func (r *reader) readExtra() map[string]string {
	count := r.readUint64()
	if r.err != nil || count == 0 {
		return nil
	}
	// Every pair takes at least two bytes.
	if count > uint64(len(r.bs)-r.n)/2 {
		r.err = fmt.Errorf("%d metadata pairs exceed %d remaining bytes", count, len(r.bs)-r.n)
		return nil
	}
	m := make(map[string]string, count)
	for range count {
		k := r.readString()
		v := r.readString()
		if r.err != nil {
			return nil
		}
		m[k] = v
	}
	return m
}

func (r *reader) skip() (int, error) {
	return r.n, r.err
}

func marshalString(v string, bs []byte) int { return ord.String.Marshal(v, bs) }

func marshalUint64(v uint64, bs []byte) int { return varint.Uint64.Marshal(v, bs) }

func marshalTime(t time.Time, bs []byte) int {
	n := varint.Int64.Marshal(t.Unix(), bs)
	return n + varint.Int64.Marshal(int64(t.Nanosecond()), bs[n:])
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.Unix()) + varint.Int64.Size(int64(t.Nanosecond()))
}

func marshalEmbedding(v []float32, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func sizeEmbedding(v []float32) int {
	return varint.Uint64.Size(uint64(len(v))) + len(v)*raw.Float32.Size(0)
}

// Extra keys are written sorted so equal metadata encodes to equal bytes.
func marshalExtra(m map[string]string, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(m)), bs)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func sizeExtra(m map[string]string) int {
	size := varint.Uint64.Size(uint64(len(m)))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

type entryMUS struct{}

func (entryMUS) Marshal(e core.Entry, bs []byte) (n int) {
	n = marshalString(e.ID, bs)
	n += marshalString(e.Collection, bs[n:])
	n += marshalUint64(e.Seq, bs[n:])
	n += marshalEmbedding(e.Embedding, bs[n:])
	n += marshalString(e.Metadata.Label, bs[n:])
	n += marshalString(e.Metadata.BBox, bs[n:])
	n += raw.Float64.Marshal(e.Metadata.Confidence, bs[n:])
	n += marshalString(e.Metadata.UTC, bs[n:])
	n += marshalExtra(e.Metadata.Extra, bs[n:])
	n += marshalString(e.Document, bs[n:])
	n += marshalTime(e.InsertedAt, bs[n:])
	return
}

func (entryMUS) read(r *reader) (e core.Entry) {
	e.ID = r.readString()
	e.Collection = r.readString()
	e.Seq = r.readUint64()
	e.Embedding = r.readEmbedding()
	e.Metadata.Label = r.readString()
	e.Metadata.BBox = r.readString()
	e.Metadata.Confidence = r.readFloat64()
	e.Metadata.UTC = r.readString()
	e.Metadata.Extra = r.readExtra()
	e.Document = r.readString()
	e.InsertedAt = r.readTime()
	return
}

func (s entryMUS) Unmarshal(bs []byte) (e core.Entry, n int, err error) {
	r := &reader{bs: bs}
	e = s.read(r)
	if r.err != nil {
		return core.Entry{}, r.n, r.err
	}
	return e, r.n, nil
}

func (entryMUS) Size(e core.Entry) (size int) {
	return ord.String.Size(e.ID) +
		ord.String.Size(e.Collection) +
		varint.Uint64.Size(e.Seq) +
		sizeEmbedding(e.Embedding) +
		ord.String.Size(e.Metadata.Label) +
		ord.String.Size(e.Metadata.BBox) +
		raw.Float64.Size(e.Metadata.Confidence) +
		ord.String.Size(e.Metadata.UTC) +
		sizeExtra(e.Metadata.Extra) +
		ord.String.Size(e.Document) +
		sizeTime(e.InsertedAt)
}

func (s entryMUS) Skip(bs []byte) (n int, err error) {
	r := &reader{bs: bs}
	s.read(r)
	return r.skip()
}

type collectionMUS struct{}

func (collectionMUS) Marshal(c core.Collection, bs []byte) (n int) {
	n = marshalString(c.Name, bs)
	n += marshalUint64(uint64(c.Dimension), bs[n:])
	n += marshalUint64(uint64(c.Count), bs[n:])
	n += marshalTime(c.CreatedAt, bs[n:])
	return
}

func (collectionMUS) read(r *reader) (c core.Collection) {
	c.Name = r.readString()
	c.Dimension = int(r.readUint64())
	c.Count = int(r.readUint64())
	c.CreatedAt = r.readTime()
	return
}

func (s collectionMUS) Unmarshal(bs []byte) (c core.Collection, n int, err error) {
	r := &reader{bs: bs}
	c = s.read(r)
	if r.err != nil {
		return core.Collection{}, r.n, r.err
	}
	return c, r.n, nil
}

func (collectionMUS) Size(c core.Collection) (size int) {
	return ord.String.Size(c.Name) +
		varint.Uint64.Size(uint64(c.Dimension)) +
		varint.Uint64.Size(uint64(c.Count)) +
		sizeTime(c.CreatedAt)
}

func (s collectionMUS) Skip(bs []byte) (n int, err error) {
	r := &reader{bs: bs}
	s.read(r)
	return r.skip()
}

type checkpointMUS struct{}

func (checkpointMUS) Marshal(c core.Checkpoint, bs []byte) (n int) {
	n = marshalString(c.Job, bs)
	n += marshalString(c.Collection, bs[n:])
	n += marshalUint64(c.LastSeq, bs[n:])
	n += marshalTime(c.UpdatedAt, bs[n:])
	return
}

func (checkpointMUS) read(r *reader) (c core.Checkpoint) {
	c.Job = r.readString()
	c.Collection = r.readString()
	c.LastSeq = r.readUint64()
	c.UpdatedAt = r.readTime()
	return
}

func (s checkpointMUS) Unmarshal(bs []byte) (c core.Checkpoint, n int, err error) {
	r := &reader{bs: bs}
	c = s.read(r)
	if r.err != nil {
		return core.Checkpoint{}, r.n, r.err
	}
	return c, r.n, nil
}

func (checkpointMUS) Size(c core.Checkpoint) (size int) {
	return ord.String.Size(c.Job) +
		ord.String.Size(c.Collection) +
		varint.Uint64.Size(c.LastSeq) +
		sizeTime(c.UpdatedAt)
}

func (s checkpointMUS) Skip(bs []byte) (n int, err error) {
	r := &reader{bs: bs}
	s.read(r)
	return r.skip()
}
