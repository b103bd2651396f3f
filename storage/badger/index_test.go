package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, backend, err := NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() {
		index.Close()
		backend.Close()
	})
	return index
}

func testEntry(label string, vec ...float32) *core.Entry {
	d := &core.Detection{
		Label:      label,
		BBox:       core.BBox{X: 1, Y: 2, Width: 3, Height: 4},
		Confidence: 0.9,
		UTC:        "2025-03-01T10:00:00Z",
	}
	n, _ := core.Normalize(d, "1")
	return &core.Entry{Embedding: vec, Metadata: n.Metadata, Document: n.Document}
}

func TestAdd_AssignsIDSeqAndCreatesCollection(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	stored, err := index.Add(ctx, "bifrost_data", testEntry("person", 1, 0, 0))
	require.NoError(t, err)

	_, err = uuid.Parse(stored.ID)
	assert.NoError(t, err, "generated id is a uuid")
	assert.NotZero(t, stored.Seq)
	assert.False(t, stored.InsertedAt.IsZero())
	assert.Equal(t, "bifrost_data", stored.Collection)

	col, err := index.GetCollection(ctx, "bifrost_data")
	require.NoError(t, err)
	assert.Equal(t, 3, col.Dimension)
	assert.Equal(t, 1, col.Count)
}

func TestAdd_RoundTrip(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	in := testEntry("car", 0.5, 0.25, -1)
	in.ID = "fixed-id"
	_, err := index.Add(ctx, "c", in)
	require.NoError(t, err)

	got, err := index.Get(ctx, "c", "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, in.Embedding, got.Embedding)
	assert.Equal(t, in.Metadata, got.Metadata)
	assert.Equal(t, in.Document, got.Document)

	bbox, err := core.DecodeBBox(got.Metadata.BBox)
	require.NoError(t, err)
	assert.Equal(t, core.BBox{X: 1, Y: 2, Width: 3, Height: 4}, bbox)
}

func TestAdd_Errors(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.Add(ctx, "c", testEntry("a", 1, 2))
	require.NoError(t, err)

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := index.Add(ctx, "c", testEntry("b", 1, 2, 3))
		assert.True(t, errors.Is(err, core.ErrIndex))
		assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
	})

	t.Run("duplicate id", func(t *testing.T) {
		e := testEntry("b", 1, 2)
		e.ID = "dup"
		_, err := index.Add(ctx, "c", e)
		require.NoError(t, err)
		_, err = index.Add(ctx, "c", e)
		assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
	})

	t.Run("empty embedding", func(t *testing.T) {
		_, err := index.Add(ctx, "c", testEntry("b"))
		assert.True(t, errors.Is(err, core.ErrIndex))
	})

	t.Run("invalid collection", func(t *testing.T) {
		_, err := index.Add(ctx, "", testEntry("b", 1, 2))
		assert.True(t, errors.Is(err, storage.ErrInvalidCollection))
	})

	count, err := index.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "failed adds leave no partial state")
}

func TestQuery_OrdersByDistance(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for _, e := range []*core.Entry{
		testEntry("far", 0, 1),
		testEntry("near", 1, 0.1),
		testEntry("exact", 2, 0),
	} {
		_, err := index.Add(ctx, "c", e)
		require.NoError(t, err)
	}

	results, err := index.Query(ctx, "c", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].Entry.Metadata.Label)
	assert.Equal(t, "near", results[1].Entry.Metadata.Label)
	assert.Equal(t, "far", results[2].Entry.Metadata.Label)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)

	limited, err := index.Query(ctx, "c", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := index.Add(ctx, "c", testEntry(fmt.Sprintf("e%d", i), 1, 1))
		require.NoError(t, err)
	}

	results, err := index.Query(ctx, "c", []float32{1, 1}, 100)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("e%d", i), r.Entry.Metadata.Label)
	}
}

func TestQuery_Edges(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	results, err := index.Query(ctx, "missing", []float32{1}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = index.Add(ctx, "c", testEntry("a", 1, 0))
	require.NoError(t, err)

	_, err = index.Query(ctx, "c", []float32{1, 0, 0}, 10)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))

	_, err = index.Query(ctx, "c", []float32{1, 0}, 0)
	assert.True(t, errors.Is(err, storage.ErrInvalidQuery))

	_, err = index.Query(ctx, "c", nil, 10)
	assert.True(t, errors.Is(err, storage.ErrInvalidQuery))

	zero, err := index.Query(ctx, "c", []float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, zero, 1)
	assert.Equal(t, float32(1), zero[0].Distance)
}

func TestGetAll_InsertionOrder(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	all, err := index.GetAll(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, all)

	for i := 0; i < 300; i++ {
		_, err := index.Add(ctx, "c", testEntry(fmt.Sprintf("e%d", i), float32(i), 1))
		require.NoError(t, err)
	}
	_, err = index.Add(ctx, "c2", testEntry("other", 1, 1))
	require.NoError(t, err)

	all, err = index.GetAll(ctx, "c")
	require.NoError(t, err)
	require.Len(t, all, 300)
	for i, e := range all {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.Metadata.Label)
		if i > 0 {
			assert.Greater(t, e.Seq, all[i-1].Seq)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	index := newTestIndex(t)

	_, err := index.Get(context.Background(), "c", "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestFilter_FullScan(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	labels := []string{"person", "car", "person", "dog", "person"}
	for _, l := range labels {
		_, err := index.Add(ctx, "c", testEntry(l, 1, 0))
		require.NoError(t, err)
	}

	people, err := index.Filter(ctx, "c", map[string]string{"label": "person"})
	require.NoError(t, err)
	assert.Len(t, people, 3)

	byTwo, err := index.Filter(ctx, "c", map[string]string{"label": "person", "confidence": "0.9"})
	require.NoError(t, err)
	assert.Len(t, byTwo, 3)

	byFrame, err := index.Filter(ctx, "c", map[string]string{"frame": "1"})
	require.NoError(t, err)
	assert.Len(t, byFrame, 5)

	none, err := index.Filter(ctx, "c", map[string]string{"label": "person", "utc": "never"})
	require.NoError(t, err)
	assert.Empty(t, none)

	unknownKey, err := index.Filter(ctx, "c", map[string]string{"Detection": "x"})
	require.NoError(t, err)
	assert.Empty(t, unknownKey)

	all, err := index.Filter(ctx, "c", map[string]string{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestScan_Pages(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := index.Add(ctx, "c", testEntry(fmt.Sprintf("e%d", i), 1, 0))
		require.NoError(t, err)
	}

	var seen []string
	var after uint64
	for {
		page, err := index.Scan(ctx, "c", after, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 3)
		for _, e := range page {
			seen = append(seen, e.Metadata.Label)
		}
		after = page[len(page)-1].Seq
	}
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6"}, seen)
}

func TestListCollections(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	cols, err := index.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)

	for _, name := range []string{"pi5_camera_1", "bifrost_data", "bifrost_data"} {
		_, err := index.Add(ctx, name, testEntry("a", 1))
		require.NoError(t, err)
	}

	cols, err = index.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "bifrost_data", cols[0].Name)
	assert.Equal(t, 2, cols[0].Count)
	assert.Equal(t, "pi5_camera_1", cols[1].Name)
	assert.Equal(t, 1, cols[1].Count)

	_, err = index.GetCollection(ctx, "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	count, err := index.Count(ctx, "nope")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReplaceEmbeddings(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	a, err := index.Add(ctx, "c", testEntry("a", 1, 0))
	require.NoError(t, err)
	b, err := index.Add(ctx, "c", testEntry("b", 0, 1))
	require.NoError(t, err)

	a.Embedding = []float32{1, 0, 0}
	require.NoError(t, index.ReplaceEmbeddings(ctx, "c", []*core.Entry{a}, 3))

	col, err := index.GetCollection(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, col.Dimension)

	// b still has the old dimension and is skipped until replaced
	results, err := index.Query(ctx, "c", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].Entry.ID)

	b.Embedding = []float32{0, 1, 0}
	require.NoError(t, index.ReplaceEmbeddings(ctx, "c", []*core.Entry{b}, 3))
	results, err = index.Query(ctx, "c", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	got, err := index.Get(ctx, "c", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Metadata, got.Metadata, "metadata is untouched")

	_, err = index.Add(ctx, "c", testEntry("new", 1, 1, 1))
	assert.NoError(t, err, "new writes follow the new dimension")

	err = index.ReplaceEmbeddings(ctx, "c", []*core.Entry{{ID: "ghost", Embedding: []float32{1, 1, 1}}}, 3)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = index.ReplaceEmbeddings(ctx, "c", []*core.Entry{{ID: a.ID, Embedding: []float32{1}}}, 3)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
}

func TestAdd_Concurrent(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := index.Add(ctx, fmt.Sprintf("col%d", i%4), testEntry("x", 1, 0))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{name: "identical vectors", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 0},
		{name: "scaled vectors", a: []float32{1, 2}, b: []float32{2, 4}, expected: 0},
		{name: "orthogonal vectors", a: []float32{1, 0}, b: []float32{0, 1}, expected: 1},
		{name: "opposite vectors", a: []float32{1, 0}, b: []float32{-1, 0}, expected: 2},
		{name: "general case", a: []float32{0.6, 0.8}, b: []float32{0.8, 0.6}, expected: 0.04},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineDistance(tt.a, norm(tt.a), tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}
