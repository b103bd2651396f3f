package badger

import (
	"context"
	"testing"

	"github.com/poiesic/bifrost/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	repo := NewCheckpointRepository(backend)
	ctx := context.Background()

	cp, err := repo.LoadCheckpoint(ctx, "reembed", "bifrost_data")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Job: "reembed", Collection: "bifrost_data", LastSeq: 41}))
	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Job: "reembed", Collection: "pi5_camera_1", LastSeq: 3}))

	cp, err = repo.LoadCheckpoint(ctx, "reembed", "bifrost_data")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(41), cp.LastSeq)
	assert.False(t, cp.UpdatedAt.IsZero())

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Job: "reembed", Collection: "bifrost_data", LastSeq: 50}))
	cp, err = repo.LoadCheckpoint(ctx, "reembed", "bifrost_data")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cp.LastSeq)

	require.NoError(t, repo.DeleteCheckpoint(ctx, "reembed", "bifrost_data"))
	cp, err = repo.LoadCheckpoint(ctx, "reembed", "bifrost_data")
	require.NoError(t, err)
	assert.Nil(t, cp)

	cp, err = repo.LoadCheckpoint(ctx, "reembed", "pi5_camera_1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, uint64(3), cp.LastSeq)

	require.NoError(t, repo.DeleteCheckpoint(ctx, "missing", "nothing"))
}
