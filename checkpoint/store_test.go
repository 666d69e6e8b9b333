package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	older := boundaryCheckpoint()
	older.Slot = "older"
	older.SavedAt = savedAt.Add(-time.Hour)
	newer := boundaryCheckpoint()
	newer.Slot = "newer"

	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	got, err := s.Load(ctx, "newer")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "newer", infos[0].Slot)
	assert.Equal(t, "older", infos[1].Slot)
	assert.Equal(t, 2, infos[0].Characters)
	assert.Equal(t, savedAt, infos[0].SavedAt)

	replaced := boundaryCheckpoint()
	replaced.Slot = "older"
	replaced.ID = "replacement"
	replaced.SavedAt = savedAt.Add(time.Hour)
	replaced.Snapshots = replaced.Snapshots[:1]
	require.NoError(t, s.Save(ctx, replaced))

	got, err = s.Load(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, replaced, got)

	infos, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "older", infos[0].Slot)
	assert.Equal(t, 1, infos[0].Characters)

	invalid := boundaryCheckpoint()
	invalid.Slot = "older"
	invalid.Snapshots[0].RelationshipScore = -1
	err = s.Save(ctx, invalid)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "not saved, state unchanged")

	got, err = s.Load(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, replaced, got)

	require.NoError(t, s.Delete(ctx, "older"))
	assert.ErrorIs(t, s.Delete(ctx, "older"), ErrNotFound)
	infos, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestYAMLStore(t *testing.T) {
	storeContract(t, NewYAMLStore(t.TempDir()))
}

func TestYAMLStore_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewYAMLStore(dir)
	require.NoError(t, s.Save(context.Background(), boundaryCheckpoint()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoints", "broken.yaml"), []byte("snapshots: ["), 0o644))

	infos, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "slot-1", infos[0].Slot)

	entries, err := os.ReadDir(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestYAMLStore_Export(t *testing.T) {
	s := NewYAMLStore(t.TempDir())
	out := t.TempDir()

	cp := boundaryCheckpoint()
	cp.Slot = "my-save"
	path, err := s.Export(cp, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "my-save_20240601_183015.yaml"), path)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kizuna.db"))
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}
