package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/minocc/internal/adapters/source"
	"github.com/okian/minocc/internal/adapters/sqldb"
	"github.com/okian/minocc/internal/domain/model"
)

var key = model.Key{Session: "i140703-001", Epoch: "movement", TrialType: "PGHF"}

func counts() model.Counts {
	return model.Counts{PerNeuron: []int{0, 200, 200, 400, 600}, Duration: 100 * time.Second}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := source.NewMemory()

	_, err := m.Counts(ctx, key)
	assert.ErrorIs(t, err, source.ErrNotFound)

	c := counts()
	m.Put(key, c)
	c.PerNeuron[0] = 99

	got, err := m.Counts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, counts(), got)

	keys, err := m.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{key}, keys)
	assert.NoError(t, m.Close())
}

func TestDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, source.WriteFile(root, key, counts()))
	assert.FileExists(t, filepath.Join(root, "i140703-001", "counts_movement_PGHF.yaml"))

	d, err := source.NewDir(root)
	require.NoError(t, err)

	got, err := d.Counts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, counts(), got)

	_, err = d.Counts(ctx, model.Key{Session: "other", Epoch: "start", TrialType: "PGLF"})
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestDirReadsHandWrittenFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "s1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counts_start_PGLF.yaml"),
		[]byte("duration: 2m30s\ncounts: [3, 0, 12]\n"), 0o644))

	d, err := source.NewDir(root)
	require.NoError(t, err)
	got, err := d.Counts(context.Background(), model.Key{Session: "s1", Epoch: "start", TrialType: "PGLF"})
	require.NoError(t, err)
	assert.Equal(t, 150*time.Second, got.Duration)
	assert.Equal(t, []int{3, 0, 12}, got.PerNeuron)
}

func TestDirReadsCompressedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, source.WriteCompressedFile(root, key, counts()))
	assert.FileExists(t, source.FilePath(root, key)+".xz")
	assert.NoFileExists(t, source.FilePath(root, key))

	d, err := source.NewDir(root)
	require.NoError(t, err)
	got, err := d.Counts(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, counts(), got)
}

func TestDirDiscover(t *testing.T) {
	root := t.TempDir()
	keys := []model.Key{
		{Session: "s2", Epoch: "start", TrialType: "PGLF"},
		{Session: "s1", Epoch: "late_delay", TrialType: "SGHF"},
		{Session: "s1", Epoch: "cue1", TrialType: "PGHF"},
	}
	require.NoError(t, source.WriteFile(root, keys[0], counts()))
	require.NoError(t, source.WriteCompressedFile(root, keys[1], counts()))
	require.NoError(t, source.WriteFile(root, keys[2], counts()))
	require.NoError(t, source.WriteCompressedFile(root, keys[2], counts()))
	require.NoError(t, os.WriteFile(filepath.Join(root, "s1", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "s1", "counts_nolabel.yaml"), []byte("x"), 0o644))

	d, err := source.NewDir(root)
	require.NoError(t, err)
	got, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Key{keys[2], keys[1], keys[0]}, got)
}

func TestWriteFileRejectsAmbiguousKeys(t *testing.T) {
	root := t.TempDir()
	bad := model.Key{Session: "s1", Epoch: "start", TrialType: "PG_HF"}

	assert.ErrorIs(t, source.WriteFile(root, bad, counts()), source.ErrUnnamableKey)
	assert.ErrorIs(t, source.WriteCompressedFile(root, bad, counts()), source.ErrUnnamableKey)
	assert.NoFileExists(t, source.FilePath(root, bad))

	d, err := source.NewDir(root)
	require.NoError(t, err)
	keys, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNewDirRejectsFiles(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := source.NewDir(f)
	assert.Error(t, err)
}

func TestSQL(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "counts.db"))
	require.NoError(t, err)
	s := source.NewSQL(db, source.WithOwnedDB())
	defer s.Close()

	_, err = s.Counts(ctx, key)
	assert.ErrorIs(t, err, source.ErrNotFound)

	require.NoError(t, s.Put(ctx, key, model.Counts{PerNeuron: []int{1, 2}, Duration: time.Second}))
	require.NoError(t, s.Put(ctx, key, counts()))

	got, err := s.Counts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, counts(), got)

	keys, err := s.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{key}, keys)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	src, err := source.Open(ctx, source.Spec{Kind: source.KindMemory})
	require.NoError(t, err)
	_, err = src.Counts(ctx, key)
	assert.ErrorIs(t, err, source.ErrNotFound)

	root := t.TempDir()
	require.NoError(t, source.WriteFile(root, key, counts()))
	src, err = source.Open(ctx, source.Spec{Kind: source.KindDir, Path: root})
	require.NoError(t, err)
	got, err := src.Counts(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, counts(), got)

	keys, err := source.Discover(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{key}, keys)

	src, err = source.Open(ctx, source.Spec{Kind: source.KindSQL, Driver: sqldb.DriverSQLite, DSN: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.NoError(t, src.Close())

	_, err = source.Open(ctx, source.Spec{Kind: "npy"})
	assert.ErrorIs(t, err, source.ErrUnknownKind)
}

type countsOnly struct{ source.Source }

func TestDiscoverUnsupported(t *testing.T) {
	_, err := source.Discover(context.Background(), countsOnly{source.NewMemory()})
	assert.ErrorIs(t, err, source.ErrNotDiscoverable)
}
