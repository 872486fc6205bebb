package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")

	s, err := Open(dir)
	require.NoError(t, err)

	run := NewRun(OpGenerate, "/data", types.Size)
	run.Manifest = "size.hasher"
	require.NoError(t, s.Record(run))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, types.Size, got.Kind)
}

func TestRecord_FillsDefaults(t *testing.T) {
	s := openTestStore(t)

	run := &Run{Operation: OpVerify, Root: "/data", Kind: types.Fingerprint}
	require.NoError(t, s.Record(run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.Time.IsZero())
	assert.Len(t, run.ShortID(), 8)
}

func TestList_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		run := NewRun(OpGenerate, "/data", types.Size)
		run.Time = base.Add(time.Duration(i) * time.Minute)
		run.Files = i
		require.NoError(t, s.Record(run))
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	for i, r := range runs {
		assert.Equal(t, 4-i, r.Files)
	}

	runs, err = s.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 4, runs[0].Files)
}

func TestGet(t *testing.T) {
	s := openTestStore(t)

	a := &Run{ID: "aaaa1111-0000-0000-0000-000000000000", Operation: OpGenerate, Kind: types.Size}
	b := &Run{ID: "aaaa2222-0000-0000-0000-000000000000", Operation: OpVerify, Kind: types.Size}
	require.NoError(t, s.Record(a))
	require.NoError(t, s.Record(b))

	got, err := s.Get("aaaa1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, OpVerify, got.Operation)

	_, err = s.Get("aaaa")
	assert.ErrorIs(t, err, ErrAmbiguousID)

	_, err = s.Get("ffff")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastGenerate(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LastGenerate("/data", "size.hasher")
	require.ErrorIs(t, err, ErrNotFound)

	first := NewRun(OpGenerate, "/data", types.Size)
	first.Manifest = "size.hasher"
	first.Checksum = 1
	require.NoError(t, s.Record(first))

	second := NewRun(OpGenerate, "/data", types.Size)
	second.Manifest = "size.hasher"
	second.Checksum = 2
	require.NoError(t, s.Record(second))

	verify := NewRun(OpVerify, "/data", types.Size)
	verify.Manifest = "size.hasher"
	verify.Checksum = 3
	require.NoError(t, s.Record(verify))

	other := NewRun(OpGenerate, "/other", types.Size)
	other.Manifest = "size.hasher"
	other.Checksum = 4
	require.NoError(t, s.Record(other))

	got, err := s.LastGenerate("/data", "size.hasher")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Checksum)

	_, err = s.LastGenerate("/data", "xxh3.hasher")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanup(t *testing.T) {
	s := openTestStore(t)

	old := NewRun(OpGenerate, "/data", types.Size)
	old.Manifest = "size.hasher"
	old.Time = time.Now().AddDate(0, 0, -40)
	require.NoError(t, s.Record(old))

	recent := NewRun(OpVerify, "/data", types.Size)
	recent.Manifest = "size.hasher"
	require.NoError(t, s.Record(recent))

	removed, err := s.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.Cleanup(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recent.ID, runs[0].ID)

	_, err = s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LastGenerate("/data", "size.hasher")
	assert.ErrorIs(t, err, ErrNotFound)
}
