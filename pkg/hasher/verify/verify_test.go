package verify

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jamesainslie/hasher/pkg/hasher/metric"
	"github.com/jamesainslie/hasher/pkg/hasher/scanner"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generate builds a tree of a.txt ("abcd") and sub/b.txt (empty) and
// returns its root and the records for kind.
func generate(t *testing.T, kind types.Kind) (string, []types.Record) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abcd"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), nil, 0o644))

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	files, err := scanner.Enumerate(context.Background(), abs, nil)
	require.NoError(t, err)
	records, err := metric.Compute(context.Background(), kind, abs, files, metric.Options{})
	require.NoError(t, err)
	return abs, records
}

func TestVerify_Unchanged(t *testing.T) {
	t.Parallel()
	for _, kind := range types.MetricKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			root, records := generate(t, kind)

			report, err := Verify(context.Background(), records, root, Options{DetectUntracked: true})
			require.NoError(t, err)
			assert.True(t, report.Passed())
			assert.Equal(t, 2, report.Checked)
			assert.Empty(t, report.Findings)
		})
	}
}

func TestVerify_SizeMismatch(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abcde"), 0o644))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)

	assert.False(t, report.Passed())
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Findings, 1)
	f := report.Findings[0]
	assert.Equal(t, StatusMismatch, f.Status)
	assert.Equal(t, uint64(4), f.Expected)
	assert.Equal(t, uint64(5), f.Found)
	assert.Equal(t, "a.txt: expected 4 B, found 5 B", f.Message())
}

func TestVerify_FingerprintTamper(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Fingerprint)

	// Same length, different content: only the fingerprint notices.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abcD"), 0o644))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "a.txt", report.Findings[0].Path)
	assert.Regexp(t, `^a\.txt: expected [0-9A-F]+, found [0-9A-F]+$`, report.Findings[0].Message())
}

func TestVerify_Missing(t *testing.T) {
	t.Parallel()

	t.Run("not counted by default", func(t *testing.T) {
		t.Parallel()
		root, records := generate(t, types.Size)
		require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.txt")))

		report, err := Verify(context.Background(), records, root, Options{})
		require.NoError(t, err)
		assert.True(t, report.Passed())
		assert.Equal(t, 1, report.Missing)
		assert.Equal(t, 1, report.Checked)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "sub/b.txt: not found", report.Findings[0].Message())
	})

	t.Run("counted when requested", func(t *testing.T) {
		t.Parallel()
		root, records := generate(t, types.Size)
		require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.txt")))

		report, err := Verify(context.Background(), records, root, Options{CountMissing: true})
		require.NoError(t, err)
		assert.False(t, report.Passed())
		assert.Equal(t, 1, report.Invalid)
		assert.Equal(t, 1, report.Missing)
	})
}

func TestVerify_Untracked(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored.tmp"), []byte("i"), 0o644))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)
	assert.True(t, report.Passed(), "untracked files are only reported on request")

	report, err = Verify(context.Background(), records, root, Options{
		DetectUntracked: true,
		Exclude:         func(rel string) bool { return filepath.Ext(rel) == ".tmp" },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Untracked)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, Finding{Path: "new.txt", Status: StatusUntracked}, report.Findings[0])
}

func TestVerify_ReportsEveryMismatch(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("x"), 0o644))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Invalid)
	assert.Len(t, report.Findings, 2)
}

func TestVerify_TruncatedFile(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)
	require.NoError(t, os.Truncate(filepath.Join(root, "a.txt"), 0))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)
	assert.False(t, report.Passed())
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Invalid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, Finding{
		Path:     "a.txt",
		Status:   StatusMismatch,
		Kind:     types.Size,
		Expected: 4,
		Found:    0,
	}, report.Findings[0])
	assert.Equal(t, "a.txt: expected 4 B, found 0 B", report.Findings[0].Message())
}

func TestVerify_ParentReplacedByFile(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "sub")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub"), []byte("not a dir"), 0o644))

	report, err := Verify(context.Background(), records, root, Options{})
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 0, report.Invalid)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, StatusMissing, report.Findings[0].Status)
	assert.Equal(t, "sub/b.txt: not found", report.Findings[0].Message())
}

func TestVerify_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	t.Parallel()

	// link replaces a.txt with a symlink to an identical file outside root.
	link := func(t *testing.T) (string, []types.Record) {
		t.Helper()
		root, records := generate(t, types.Size)
		outside := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(outside, []byte("abcd"), 0o644))
		require.NoError(t, os.Remove(filepath.Join(root, "a.txt")))
		require.NoError(t, os.Symlink(outside, filepath.Join(root, "a.txt")))
		return root, records
	}

	t.Run("error policy fails", func(t *testing.T) {
		t.Parallel()
		root, records := link(t)

		report, err := Verify(context.Background(), records, root, Options{})
		require.Error(t, err)
		assert.Nil(t, report)
		assert.ErrorIs(t, err, types.ErrSymlink)
		var fe *types.FileError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, filepath.Join(root, "a.txt"), fe.Path)
	})

	t.Run("skip policy reports missing", func(t *testing.T) {
		t.Parallel()
		root, records := link(t)

		report, err := Verify(context.Background(), records, root, Options{Symlinks: scanner.SymlinksSkip})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Missing)
		assert.Equal(t, 1, report.Checked)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "a.txt: not found", report.Findings[0].Message())

		report, err = Verify(context.Background(), records, root, Options{
			Symlinks:     scanner.SymlinksSkip,
			CountMissing: true,
		})
		require.NoError(t, err)
		assert.False(t, report.Passed())
		assert.Equal(t, 1, report.Invalid)
	})

	t.Run("linked parent directory", func(t *testing.T) {
		t.Parallel()
		root, records := generate(t, types.Size)
		outside := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(outside, "b.txt"), nil, 0o644))
		require.NoError(t, os.RemoveAll(filepath.Join(root, "sub")))
		require.NoError(t, os.Symlink(outside, filepath.Join(root, "sub")))

		_, err := Verify(context.Background(), records, root, Options{})
		assert.ErrorIs(t, err, types.ErrSymlink)
	})
}

func TestVerify_FatalConditions(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)

	t.Run("non-metric kind", func(t *testing.T) {
		t.Parallel()
		bad := append([]types.Record{{Kind: types.Verify, RelativePath: "a.txt"}}, records...)
		_, err := Verify(context.Background(), bad, root, Options{})
		assert.ErrorIs(t, err, types.ErrUnsupportedKind)
	})

	t.Run("escaping path", func(t *testing.T) {
		t.Parallel()
		bad := []types.Record{{Kind: types.Size, RelativePath: "../outside.txt"}}
		_, err := Verify(context.Background(), bad, root, Options{})
		assert.ErrorIs(t, err, ErrUnsafePath)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Verify(ctx, records, root, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestVerify_Progress(t *testing.T) {
	t.Parallel()
	root, records := generate(t, types.Size)

	var last types.Progress
	_, err := Verify(context.Background(), records, root, Options{
		OnProgress: func(p types.Progress) { last = p },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.FilesDone)
	assert.Equal(t, int64(2), last.FilesTotal)
}
