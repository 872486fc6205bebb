package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/hasher/pkg/hasher/manifest"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points config, history, and logs at a temporary directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("HASHER_HISTORY_PATH", filepath.Join(home, "history"))
	t.Setenv("HASHER_LOGGING_PATH", filepath.Join(home, "hasher.log"))
	return home
}

// execute runs the CLI with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	excludeFlags, globFlags = nil, nil
	noHistory, cfgFile = false, ""
	historyLimit = 20
	for _, flags := range []*pflag.FlagSet{rootCmd.PersistentFlags(), watchCmd.Flags()} {
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Value.Type() != "stringArray" {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--no-progress"}, args...))
	err := Execute()
	return buf.String(), err
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestSize_WritesManifestAndListing(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd", "sub/b.txt": ""})

	out, err := execute(t, "--no-history", "size", root)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "size.hasher"))
	require.NoError(t, err)
	assert.Equal(t, "size:4,a.txt\nsize:0,sub/b.txt", string(data))

	sum := manifest.FormatChecksum(manifest.Checksum(data))
	assert.Equal(t,
		"size:  a.txt      - 4 B\n"+
			"size:  sub/b.txt  - 0 B\n"+
			"2 files processed.\n"+
			"'size.hasher' checksum: "+sum+"\n",
		out)
}

func TestXXH3_ThenCheck(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd", "sub/b.txt": ""})

	out, err := execute(t, "--no-history", "xxh3", root)
	require.NoError(t, err)
	assert.Contains(t, out, "2 files processed.")
	assert.NotContains(t, out, "a.txt")
	assert.FileExists(t, filepath.Join(root, "xxh3.hasher"))

	out, err = execute(t, "--no-history", "check", root)
	require.NoError(t, err)
	assert.Contains(t, out, "0 invalid files.\n'xxh3.hasher' checksum: ")

	writeTree(t, root, map[string]string{"a.txt": "abcX"})
	out, err = execute(t, "--no-history", "verify", root)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, "a.txt: expected ")
	assert.Contains(t, out, "1 invalid files.")
}

func TestCheck_MissingAndUntracked(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd", "sub/b.txt": ""})

	_, err := execute(t, "--no-history", "size", root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "sub", "b.txt")))
	writeTree(t, root, map[string]string{"new.txt": "n"})

	out, err := execute(t, "--no-history", "check", root)
	require.NoError(t, err)
	assert.Contains(t, out, "sub/b.txt: not found")
	assert.NotContains(t, out, "new.txt")

	out, err = execute(t, "--no-history", "--count-missing", "--untracked", "check", root)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, "new.txt: not in manifest")
	assert.Contains(t, out, "2 invalid files.")
}

func TestCheck_NoManifest(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	_, err := execute(t, "--no-history", "check", root)
	assert.ErrorIs(t, err, types.ErrManifestNotFound)
}

func TestGenerate_Exclude(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "b.tmp": "b", "cache/c.txt": "c"})

	_, err := execute(t, "--no-history", "-q", "-e", `\.tmp$`, "--exclude-glob", "cache/**", "size", root)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "size.hasher"))
	require.NoError(t, err)
	assert.Equal(t, "size:1,a.txt", string(data))
}

func TestGenerate_JSONOutput(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd"})

	out, err := execute(t, "--no-history", "-o", "json", "size", root)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "size.hasher", doc["manifest"])
	assert.EqualValues(t, 1, doc["files"])
}

func TestGenerate_UnknownOutput(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd"})

	_, err := execute(t, "--no-history", "-o", "csv", "size", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")
}

func TestHistory_RecordsRunsAndDetectsChangedManifest(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "abcd"})

	_, err := execute(t, "size", root)
	require.NoError(t, err)

	out, err := execute(t, "check", root)
	require.NoError(t, err)
	assert.NotContains(t, out, "manifest changed since generation")

	require.NoError(t, os.WriteFile(filepath.Join(root, "size.hasher"), []byte("size:5,a.txt"), 0o644))
	out, err = execute(t, "check", root)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, "warning: manifest changed since generation")

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "generate")
	assert.Contains(t, out, "verify")
	assert.Contains(t, out, "Showing 3 runs.")

	out, err = execute(t, "history", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 1 runs.")

	_, err = execute(t, "history", "show", "zz")
	assert.Error(t, err)
}

func TestHistory_Disabled(t *testing.T) {
	isolate(t)

	_, err := execute(t, "--no-history", "history")
	assert.ErrorIs(t, err, errHistoryDisabled)
}

func TestConfig_InitPathShow(t *testing.T) {
	home := isolate(t)
	want := filepath.Join(home, "config", "hasher", "config.yaml")

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created default config file")
	assert.FileExists(t, want)

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = execute(t, "-w", "3", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# Config file: "+want)
	assert.Contains(t, out, "workers: 3")
	assert.Contains(t, out, "HASHER_HISTORY_PATH=")
}

func TestConfig_InvalidSymlinkPolicy(t *testing.T) {
	isolate(t)

	_, err := execute(t, "--symlinks", "follow", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlinks")
}

func TestVersion(t *testing.T) {
	isolate(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hasher dev")
}
