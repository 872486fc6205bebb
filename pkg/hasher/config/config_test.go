package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and XDG_CONFIG_HOME at a fresh directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultPath, cfg.DefaultPath)
	assert.Empty(t, cfg.Exclude)
	assert.Zero(t, cfg.Workers)
	assert.Equal(t, DefaultSymlinks, cfg.Symlinks)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.False(t, cfg.Verify.CountMissing)
	assert.False(t, cfg.Verify.Untracked)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, DefaultHistoryPath(), cfg.History.Path)
	assert.Equal(t, DefaultRetentionDays, cfg.History.RetentionDays)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogPath(), cfg.Logging.Path)
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	configDir := filepath.Join(home, ".config", "hasher")
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	content := `
default_path: /srv/data
exclude:
  - \.tmp$
exclude_glob:
  - "**/.git/**"
workers: 3
symlinks: skip
output: json
verify:
  count_missing: true
  untracked: true
history:
  enabled: false
  path: ~/hist
  retention_days: 7
watch:
  debounce: 2s
logging:
  level: debug
  components:
    scanner: warn
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644))

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", cfg.DefaultPath)
	assert.Equal(t, []string{`\.tmp$`}, cfg.Exclude)
	assert.Equal(t, []string{"**/.git/**"}, cfg.ExcludeGlob)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "skip", cfg.Symlinks)
	assert.Equal(t, "json", cfg.Output)
	assert.True(t, cfg.Verify.CountMissing)
	assert.True(t, cfg.Verify.Untracked)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(home, "hist"), cfg.History.Path)
	assert.Equal(t, 7, cfg.History.RetentionDays)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "warn", cfg.Logging.Components["scanner"])
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 5\n"), 0o644))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("HASHER_WORKERS", "6")
	t.Setenv("HASHER_VERIFY_COUNT_MISSING", "true")
	t.Setenv("HASHER_WATCH_DEBOUNCE", "250ms")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Workers)
	assert.True(t, cfg.Verify.CountMissing)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
}

func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"negative workers", "workers", -1},
		{"bad symlinks", "symlinks", "follow"},
		{"negative retention", "history.retention_days", -3},
		{"bad log size", "logging.max_size", "ten"},
		{"negative log backups", "logging.max_backups", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New("")
			require.NoError(t, err)
			v.Set(tt.key, tt.val)
			_, err = Load(v)
			assert.Error(t, err)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "symlinks: error")

	// The written file must load cleanly.
	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)

	// An existing file is left alone.
	require.NoError(t, os.WriteFile(path, []byte("workers: 9\n"), 0o644))
	_, err = WriteDefault()
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "workers: 9\n", string(data))
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	got, err := ExpandPath("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), got)

	got, err = ExpandPath("/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", got)
}

func TestLoggingConfig_Rotation(t *testing.T) {
	t.Parallel()

	r, err := LoggingConfig{MaxSize: "2MiB", MaxBackups: 4}.Rotation()
	require.NoError(t, err)
	assert.Equal(t, int64(2<<20), r.MaxSize)
	assert.Equal(t, 4, r.MaxBackups)

	r, err = LoggingConfig{}.Rotation()
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), r.MaxSize)

	_, err = LoggingConfig{MaxSize: "lots"}.Rotation()
	assert.Error(t, err)
}
