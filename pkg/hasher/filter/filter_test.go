package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Regex(t *testing.T) {
	t.Parallel()

	f, err := New(WithRegex(`\.tmp$`, `^build/`, ""))
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "a.tmp", want: true},
		{path: "dir/b.tmp", want: true},
		{path: "a.tmpl", want: false},
		{path: "build/out.bin", want: true},
		{path: "src/build/out.bin", want: false},
		{path: "readme.md", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Excluded(tt.path))
		})
	}
	assert.Equal(t, []string{`\.tmp$`, `^build/`}, f.Patterns())
}

func TestFilter_Glob(t *testing.T) {
	t.Parallel()

	f, err := New(WithGlob("*.log", "cache/**", "**/.git/**"))
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "app.log", want: true},
		{path: "logs/app.log", want: false},
		{path: "cache/a/b/c", want: true},
		{path: "src/.git/HEAD", want: true},
		{path: "src/main.go", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Excluded(tt.path))
		})
	}
}

func TestFilter_InvalidPatterns(t *testing.T) {
	t.Parallel()

	_, err := New(WithRegex("(unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(unclosed")

	_, err = New(WithGlob("[unclosed"))
	require.Error(t, err)
}

func TestFilter_Predicate(t *testing.T) {
	t.Parallel()

	empty, err := New()
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Nil(t, empty.Predicate())

	var nilFilter *Filter
	assert.Nil(t, nilFilter.Predicate())

	f, err := New(WithRegex("secret"), WithGlob("*.bak"))
	require.NoError(t, err)
	pred := f.Predicate()
	require.NotNil(t, pred)
	assert.True(t, pred("config/secret.yaml"))
	assert.True(t, pred("db.bak"))
	assert.False(t, pred("db.sql"))
}
