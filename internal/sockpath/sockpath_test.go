package sockpath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUsesXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	got, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/shoal/shoal.socket", got)
}

func TestDefaultFallsBackToHomeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := Default()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "run", "shoal", "shoal.socket"), got)
}

func TestResolveShortPathPassesThrough(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "shoal.socket")
	got, err := Resolve(userPath)
	require.NoError(t, err)
	assert.Equal(t, userPath, got)
}

func TestResolveLongPathCreatesHashedAlias(t *testing.T) {
	dir := t.TempDir()
	longComponent := strings.Repeat("x", 200)
	userPath := filepath.Join(dir, longComponent, "shoal.socket")

	got, err := Resolve(userPath)
	require.NoError(t, err)
	assert.Less(t, len(got), len(userPath))
	assert.Contains(t, got, "shoal-")

	linkTarget, err := os.Readlink(filepath.Dir(got))
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(userPath), linkTarget)
}

func TestResolveLongPathIsStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	longComponent := strings.Repeat("y", 200)
	userPath := filepath.Join(dir, longComponent, "shoal.socket")

	first, err := Resolve(userPath)
	require.NoError(t, err)
	second, err := Resolve(userPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
