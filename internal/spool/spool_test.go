package spool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleModeEmitsNothing(t *testing.T) {
	s := New(80, 24, 100)
	defer s.Close()

	_, err := s.Process([]byte("hello\r\n"))
	require.NoError(t, err)

	snap := s.Snapshot(Snapshot{Mode: ModeSimple})
	assert.Empty(t, snap)
}

func TestScreenModeReproducesWrittenText(t *testing.T) {
	s := New(80, 24, 100)
	defer s.Close()

	_, err := s.Process([]byte("hello world"))
	require.NoError(t, err)

	snap := s.Snapshot(Snapshot{Mode: ModeScreen})
	assert.Contains(t, string(snap), "hello world")
}

func TestScrollbackAccumulatesAcrossManyLines(t *testing.T) {
	s := New(80, 5, 1000)
	defer s.Close()

	for i := 0; i < 50; i++ {
		_, err := s.Process([]byte("line\r\n"))
		require.NoError(t, err)
	}

	assert.Greater(t, s.ScrollbackLen(), 0)
}

func TestScrollbackBoundedByConfiguredLimit(t *testing.T) {
	s := New(80, 5, 10)
	defer s.Close()

	for i := 0; i < 200; i++ {
		_, err := s.Process([]byte("line\r\n"))
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, s.ScrollbackLen(), 10)
}

func TestZeroScrollbackLinesConfigured(t *testing.T) {
	s := New(80, 24, 0)
	defer s.Close()

	for i := 0; i < 10; i++ {
		_, err := s.Process([]byte("line\r\n"))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, s.ScrollbackLen())

	snap := s.Snapshot(Snapshot{Mode: ModeLines, Lines: 5})
	assert.NotEmpty(t, snap) // still has the current-screen render
}

func TestLinesModeTailsScrollback(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	got := tailLines(lines, 2)
	assert.Equal(t, []string{"d", "e"}, got)

	got = tailLines(lines, 0)
	assert.Equal(t, lines, got)

	got = tailLines(lines, 100)
	assert.Equal(t, lines, got)
}

func TestResizePropagatesToEmulator(t *testing.T) {
	s := New(80, 24, 100)
	defer s.Close()

	s.SetSize(100, 30)
	assert.Equal(t, 100, s.cols)
	assert.Equal(t, 30, s.rows)
}
