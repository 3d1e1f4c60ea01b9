// Package spool implements the scrollback spool: a bounded terminal
// emulator that consumes pty output and can render a reattach snapshot
// in one of three modes (Simple, Screen, Lines(n)).
package spool

import (
	"fmt"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// Mode selects what a Snapshot reproduces on reattach.
type Mode int

const (
	// ModeSimple emits no snapshot bytes at all.
	ModeSimple Mode = iota
	// ModeScreen reproduces the current screen exactly.
	ModeScreen
	// ModeLines replays the last Lines scrollback lines (all of them
	// when Lines is 0) followed by the whole current screen; the screen
	// rows are not counted against Lines or trimmed.
	ModeLines
)

// Snapshot bundles a mode with the Lines(n) count, used only when
// Mode == ModeLines. Mirrors SessionRestoreMode::Lines(u16) from the
// original implementation.
type Snapshot struct {
	Mode  Mode
	Lines uint16
}

// Spool wraps charmbracelet/x/vt with a bounded ring-buffer scrollback,
// sized by the session's output_spool_lines config value. All methods
// are safe for concurrent use; the reader thread is the sole writer
// but Render/Snapshot may be called concurrently from the reattach
// path.
type Spool struct {
	emu        *vt.Emulator
	scrollback []string
	sbHead     int
	sbLen      int

	mu           sync.Mutex
	altScreen    bool
	cursorHidden bool
	cols, rows   int
}

// New creates a Spool with the given screen dimensions and scrollback
// capacity in lines (the config's output_spool_lines, default 10000).
func New(cols, rows, scrollbackLines int) *Spool {
	if scrollbackLines < 0 {
		scrollbackLines = 0
	}
	s := &Spool{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, scrollbackLines),
		cols:       cols,
		rows:       rows,
	}
	s.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if s.altScreen || len(s.scrollback) == 0 {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if s.sbLen == len(s.scrollback) {
					s.scrollback[s.sbHead] = ""
				}
				s.scrollback[s.sbHead] = rendered
				s.sbHead = (s.sbHead + 1) % len(s.scrollback)
				if s.sbLen < len(s.scrollback) {
					s.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range s.scrollback {
				s.scrollback[i] = ""
			}
			s.sbLen = 0
			s.sbHead = 0
		},
		AltScreen: func(on bool) {
			s.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			s.cursorHidden = !visible
		},
	})
	return s
}

// Process feeds pty output bytes to the emulator. Append-only, called
// only from the reader thread per the session invariant that spool
// writes always precede any forwarding to an attached client.
func (s *Spool) Process(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Write(p)
}

// SetSize changes the terminal dimensions. Called only by the reader
// thread in response to a tty_size_change.
func (s *Spool) SetSize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emu.Resize(cols, rows)
	s.cols, s.rows = cols, rows
}

// Render renders the current screen as a plain ANSI byte stream with
// no scrollback/cursor restore wrapper; used internally by Snapshot
// and available for diagnostics.
func (s *Spool) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Render()
}

// ScrollbackLen returns the number of scrollback lines currently held.
func (s *Spool) ScrollbackLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sbLen
}

// Close releases the emulator.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Close()
}

// Snapshot renders a reconnect payload per the requested mode. The
// bytes are valid ANSI that any terminal emulator can consume directly
// to reproduce either nothing (Simple), the current screen (Screen),
// or the last n scrollback lines followed by the current screen
// (Lines(n)).
func (s *Spool) Snapshot(snap Snapshot) []byte {
	if snap.Mode == ModeSimple {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf strings.Builder

	// Screen mode reproduces only the current screen grid, per spec
	// §4.3 ("what a user would see right now"); scrollback is replayed
	// only for ModeLines, bounded to the requested count.
	var lines []string
	if snap.Mode == ModeLines {
		lines = tailLines(s.scrollbackLinesLocked(), int(snap.Lines))
	}

	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}

	if len(lines) > 0 {
		for i := 0; i < s.rows-1; i++ {
			buf.WriteByte('\n')
		}
	}

	buf.WriteString("\x1b[m\x1b[H")
	buf.WriteString(s.emu.Render())

	pos := s.emu.CursorPosition()
	fmt.Fprintf(&buf, "\x1b[%d;%dH", pos.Y+1, pos.X+1)

	if s.cursorHidden {
		buf.WriteString("\x1b[?25l")
	} else {
		buf.WriteString("\x1b[?25h")
	}

	return []byte(buf.String())
}

// scrollbackLinesLocked returns all scrollback lines oldest-first.
// Caller must hold mu.
func (s *Spool) scrollbackLinesLocked() []string {
	if s.sbLen == 0 {
		return nil
	}
	lines := make([]string, s.sbLen)
	start := (s.sbHead - s.sbLen + len(s.scrollback)) % len(s.scrollback)
	for i := 0; i < s.sbLen; i++ {
		lines[i] = s.scrollback[(start+i)%len(s.scrollback)]
	}
	return lines
}

// tailLines keeps at most n trailing entries of lines, oldest-first.
func tailLines(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
