// Package ptypair owns the pty master/slave pair and the child shell
// process spawned under it: pty allocation, login-shell argv[0]
// prefixing, echo suppression, resize, and a reaper goroutine that
// closes ChildExited once the child has been waited on.
package ptypair

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Size is a pty's dimensions in character cells.
type Size struct {
	Rows uint16
	Cols uint16
}

// Spec describes how to spawn a session's child shell.
type Spec struct {
	Argv        []string
	Env         []string
	Cwd         string
	Size        Size
	DisableEcho bool
}

// Pair owns a pty master fd and the pid of the child shell running
// under its slave. The master fd is safe to read/write/resize from
// multiple goroutines concurrently (the reader thread reads; the bidi
// streamer writes and resizes), matching spec §4.2's contract.
type Pair struct {
	master *os.File
	cmd    *exec.Cmd

	mu   sync.Mutex
	pid  int
	done bool

	// ChildExited is closed by the reaper goroutine once cmd.Wait()
	// returns, regardless of exit status.
	ChildExited chan struct{}

	// ExitCode is valid for reading only after ChildExited is closed.
	ExitCode int
}

// Spawn allocates a pty, starts spec.Argv under it with argv[0]
// prefixed with "-" to force login-shell semantics (matching sshd
// behavior per spec §4.2), and launches the reaper goroutine.
func Spawn(spec Spec) (*Pair, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("ptypair: empty argv")
	}

	loginArgv0 := "-" + filepath.Base(spec.Argv[0])
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Args[0] = loginArgv0
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: spec.Size.Rows,
		Cols: spec.Size.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("ptypair: pty.Start: %w", err)
	}

	if spec.DisableEcho {
		if err := disableEcho(master); err != nil {
			master.Close()
			return nil, fmt.Errorf("ptypair: disable echo: %w", err)
		}
	}

	p := &Pair{
		master:      master,
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		ChildExited: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

// disableEcho clears the ECHO flag on the pty, matching the spec's
// noecho config option. The master fd's termios controls the slave
// side too, so this affects the child directly.
func disableEcho(master *os.File) error {
	termios, err := unix.IoctlGetTermios(int(master.Fd()), ioctlGetTermios)
	if err != nil {
		return err
	}
	termios.Lflag &^= unix.ECHO
	return unix.IoctlSetTermios(int(master.Fd()), ioctlSetTermios, termios)
}

// reap blocks on cmd.Wait() and closes ChildExited when it returns,
// mirroring the teacher's ptyReader-embedded cmd.Wait() reap step but
// split into its own goroutine since the reader thread owns reading
// the master fd here, not reaping.
func (p *Pair) reap() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.done = true
	if exitErr, ok := err.(*exec.ExitError); ok {
		p.ExitCode = exitErr.ExitCode()
	} else if err == nil {
		p.ExitCode = 0
	} else {
		p.ExitCode = -1
	}
	p.mu.Unlock()

	close(p.ChildExited)
}

// Read reads from the pty master. Safe to call concurrently with
// Write/Resize; only one reader (the session's reader thread) is
// expected in practice.
func (p *Pair) Read(buf []byte) (int, error) {
	return p.master.Read(buf)
}

// Write writes client input to the pty master.
func (p *Pair) Write(data []byte) (int, error) {
	return p.master.Write(data)
}

// Resize sets the pty's window size via an ioctl on the master fd.
func (p *Pair) Resize(size Size) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// PID returns the child's process id.
func (p *Pair) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Kill sends sig to the child's whole process group (the session
// leader created by pty.Start's Setsid, so pgid == pid), falling back
// to signaling just the pid if the group lookup fails.
func (p *Pair) Kill(sig syscall.Signal) error {
	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()

	if pid <= 0 {
		return nil
	}
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		return syscall.Kill(-pgid, sig)
	}
	return syscall.Kill(pid, sig)
}

// Close closes the pty master fd. Safe to call after the child has
// exited; does not itself signal the child.
func (p *Pair) Close() error {
	return p.master.Close()
}
