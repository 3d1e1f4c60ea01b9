// Package daemon implements the session registry, the always-on
// reader thread, the bidi streamer, and the connection dispatcher:
// the core of the session multiplexer (spec §3-§4.7).
package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ianremillard/shoal/internal/config"
	"github.com/ianremillard/shoal/internal/keybind"
	"github.com/ianremillard/shoal/internal/ptypair"
	"github.com/ianremillard/shoal/internal/spool"
)

// defaultKeybindings is used when a session's config carries no
// keybinding entries at all. The original falls back to this exact
// binding so Detach always has a way to fire even on an empty config.
var defaultKeybindings = []keybind.Binding{
	{Text: "Ctrl-Space Ctrl-q", Action: keybind.ActionDetach},
}

// Session represents one persistent shell: a pty-backed child process,
// its scrollback spool, its always-on reader goroutine, and a
// single-slot attachment lock that detects "busy".
type Session struct {
	Name      string
	StartedAt time.Time

	pty   *ptypair.Pair
	spool *spool.Spool
	cfg   config.Config

	bindings *keybind.Bindings

	ctl *readerCtl

	// inner serializes attachment: TryLock failing means another
	// bidi streamer currently holds this session, i.e. "busy".
	inner sync.Mutex

	// closeOnce guards close(): the reaper goroutine and the bidi
	// streamer's post-attach cleanup can both observe the same
	// ChildExited close and race to tear the session down.
	closeOnce sync.Once

	ttlTimer *time.Timer

	log *log.Logger
}

// sessionSpec describes how to create a brand new session.
type sessionSpec struct {
	Name    string
	Size    ptypair.Size
	Env     []string
	Cwd     string
	Argv    []string
	Cfg     config.Config
	TTL     *time.Duration
	Logger  *log.Logger
}

// newSession spawns the pty, child shell, spool, and always-on reader
// goroutine for a brand new session. The reader thread blocks on its
// first client connection before consuming any pty output, preserving
// the first shell prompt (spec §3 Lifecycle).
func newSession(spec sessionSpec, onChildExit func(session *Session)) (*Session, error) {
	bindings, err := compileBindings(spec.Cfg.Keybinding)
	if err != nil {
		return nil, fmt.Errorf("daemon: compiling keybindings for session %s: %w", spec.Name, err)
	}

	pair, err := ptypair.Spawn(ptypair.Spec{
		Argv:        spec.Argv,
		Env:         spec.Env,
		Cwd:         spec.Cwd,
		Size:        spec.Size,
		DisableEcho: spec.Cfg.NoEcho,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: spawning session %s: %w", spec.Name, err)
	}

	sp := spool.New(int(spec.Size.Cols), int(spec.Size.Rows), spec.Cfg.OutputSpoolLines)

	logger := spec.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		Name:      spec.Name,
		StartedAt: time.Now(),
		pty:       pair,
		spool:     sp,
		cfg:       spec.Cfg,
		bindings:  bindings,
		ctl:       newReaderCtl(),
		log:       logger.With("session", spec.Name),
	}

	go s.runReader()

	go func() {
		<-pair.ChildExited
		s.log.Info("child exited", "code", pair.ExitCode)
		if onChildExit != nil {
			onChildExit(s)
		}
	}()

	if spec.TTL != nil {
		ttl := *spec.TTL
		s.ttlTimer = time.AfterFunc(ttl, func() {
			s.log.Info("ttl expired, killing session")
			_ = s.kill(500 * time.Millisecond)
		})
	}

	return s, nil
}

func compileBindings(configured []keybind.Binding) (*keybind.Bindings, error) {
	bindings := configured
	if len(bindings) == 0 {
		bindings = defaultKeybindings
	}
	return keybind.NewBindings(bindings)
}

// tryAttach attempts to acquire the session's single attachment slot
// without blocking. ok is false iff another attachment currently holds
// it (the "Busy" outcome).
func (s *Session) tryAttach() bool {
	return s.inner.TryLock()
}

func (s *Session) releaseAttach() {
	s.inner.Unlock()
}

// exited reports whether the child process has already exited,
// without blocking.
func (s *Session) exited() bool {
	select {
	case <-s.pty.ChildExited:
		return true
	default:
		return false
	}
}

// attached reports whether a client is currently holding the
// attachment slot, used for List's status and for routing
// session_message RPCs.
func (s *Session) attached() bool {
	if s.inner.TryLock() {
		s.inner.Unlock()
		return false
	}
	return true
}

// actionDetach is invoked by the client-to-shell worker when the
// keybinding engine fires Detach: it tells the reader thread to drop
// its current sink, mirroring the original's Session::action_detach.
func (s *Session) actionDetach() {
	s.ctl.clientConnection <- nil
	status := <-s.ctl.clientConnectionAck
	s.log.Info("detach action fired", "status", status)
}

// resize forwards an out-of-band resize RPC to the reader thread.
func (s *Session) resize(size ptypair.Size) {
	s.ctl.ttySizeChange <- size
	<-s.ctl.ttySizeChangeAck
}

// kill sends SIGHUP to the child, waits grace for it to exit, then
// escalates to SIGKILL (spec §4.6 kill).
func (s *Session) kill(grace time.Duration) error {
	if s.ttlTimer != nil {
		s.ttlTimer.Stop()
	}
	if err := s.pty.Kill(hangupSignal); err != nil {
		return err
	}
	select {
	case <-s.pty.ChildExited:
		return nil
	case <-time.After(grace):
	}
	return s.pty.Kill(killSignal)
}

// close tears down the session's resources once its child has
// exited and it has been removed from the registry. Idempotent: the
// reaper goroutine and the bidi streamer's post-attach cleanup can
// both observe the same child exit and race to call this.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.ctl.clientConnection)
		_ = s.spool.Close()
		_ = s.pty.Close()
	})
}
