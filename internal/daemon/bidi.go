package daemon

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ianremillard/shoal/internal/keybind"
	"github.com/ianremillard/shoal/internal/ptypair"
)

// joinPollInterval is how often the bidi streamer's coordination loop
// checks whether any of its three workers has finished.
const joinPollInterval = 100 * time.Millisecond

// joinHangupGrace is how long the coordinator waits for all three
// workers to join after signaling stop, before giving up on them.
const joinHangupGrace = 300 * time.Millisecond

// heartbeatInterval is how often the heartbeat worker writes an empty
// frame to the client, so a dead socket is detected promptly.
const heartbeatInterval = 1 * time.Second

// clientToShellBufSize bounds a single client-socket read.
const clientToShellBufSize = 4096

// bidiStream shuffles bytes between conn and the session's pty for
// the duration of one attachment, per spec §4.5. It takes ownership of
// conn (closing it on return) and returns whether the child process
// had exited by the time it returned.
//
// The original hard-exits the whole process if a worker is still
// stuck after joinHangupGrace, reasoning that one attach process ==
// one client. shoal's daemon serves every session out of a single
// process, so that reasoning doesn't transfer: exiting here would
// kill every other session too. Instead, past the grace window, the
// coordinator logs and returns without waiting further, abandoning
// the stuck worker goroutine(s) to exit on their own whenever their
// blocking call eventually unblocks (recorded as an Open Question
// resolution).
func (s *Session) bidiStream(conn net.Conn, size ptypair.Size) bool {
	defer conn.Close()

	cc := newClientConnection(conn, size)
	s.ctl.clientConnection <- cc
	status := <-s.ctl.clientConnectionAck
	s.log.Info("attached", "status", status)

	var stop atomic.Bool
	var childDone atomic.Bool

	clientToShellDone := make(chan struct{})
	heartbeatDone := make(chan struct{})
	supervisorDone := make(chan struct{})

	// A panicking worker is logged and counts as a finished worker.
	rec := func() {
		if r := recover(); r != nil {
			s.log.Error("bidi worker panicked", "panic", r)
		}
	}
	go func() { defer close(clientToShellDone); defer rec(); s.spawnClientToShell(conn, &stop) }()
	go func() { defer close(heartbeatDone); defer rec(); s.spawnHeartbeat(cc, &stop) }()
	go func() { defer close(supervisorDone); defer rec(); s.spawnSupervisor(&stop, &childDone) }()

	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()
waitForAny:
	for {
		select {
		case <-clientToShellDone:
			break waitForAny
		case <-heartbeatDone:
			break waitForAny
		case <-supervisorDone:
			break waitForAny
		case <-ticker.C:
			if childDone.Load() {
				break waitForAny
			}
		}
	}

	stop.Store(true)

	// The ExitStatus chunk must reach the client before conn is closed
	// to unblock the blocked reads below: writeExitStatus goes through
	// cc's sink, which wraps this same conn, so it fails silently once
	// the connection is torn down.
	if childDone.Load() {
		_ = cc.writeExitStatus(int32(s.pty.ExitCode))
	}

	conn.Close()

	joined := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { <-clientToShellDone; wg.Done() }()
	go func() { <-heartbeatDone; wg.Done() }()
	go func() { <-supervisorDone; wg.Done() }()
	go func() { wg.Wait(); close(joined) }()

	select {
	case <-joined:
	case <-time.After(joinHangupGrace):
		s.log.Warn("bidi workers still stuck past grace window, abandoning")
	}

	// Once the child has exited the reader goroutine stops on its own
	// (its pty read fails) and close() closes clientConnection, so the
	// detach is only handed to the reader while the child still runs.
	if !s.exited() {
		select {
		case s.ctl.clientConnection <- nil:
			<-s.ctl.clientConnectionAck
		case <-s.pty.ChildExited:
		}
	}

	return childDone.Load()
}

// spawnClientToShell reads client input, scans it for keybinding
// sequences (snipping matched/pending bytes from what reaches the
// shell), dispatches matched actions locally, and writes the
// remaining bytes to the pty master.
func (s *Session) spawnClientToShell(conn net.Conn, stop *atomic.Bool) {
	scanner := keybind.NewScanner(s.bindings)
	buf := make([]byte, clientToShellBufSize)

	for {
		if stop.Load() {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if stop.Load() {
			return
		}

		forward, actions := scanner.Feed(buf[:n])
		for _, action := range actions {
			s.log.Info("keybinding action fired", "action", action)
			switch action {
			case keybind.ActionDetach:
				s.actionDetach()
			case keybind.ActionNoOp:
			}
		}

		if len(forward) > 0 {
			if _, err := s.pty.Write(forward); err != nil {
				return
			}
		}
	}
}

// spawnHeartbeat writes an empty frame to the client sink every
// heartbeatInterval so a dead socket is detected without waiting for
// the client to send anything.
func (s *Session) spawnHeartbeat(cc *clientConnection, stop *atomic.Bool) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		if stop.Load() {
			return
		}
		<-ticker.C
		if stop.Load() {
			return
		}
		if err := cc.writeHeartbeat(); err != nil {
			return
		}
	}
}

// spawnSupervisor watches for the child shell exiting and signals
// shutdown when it does.
func (s *Session) spawnSupervisor(stop *atomic.Bool, childDone *atomic.Bool) {
	for {
		if stop.Load() {
			return
		}
		select {
		case <-s.pty.ChildExited:
			childDone.Store(true)
			return
		case <-time.After(supervisorPollInterval):
		}
	}
}

// supervisorPollInterval bounds how often spawnSupervisor re-checks
// stop while waiting on ChildExited.
const supervisorPollInterval = 300 * time.Millisecond
