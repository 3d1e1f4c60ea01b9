package daemon

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/ianremillard/shoal/internal/config"
	"github.com/ianremillard/shoal/internal/proto"
	"github.com/ianremillard/shoal/internal/ptypair"
	"github.com/ianremillard/shoal/internal/spool"
)

// reattachResizeDelay is the "jiggle" delay: the pty is briefly
// oversized by one row/column, then resized back to the client's real
// size after this delay. Empirically load-bearing for emacs, which
// otherwise doesn't redraw on reattach.
const reattachResizeDelay = 50 * time.Millisecond

// readerPtyBufSize bounds a single pty read.
const readerPtyBufSize = 32 * 1024

// ClientConnectionStatus is the reader thread's ack for a
// client-connection control message.
type ClientConnectionStatus int

const (
	StatusNew ClientConnectionStatus = iota
	StatusReplaced
	StatusDetached
	StatusDetachNone
)

func (s ClientConnectionStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusReplaced:
		return "replaced"
	case StatusDetached:
		return "detached"
	case StatusDetachNone:
		return "detach_none"
	default:
		return "unknown"
	}
}

// clientConnection is what bidiStream hands off to the reader thread
// on attach. sink serializes Data and Heartbeat frame writes so the
// two never interleave within a frame.
type clientConnection struct {
	mu   sync.Mutex
	sink *bufio.Writer
	conn net.Conn
	size ptypair.Size
}

func newClientConnection(conn net.Conn, size ptypair.Size) *clientConnection {
	return &clientConnection{sink: bufio.NewWriter(conn), conn: conn, size: size}
}

func (c *clientConnection) writeData(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := proto.WriteDataChunk(c.sink, p); err != nil {
		return err
	}
	return c.sink.Flush()
}

func (c *clientConnection) writeHeartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := proto.WriteHeartbeatChunk(c.sink); err != nil {
		return err
	}
	return c.sink.Flush()
}

func (c *clientConnection) writeExitStatus(code int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := proto.WriteExitStatusChunk(c.sink, code); err != nil {
		return err
	}
	return c.sink.Flush()
}

// shutdown closes the underlying connection so any blocked read on it
// unblocks. The reader thread calls this only on the stream handle it
// was given for control purposes, never for normal writes.
func (c *clientConnection) shutdown() {
	c.conn.Close()
}

// readerCtl bundles the control channels shared between the registry
// (and bidi streamer, via actionDetach) and a session's always-on
// reader goroutine.
type readerCtl struct {
	clientConnection    chan *clientConnection
	clientConnectionAck chan ClientConnectionStatus

	ttySizeChange    chan ptypair.Size
	ttySizeChangeAck chan struct{}
}

func newReaderCtl() *readerCtl {
	return &readerCtl{
		clientConnection:    make(chan *clientConnection),
		clientConnectionAck: make(chan ClientConnectionStatus),
		ttySizeChange:       make(chan ptypair.Size),
		ttySizeChangeAck:    make(chan struct{}),
	}
}

type ptyReadResult struct {
	buf []byte
	err error
}

// ptyPump continuously reads the pty master and forwards results one
// at a time, blocking between reads on the consumer keeping up. This
// is the idiomatic-Go replacement for the original's poll(2)-with-
// timeout loop: a select over channels multiplexes the pty, the
// control channels, and the jiggle timer without needing to wake up
// on a fixed interval just to re-check for control messages.
func ptyPump(p *ptypair.Pair, out chan<- ptyReadResult, done <-chan struct{}) {
	for {
		buf := make([]byte, readerPtyBufSize)
		n, err := p.Read(buf)
		result := ptyReadResult{buf: buf[:n], err: err}
		select {
		case out <- result:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// runReader is the always-on background reader thread for a session,
// per spec §4.4. ptyPump starts reading at once, but its output waits
// in ptyCh while this goroutine blocks on the first client connection,
// so the first shell prompt is never dropped,
// then loops forwarding pty output to the spool and, when attached,
// to the client sink.
func (s *Session) runReader() {
	ptyCh := make(chan ptyReadResult, 1)
	pumpDone := make(chan struct{})
	go ptyPump(s.pty, ptyCh, pumpDone)
	defer close(pumpDone)

	var cur *clientConnection
	var resizeTimer *time.Timer
	var resizeC <-chan time.Time
	var pendingResize ptypair.Size

	first, ok := <-s.ctl.clientConnection
	if !ok {
		return
	}
	if first != nil {
		cur = first
		s.reattach(cur, &resizeTimer, &resizeC, &pendingResize)
		s.ctl.clientConnectionAck <- StatusNew
	} else {
		s.ctl.clientConnectionAck <- StatusDetachNone
	}

	for {
		select {
		case msg, ok := <-s.ctl.clientConnection:
			if !ok {
				return
			}
			if msg != nil {
				status := StatusNew
				if cur != nil {
					cur.shutdown()
					status = StatusReplaced
				}
				cur = msg
				s.reattach(cur, &resizeTimer, &resizeC, &pendingResize)
				s.ctl.clientConnectionAck <- status
			} else {
				status := StatusDetachNone
				if cur != nil {
					cur.shutdown()
					cur = nil
					status = StatusDetached
				}
				s.ctl.clientConnectionAck <- status
			}

		case size := <-s.ctl.ttySizeChange:
			s.spool.SetSize(int(size.Cols), int(size.Rows))
			_ = s.pty.Resize(size)
			s.ctl.ttySizeChangeAck <- struct{}{}

		case <-resizeC:
			_ = s.pty.Resize(pendingResize)
			resizeTimer = nil
			resizeC = nil

		case res, ok := <-ptyCh:
			if !ok {
				return
			}
			if len(res.buf) > 0 {
				s.spool.Process(res.buf)
				if cur != nil {
					if err := cur.writeData(res.buf); err != nil {
						// Any write error is a client hangup: drop the
						// sink silently, keep the pty (and shell)
						// running.
						cur = nil
					}
				}
			}
			if res.err != nil {
				return
			}
		}
	}
}

// reattach executes the reattach protocol: oversize the pty
// immediately so the size change can "bake", resize the spool to the
// client's real size immediately, schedule the real pty resize after
// reattachResizeDelay, and write the restore snapshot as one Data
// frame before any fresh pty bytes.
func (s *Session) reattach(cur *clientConnection, resizeTimer **time.Timer, resizeC *<-chan time.Time, pendingResize *ptypair.Size) {
	oversize := ptypair.Size{Rows: cur.size.Rows + 1, Cols: cur.size.Cols + 1}
	_ = s.pty.Resize(oversize)
	s.spool.SetSize(int(cur.size.Cols), int(cur.size.Rows))

	if *resizeTimer != nil {
		(*resizeTimer).Stop()
	}
	*pendingResize = cur.size
	t := time.NewTimer(reattachResizeDelay)
	*resizeTimer = t
	*resizeC = t.C

	snap := s.spool.Snapshot(s.restoreSnapshot())
	if len(snap) > 0 {
		_ = cur.writeData(snap)
	}
}

func (s *Session) restoreSnapshot() spool.Snapshot {
	switch s.cfg.SessionRestoreMode.Kind {
	case config.RestoreSimple:
		return spool.Snapshot{Mode: spool.ModeSimple}
	case config.RestoreLines:
		return spool.Snapshot{Mode: spool.ModeLines, Lines: s.cfg.SessionRestoreMode.Lines}
	default:
		return spool.Snapshot{Mode: spool.ModeScreen}
	}
}
