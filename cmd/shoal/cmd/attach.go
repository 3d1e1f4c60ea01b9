package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ianremillard/shoal/internal/proto"
)

func newAttachCmd(socketFlag *string) *cobra.Command {
	var ttlSecs int64

	c := &cobra.Command{
		Use:   "attach <name>",
		Short: "Attach to a session, creating it if it doesn't exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doAttach(*socketFlag, args[0], ttlSecs)
		},
	}
	c.Flags().Int64Var(&ttlSecs, "ttl", 0, "kill the session this many seconds after creation (0 disables)")
	return c
}

// doAttach connects to shoald, requests Attach, and if it succeeds
// proxies terminal I/O until the session detaches, the daemon closes
// the stream, or the user's keybinding fires a local detach.
func doAttach(socketFlag, name string, ttlSecs int64) error {
	conn, err := dial(socketFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 80, 24
	}

	req := proto.AttachRequest{
		Name:         name,
		LocalTTYSize: proto.TTYSize{Rows: uint16(rows), Cols: uint16(cols)},
		LocalEnv:     map[string]string{"TERM": os.Getenv("TERM")},
	}
	if ttlSecs > 0 {
		req.TTLSecs = &ttlSecs
	}

	if err := proto.WriteConnectHeader(conn, proto.ConnectHeader{Kind: proto.ConnectAttach, Attach: &req}); err != nil {
		return fmt.Errorf("send attach request: %w", err)
	}

	reply, err := proto.ReadAttachReply(conn)
	if err != nil {
		return fmt.Errorf("read attach reply: %w", err)
	}

	switch reply.Status {
	case proto.AttachBusy:
		return fmt.Errorf("session %q is already attached elsewhere", name)
	case proto.AttachForbidden:
		return fmt.Errorf("connection forbidden: %s", reply.Reason)
	case proto.AttachUnexpectedError:
		return fmt.Errorf("daemon error: %s", reply.Reason)
	case proto.AttachAttached, proto.AttachCreated:
		// fall through to streaming below
	default:
		return fmt.Errorf("unexpected attach status %q", reply.Status)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}

	exitCode := streamAttach(conn, fd, socketFlag, name)
	term.Restore(fd, oldState)
	os.Exit(int(exitCode))
	return nil
}

// streamAttach runs the foreground half of an attach: stdin to the
// daemon, daemon chunks to stdout, until either side closes the
// connection. Returns the exit code to propagate: the daemon's
// ExitStatus if one arrived, or 1 if the stream ended without one
// (e.g. a detach, spec §7's "dropped socket" failure mode).
func streamAttach(conn net.Conn, fd int, socketFlag, name string) int32 {
	var wg sync.WaitGroup
	var closeOnce sync.Once
	var exitCode int32 = 1

	done := make(chan struct{})
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	// stdin -> Data chunks to the daemon.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer closeDone()
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := proto.WriteDataChunk(conn, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// daemon chunks -> stdout, watching for ExitStatus.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer closeDone()
		for {
			kind, payload, err := proto.ReadChunk(conn)
			if err != nil {
				return
			}
			switch kind {
			case proto.ChunkData:
				os.Stdout.Write(payload)
			case proto.ChunkHeartbeat:
				// liveness only; nothing to render
			case proto.ChunkExitStatus:
				exitCode = proto.DecodeExitStatus(payload)
				return
			}
		}
	}()

	// Resize RPCs travel on their own connection per spec §2/§4.6
	// rather than sharing the attach stream's framing.
	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	defer signal.Stop(winchCh)
	go func() {
		for range winchCh {
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			sendResize(socketFlag, name, uint16(rows), uint16(cols))
		}
	}()

	<-done
	wg.Wait()
	return exitCode
}

// sendResize opens a short-lived connection carrying a
// SessionMessage{Resize} RPC, per spec §4.6/§6.
func sendResize(socketFlag, name string, rows, cols uint16) {
	conn, err := dial(socketFlag)
	if err != nil {
		return
	}
	defer conn.Close()

	req := proto.SessionMessageRequest{
		Name:   name,
		Kind:   proto.SessionMessageResize,
		Resize: &proto.TTYSize{Rows: rows, Cols: cols},
	}
	_ = proto.WriteConnectHeader(conn, proto.ConnectHeader{Kind: proto.ConnectSessionMessage, SessionMessage: &req})
	_, _ = proto.ReadSessionMessageReply(conn)
}
