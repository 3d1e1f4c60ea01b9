package daemon

import (
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ianremillard/shoal/internal/peercred"
	"github.com/ianremillard/shoal/internal/proto"
	"github.com/ianremillard/shoal/internal/ptypair"
)

// headerReadTimeout bounds how long the dispatcher waits for a
// client's connect header before closing the connection (spec §4.7,
// §5 cancellation & timeouts).
const headerReadTimeout = 5 * time.Second

// Server accepts connections on a Unix domain socket and dispatches
// each to the registry, per spec §4.7.
type Server struct {
	registry *Registry
	log      *log.Logger
}

// NewServer wraps registry in a connection dispatcher.
func NewServer(registry *Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{registry: registry, log: logger}
}

// Serve accepts connections on ln until it is closed, handling each on
// its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return
	}

	if _, err := peercred.Check(uc); err != nil {
		s.log.Warn("rejecting connection", "err", err)
		_ = proto.WriteVersionHeader(conn, proto.ProtocolVersion)
		_ = proto.WriteAttachReply(conn, proto.AttachReply{
			Status: proto.AttachForbidden,
			Reason: err.Error(),
		})
		conn.Close()
		return
	}

	if err := proto.WriteVersionHeader(conn, proto.ProtocolVersion); err != nil {
		conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(headerReadTimeout))
	header, err := proto.ReadConnectHeader(conn)
	if err != nil {
		conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch header.Kind {
	case proto.ConnectAttach:
		s.handleAttach(conn, header.Attach)
	case proto.ConnectList:
		s.handleList(conn)
	case proto.ConnectDetach:
		s.handleDetach(conn, header.Sessions)
	case proto.ConnectKill:
		s.handleKill(conn, header.Sessions)
	case proto.ConnectSessionMessage:
		s.handleSessionMessage(conn, header.SessionMessage)
	default:
		conn.Close()
	}
}

func (s *Server) handleAttach(conn net.Conn, req *proto.AttachRequest) {
	if req == nil {
		conn.Close()
		return
	}

	var ttl *time.Duration
	if req.TTLSecs != nil {
		d := time.Duration(*req.TTLSecs) * time.Second
		ttl = &d
	}

	outcome := s.registry.Attach(AttachSpec{
		Name: req.Name,
		Size: ptypair.Size{Rows: req.LocalTTYSize.Rows, Cols: req.LocalTTYSize.Cols},
		Env:  req.LocalEnv,
		TTL:  ttl,
		Cmd:  req.Cmd,
	})

	if err := proto.WriteAttachReply(conn, proto.AttachReply{Status: outcome.Status, Reason: outcome.Reason}); err != nil {
		conn.Close()
		return
	}

	if outcome.Status != proto.AttachAttached && outcome.Status != proto.AttachCreated {
		conn.Close()
		return
	}

	s.registry.BidiStream(outcome.Session, conn, ptypair.Size{Rows: req.LocalTTYSize.Rows, Cols: req.LocalTTYSize.Cols})
}

func (s *Server) handleList(conn net.Conn) {
	defer conn.Close()
	reply := s.registry.List()
	_ = proto.WriteListReply(conn, reply)
}

func (s *Server) handleDetach(conn net.Conn, names []string) {
	defer conn.Close()
	reply := s.registry.Detach(names)
	_ = proto.WriteDetachReply(conn, reply)
}

func (s *Server) handleKill(conn net.Conn, names []string) {
	defer conn.Close()
	reply := s.registry.Kill(names)
	_ = proto.WriteKillReply(conn, reply)
}

func (s *Server) handleSessionMessage(conn net.Conn, req *proto.SessionMessageRequest) {
	defer conn.Close()
	if req == nil {
		return
	}
	reply := s.registry.SessionMessage(*req)
	_ = proto.WriteSessionMessageReply(conn, reply)
}
