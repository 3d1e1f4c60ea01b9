package daemon

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ianremillard/shoal/internal/config"
	"github.com/ianremillard/shoal/internal/proto"
	"github.com/ianremillard/shoal/internal/ptypair"
)

// killGrace is how long Registry.Kill waits after SIGHUP before
// escalating to SIGKILL.
const killGrace = 500 * time.Millisecond

// Registry is the process-wide map of session name to Session, the
// sole owner of every Session (spec §3 invariants, §4.6).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg config.Config
	log *log.Logger
}

// NewRegistry creates an empty registry that spawns new sessions
// using cfg as their configuration snapshot.
func NewRegistry(cfg config.Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		log:      logger,
	}
}

// AttachSpec describes an Attach request's inputs (spec §4.6).
type AttachSpec struct {
	Name     string
	Size     ptypair.Size
	Env      map[string]string
	TTL      *time.Duration
	Cmd      []string
}

// AttachOutcome bundles an attach's status with the session it
// resolved to, so the caller can proceed to bidiStream without a
// second lookup.
type AttachOutcome struct {
	Status  proto.AttachStatus
	Reason  string
	Session *Session
}

// Attach implements spec §4.6's attach(name, local_size, env, ttl,
// cmd) operation.
func (r *Registry) Attach(spec AttachSpec) AttachOutcome {
	r.mu.Lock()
	existing, ok := r.sessions[spec.Name]
	var stale *Session
	if ok && existing.exited() {
		delete(r.sessions, spec.Name)
		stale = existing
		ok = false
	}
	r.mu.Unlock()

	if stale != nil {
		stale.close()
	}

	if ok {
		return attachExisting(existing)
	}

	// Spawning a session (fork/exec under ptypair.Spawn) happens with
	// the registry lock released, so it never blocks unrelated
	// sessions' Attach/Detach/Kill/List/SessionMessage calls (spec §5:
	// "held only for map lookup/mutation, never across I/O").
	env, err := buildEnv(spec.Name, spec.Env, r.cfg)
	if err != nil {
		return AttachOutcome{Status: proto.AttachUnexpectedError, Reason: err.Error()}
	}
	argv := shellArgv(spec.Cmd, r.cfg)

	home, _ := os.UserHomeDir()

	session, err := newSession(sessionSpec{
		Name:   spec.Name,
		Size:   spec.Size,
		Env:    env,
		Cwd:    home,
		Argv:   argv,
		Cfg:    r.cfg,
		TTL:    spec.TTL,
		Logger: r.log,
	}, r.onChildExit)
	if err != nil {
		return AttachOutcome{Status: proto.AttachUnexpectedError, Reason: err.Error()}
	}

	r.mu.Lock()
	if racing, ok := r.sessions[spec.Name]; ok {
		// Another Attach for the same name won the race while this one
		// was spawning unlocked; discard our session and defer to theirs.
		r.mu.Unlock()
		session.close()
		return attachExisting(racing)
	}
	r.sessions[spec.Name] = session
	r.mu.Unlock()

	if !session.tryAttach() {
		// Unreachable in practice (the session was just created), but
		// keep the contract uniform with the reuse path above.
		return AttachOutcome{Status: proto.AttachBusy, Session: session}
	}
	return AttachOutcome{Status: proto.AttachCreated, Session: session}
}

// attachExisting implements the reuse half of attach(): try to take
// the already-registered session's attachment slot without blocking.
func attachExisting(session *Session) AttachOutcome {
	if !session.tryAttach() {
		return AttachOutcome{Status: proto.AttachBusy, Session: session}
	}
	return AttachOutcome{Status: proto.AttachAttached, Session: session}
}

// onChildExit is invoked by a session's reaper goroutine once its
// child has exited. It only removes and closes session if the
// registry still maps its name to this exact instance: a detached
// session can be reaped, deleted, and replaced by a fresh Attach for
// the same name before this callback runs, and that race must not let
// the stale callback tear down the new session.
func (r *Registry) onChildExit(session *Session) {
	r.mu.Lock()
	current, ok := r.sessions[session.Name]
	if ok && current == session {
		delete(r.sessions, session.Name)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		session.close()
	}
}

// Detach implements spec §4.6's detach(names).
func (r *Registry) Detach(names []string) proto.DetachReply {
	var reply proto.DetachReply
	for _, name := range names {
		r.mu.Lock()
		session, ok := r.sessions[name]
		r.mu.Unlock()
		if !ok {
			reply.NotFound = append(reply.NotFound, name)
			continue
		}
		if !session.attached() {
			reply.NotAttached = append(reply.NotAttached, name)
			continue
		}
		session.actionDetach()
	}
	return reply
}

// Kill implements spec §4.6's kill(names): remove the entry, then
// SIGHUP, wait killGrace, and escalate to SIGKILL.
func (r *Registry) Kill(names []string) proto.KillReply {
	var reply proto.KillReply
	for _, name := range names {
		r.mu.Lock()
		session, ok := r.sessions[name]
		if ok {
			delete(r.sessions, name)
		}
		r.mu.Unlock()
		if !ok {
			reply.NotFound = append(reply.NotFound, name)
			continue
		}
		if err := session.kill(killGrace); err != nil {
			r.log.Warn("kill failed", "session", name, "err", err)
		}
		session.close()
	}
	return reply
}

// List implements spec §4.6's list().
func (r *Registry) List() proto.ListReply {
	r.mu.Lock()
	defer r.mu.Unlock()

	reply := proto.ListReply{Sessions: make([]proto.SessionSummary, 0, len(r.sessions))}
	for name, session := range r.sessions {
		status := proto.SessionDisconnected
		if session.attached() {
			status = proto.SessionAttached
		}
		reply.Sessions = append(reply.Sessions, proto.SessionSummary{
			Name:            name,
			StartedAtUnixMs: session.StartedAt.UnixMilli(),
			Status:          status,
		})
	}
	return reply
}

// SessionMessage implements spec §4.6's session_message(name,
// payload): an out-of-band RPC (resize or detach) routed to an
// already-attached session without disturbing its data stream.
func (r *Registry) SessionMessage(req proto.SessionMessageRequest) proto.SessionMessageReply {
	r.mu.Lock()
	session, ok := r.sessions[req.Name]
	r.mu.Unlock()
	if !ok {
		return proto.SessionMessageReply{Kind: proto.SessionMessageNotFound}
	}
	if !session.attached() {
		return proto.SessionMessageReply{Kind: proto.SessionMessageNotAttached}
	}

	switch req.Kind {
	case proto.SessionMessageResize:
		if req.Resize != nil {
			session.resize(ptypair.Size{Rows: req.Resize.Rows, Cols: req.Resize.Cols})
		}
		return proto.SessionMessageReply{Kind: proto.SessionMessageResizeOK}
	case proto.SessionMessageDetach:
		session.actionDetach()
		return proto.SessionMessageReply{Kind: proto.SessionMessageDetachOK}
	default:
		return proto.SessionMessageReply{Kind: proto.SessionMessageNotFound}
	}
}

// BidiStream runs the bidi streamer for an already-attached session's
// connection and releases the attachment slot when it returns,
// removing the session from the registry if the child had exited.
func (r *Registry) BidiStream(session *Session, conn net.Conn, size ptypair.Size) {
	defer session.releaseAttach()

	childDone := session.bidiStream(conn, size)
	if childDone {
		// session.close() is idempotent and safe even if the reaper
		// goroutine's onChildExit already raced in and removed this
		// same instance; only delete from the map if it's still the
		// one registered (guards against a same-named replacement).
		r.mu.Lock()
		if current, ok := r.sessions[session.Name]; ok && current == session {
			delete(r.sessions, session.Name)
		}
		r.mu.Unlock()
		session.close()
	}
}
