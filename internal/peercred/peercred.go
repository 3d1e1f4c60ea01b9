// Package peercred implements the daemon's connection-level peer
// check: every accepted connection must come from a process owned by
// the same user and running the same executable as the daemon itself.
package peercred

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Credentials is the resolved identity of a connected peer.
type Credentials struct {
	UID  uint32
	GID  uint32
	PID  int32
	Exe  string
}

// Check reads SO_PEERCRED off conn and compares it against the
// running daemon process (same UID, same resolved executable path).
// A mismatch returns a non-nil error whose message is suitable to
// surface verbatim in an AttachReply's Forbidden reason, per the
// original's human-readable Forbidden messages.
func Check(conn *net.UnixConn) (Credentials, error) {
	creds, err := read(conn)
	if err != nil {
		return Credentials{}, fmt.Errorf("peercred: %w", err)
	}

	selfUID := uint32(os.Getuid())
	if creds.UID != selfUID {
		return creds, fmt.Errorf("connecting user has a different uid than the daemon process itself")
	}

	selfExe, err := os.Executable()
	if err != nil {
		// Can't resolve our own exe path; fail closed rather than
		// silently skip the check.
		return creds, fmt.Errorf("could not resolve daemon executable path: %w", err)
	}
	if creds.Exe != "" && creds.Exe != selfExe {
		return creds, fmt.Errorf("connecting process has a different executable path than the daemon process itself")
	}

	return creds, nil
}

// read extracts the raw SO_PEERCRED credentials and (best-effort, via
// /proc on Linux) the peer's executable path.
func read(conn *net.UnixConn) (Credentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Credentials{}, err
	}

	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Credentials{}, err
	}
	if sockErr != nil {
		return Credentials{}, sockErr
	}

	creds := Credentials{UID: ucred.Uid, GID: ucred.Gid, PID: ucred.Pid}
	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", ucred.Pid)); err == nil {
		creds.Exe = exe
	}
	return creds, nil
}
