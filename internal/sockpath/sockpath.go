// Package sockpath resolves the daemon's Unix domain socket location
// and namespaces any per-socket state directory when the resolved (or
// user-specified) path is long enough to need a shorter alias.
package sockpath

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
)

const socketName = "shoal.socket"

// maxSocketPathLen is the conservative sockaddr_un.sun_path limit
// (108 on Linux, 104 on macOS); 100 leaves headroom for the filename.
const maxSocketPathLen = 100

// Default resolves the daemon's socket path per spec §6:
// $XDG_RUNTIME_DIR/shoal/shoal.socket, falling back to
// $HOME/.local/run/shoal/shoal.socket when XDG_RUNTIME_DIR is unset.
func Default() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "shoal", socketName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sockpath: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "run", "shoal", socketName), nil
}

// Resolve returns the socket path to listen/dial on. If the caller
// supplied an explicit path it's used as-is unless it's longer than
// the sockaddr_un limit, in which case a short, stable, hash-derived
// alias under the OS temp dir is created (as a symlink to the state
// directory containing the real path) and returned instead, so any
// per-socket state directory stays namespaced to the original path.
func Resolve(userPath string) (string, error) {
	path := userPath
	if path == "" {
		var err error
		path, err = Default()
		if err != nil {
			return "", err
		}
	}

	if len(path) <= maxSocketPathLen {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return "", fmt.Errorf("sockpath: create socket dir: %w", err)
		}
		return path, nil
	}

	realDir := filepath.Dir(path)
	hash := sha256.Sum256([]byte(realDir))
	shortDir := filepath.Join(os.TempDir(), fmt.Sprintf("shoal-%x", hash[:8]))

	if target, err := os.Readlink(shortDir); err == nil && target == realDir {
		return filepath.Join(shortDir, socketName), nil
	}

	if err := os.MkdirAll(realDir, 0o700); err != nil {
		return "", fmt.Errorf("sockpath: create socket dir: %w", err)
	}
	os.Remove(shortDir)
	if err := os.Symlink(realDir, shortDir); err != nil {
		// Fall back to the real (long) path; the caller's net.Listen
		// will surface the eventual sockaddr_un error if it truly
		// can't fit.
		return path, nil
	}
	return filepath.Join(shortDir, socketName), nil
}
