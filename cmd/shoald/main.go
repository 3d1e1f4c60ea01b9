// shoald is the background daemon that owns a pool of pty-backed
// subshells, each identified by a user-chosen session name.
//
// Usage:
//
//	shoald [--socket <path>] [--config <path>]
//
// shoald listens on a Unix domain socket (default
// $XDG_RUNTIME_DIR/shoal/shoal.socket) and serves the attach/detach/
// kill/list protocol spoken by the shoal CLI. shoal does not start it:
// the daemon must already be running when a shoal command connects.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/ianremillard/shoal/internal/config"
	"github.com/ianremillard/shoal/internal/daemon"
	"github.com/ianremillard/shoal/internal/sockpath"
)

func main() {
	defaultConfigPath, _ := config.DefaultPath()

	socketFlag := flag.String("socket", "", "socket path (env: SHOAL_SOCKET, default: $XDG_RUNTIME_DIR/shoal/shoal.socket)")
	configFlag := flag.String("config", defaultConfigPath, "config file path")
	verboseFlag := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "shoald",
	})
	if *verboseFlag || os.Getenv("SHOAL_VERBOSE") != "" {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Fatal("loading config", "err", err)
	}

	socketArg := *socketFlag
	if socketArg == "" {
		socketArg = os.Getenv("SHOAL_SOCKET")
	}
	socketPath, err := sockpath.Resolve(socketArg)
	if err != nil {
		logger.Fatal("resolving socket path", "err", err)
	}

	// A stale socket file from a daemon that was killed rather than
	// shut down cleanly would otherwise make Listen fail with
	// "address already in use".
	if err := removeStaleSocket(socketPath); err != nil {
		logger.Fatal("clearing stale socket", "err", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		logger.Fatal("listening", "socket", socketPath, "err", err)
	}
	logger.Info("listening", "socket", socketPath)

	registry := daemon.NewRegistry(cfg, logger)
	server := daemon.NewServer(registry, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		ln.Close()
		os.Remove(socketPath)
		os.Exit(0)
	}()

	if err := server.Serve(ln); err != nil {
		// Serve returns when ln is closed, which is also how the
		// signal handler above unblocks Accept during a clean
		// shutdown; only treat this as fatal if we're not already on
		// our way out.
		if !errors.Is(err, net.ErrClosed) {
			logger.Fatal("serve", "err", err)
		}
	}
}

func removeStaleSocket(path string) error {
	if _, err := net.Dial("unix", path); err == nil {
		return fmt.Errorf("shoald: another daemon is already listening on %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
