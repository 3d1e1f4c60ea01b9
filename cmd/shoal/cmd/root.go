// Package cmd implements the shoal CLI's cobra command tree: attach,
// list, detach, and kill, each a thin wrapper over a connection to
// shoald's Unix domain socket.
package cmd

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianremillard/shoal/internal/proto"
	"github.com/ianremillard/shoal/internal/sockpath"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	var socketFlag string

	rootCmd := &cobra.Command{
		Use:   "shoal",
		Short: "Persistent shell session multiplexer",
		Long:  "shoal keeps named shell sessions alive in a background daemon so you can detach and reattach across SSH disconnects and laptop sleep.",
	}
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "daemon socket path (env: SHOAL_SOCKET)")

	rootCmd.AddCommand(
		newAttachCmd(&socketFlag),
		newListCmd(&socketFlag),
		newDetachCmd(&socketFlag),
		newKillCmd(&socketFlag),
	)

	return rootCmd
}

// resolveSocket returns the socket path to dial: the --socket flag,
// then $SHOAL_SOCKET, then the default XDG-derived location.
func resolveSocket(flagVal string) (string, error) {
	if flagVal != "" {
		return sockpath.Resolve(flagVal)
	}
	if env := os.Getenv("SHOAL_SOCKET"); env != "" {
		return sockpath.Resolve(env)
	}
	return sockpath.Default()
}

// dial connects to the daemon and performs the version handshake,
// returning the connection positioned right after it so the caller
// can write a ConnectHeader next.
func dial(socketFlag string) (net.Conn, error) {
	path, err := resolveSocket(socketFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve socket path: %w", err)
	}
	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to shoald at %s (is it running?): %w", path, err)
	}
	if _, err := proto.ReadVersionHeader(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading daemon version header: %w", err)
	}
	return conn, nil
}
