package peercred

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsSelfConnection(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "peercred.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	serverConns := make(chan *net.UnixConn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		serverConns <- c.(*net.UnixConn)
	}()

	client, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer client.Close()

	select {
	case server := <-serverConns:
		defer server.Close()
		creds, err := Check(server)
		require.NoError(t, err)
		assert.Equal(t, uint32(os.Getuid()), creds.UID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side accept")
	}
}
