package proto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVersionHeader(&buf, ProtocolVersion))

	got, err := ReadVersionHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, got)
}

func TestConnectHeaderRoundTrip(t *testing.T) {
	cases := []ConnectHeader{
		{Kind: ConnectAttach, Attach: &AttachRequest{
			Name:         "alpha",
			LocalTTYSize: TTYSize{Rows: 24, Cols: 80},
			LocalEnv:     map[string]string{"TERM": "xterm-256color"},
		}},
		{Kind: ConnectList},
		{Kind: ConnectDetach, Sessions: []string{"alpha", "beta"}},
		{Kind: ConnectKill, Sessions: []string{"gamma"}},
		{Kind: ConnectSessionMessage, SessionMessage: &SessionMessageRequest{
			Name: "delta", Kind: SessionMessageResize, Resize: &TTYSize{Rows: 40, Cols: 100},
		}},
	}

	for _, c := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteConnectHeader(&buf, c))
		got, err := ReadConnectHeader(&buf)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestDataChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("echo hi\n")
	require.NoError(t, WriteDataChunk(&buf, payload))

	kind, got, err := ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkData, kind)
	assert.Equal(t, payload, got)
}

func TestHeartbeatChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeartbeatChunk(&buf))

	kind, got, err := ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkHeartbeat, kind)
	assert.Empty(t, got)
}

func TestExitStatusChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExitStatusChunk(&buf, 17))

	kind, got, err := ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkExitStatus, kind)
	assert.Equal(t, int32(17), DecodeExitStatus(got))
}

// TestExitStatusChunkHasNoLengthPrefix pins the wire-format nuance
// recovered from the original implementation: unlike Data/Heartbeat,
// an ExitStatus chunk is exactly 5 bytes total (tag + 4 raw bytes),
// never 9 (tag + 4-byte length + 4-byte payload).
func TestExitStatusChunkHasNoLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExitStatusChunk(&buf, -1))
	assert.Equal(t, 5, buf.Len())
}

func TestChunkStreamMixed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDataChunk(&buf, []byte("a")))
	require.NoError(t, WriteHeartbeatChunk(&buf))
	require.NoError(t, WriteDataChunk(&buf, []byte("bc")))
	require.NoError(t, WriteExitStatusChunk(&buf, 0))

	kind, payload, err := ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkData, kind)
	assert.Equal(t, []byte("a"), payload)

	kind, payload, err = ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkHeartbeat, kind)
	assert.Empty(t, payload)

	kind, payload, err = ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkData, kind)
	assert.Equal(t, []byte("bc"), payload)

	kind, payload, err = ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, ChunkExitStatus, kind)
	assert.Equal(t, int32(0), DecodeExitStatus(payload))

	assert.Equal(t, 0, buf.Len())
}
