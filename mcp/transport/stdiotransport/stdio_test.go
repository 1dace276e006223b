package stdiotransport_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/mcp/transport"
	"github.com/stemformatics/mcp/mcp/transport/stdiotransport"
)

func startTransport(t *testing.T) (io.Writer, *bufio.Scanner, *stdiotransport.Transport, chan *transport.Envelope) {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	tr := stdiotransport.New(stdiotransport.WithStreams(inR, outW))
	envelopes := make(chan *transport.Envelope, 8)
	tr.SetMessageHandler(func(_ context.Context, env *transport.Envelope) {
		envelopes <- env
	})

	go func() {
		_ = tr.Start(context.Background())
	}()
	t.Cleanup(func() {
		_ = tr.Close()
		_ = inW.Close()
	})
	return inW, bufio.NewScanner(outR), tr, envelopes
}

func Test_Stdio_DeliversEnvelopes(t *testing.T) {
	in, _, _, envelopes := startTransport(t)

	_, err := io.WriteString(in, `{"id":"1","tool":"get_atlas_types"}`+"\n")
	require.NoError(t, err)

	select {
	case env := <-envelopes:
		assert.Equal(t, "1", env.ID)
		assert.Equal(t, "get_atlas_types", env.Tool)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope not delivered")
	}
}

func Test_Stdio_MalformedLine(t *testing.T) {
	in, out, _, envelopes := startTransport(t)

	_, err := io.WriteString(in, "this is not an envelope\n")
	require.NoError(t, err)

	require.True(t, out.Scan())
	var res transport.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Empty(t, res.ID)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "ProtocolError", res.Error.Kind)

	// The bad line is answered, not fatal; the next envelope still flows.
	_, err = io.WriteString(in, `{"id":"2","tool":"list_tools"}`+"\n")
	require.NoError(t, err)
	select {
	case env := <-envelopes:
		assert.Equal(t, "2", env.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope not delivered after malformed line")
	}
}

func Test_Stdio_SendWritesOneLine(t *testing.T) {
	_, out, tr, _ := startTransport(t)

	// Send blocks on the synchronous io.Pipe until the scan below reads it.
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- tr.Send(context.Background(), transport.Success("9", map[string]int{"n": 1}))
	}()
	require.True(t, out.Scan())
	require.NoError(t, <-sendErr)
	var res transport.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "9", res.ID)
	assert.True(t, res.OK)
}
