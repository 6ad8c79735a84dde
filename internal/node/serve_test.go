package node

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipnode/internal/protocol"
	"gossipnode/internal/telemetry"
)

func serveLines(t *testing.T, lines ...string) ([]protocol.Message, error) {
	t.Helper()
	var out bytes.Buffer
	err := Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, Options{
		GossipInterval: time.Hour,
		JoinTimeout:    time.Second,
		Logger:         zaptest.NewLogger(t),
		Metrics:        telemetry.New(),
	})

	var msgs []protocol.Message
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		msg, decodeErr := protocol.Decode([]byte(line))
		require.NoError(t, decodeErr, "node wrote an undecodable line: %s", line)
		msgs = append(msgs, msg)
	}
	return msgs, err
}

const initN1 = `{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`

func TestServe_Session(t *testing.T) {
	msgs, err := serveLines(t,
		initN1,
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"hi"}}`,
		`{"src":"c1","dest":"n1","body":{"type":"generate","msg_id":2}}`,
		`{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":3,"topology":{"n1":["n2"],"n2":["n1"]}}}`,
		`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":4,"message":1}}`,
		`{"src":"n2","dest":"n1","body":{"type":"gossip","messages":[2,3]}}`,
		`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":5}}`,
	)
	require.NoError(t, err, "end of input is a clean shutdown")

	want := []struct {
		payload   protocol.Payload
		msgID     uint64
		inReplyTo uint64
	}{
		{protocol.InitOk{}, 0, 1},
		{protocol.EchoOk{Echo: "hi"}, 1, 1},
		{protocol.GenerateOk{ID: "n1-2"}, 2, 2},
		{protocol.TopologyOk{}, 3, 3},
		{protocol.BroadcastOk{}, 4, 4},
		{protocol.ReadOk{Messages: []int{1, 2, 3}}, 5, 5},
	}

	require.Len(t, msgs, len(want))
	for i, w := range want {
		assert.Equal(t, w.payload, msgs[i].Body.Payload, "reply %d", i)
		assert.Equal(t, w.msgID, *msgs[i].Body.MsgID, "reply %d msg_id", i)
		assert.Equal(t, w.inReplyTo, *msgs[i].Body.InReplyTo, "reply %d in_reply_to", i)
		assert.Equal(t, "n1", msgs[i].Src)
	}
}

func TestServe_EmptyAfterInit(t *testing.T) {
	msgs, err := serveLines(t, initN1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.InitOk{}, msgs[0].Body.Payload)
}

func TestServe_DecodeFailureIsFatal(t *testing.T) {
	msgs, err := serveLines(t,
		initN1,
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"a"}}`,
		`{"src":"c1","dest":"n1","body":{"type":"launch","msg_id":2}}`,
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":3,"echo":"b"}}`,
	)

	var decodeErr *protocol.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Line, "launch")
	assert.Len(t, msgs, 2, "messages before the bad line are still answered")
}

func TestServe_MissingInit(t *testing.T) {
	msgs, err := serveLines(t, `{"src":"c1","dest":"n1","body":{"type":"read","msg_id":1}}`)

	var violation *protocol.ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Empty(t, msgs)
}

func TestServe_CancelBeforeInit(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, pr, out, Options{Logger: zaptest.NewLogger(t)})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation before init is a clean shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel while waiting for init")
	}
	assert.Empty(t, out.Messages())
}

func TestServe_GossipsOnTicks(t *testing.T) {
	pr, pw := io.Pipe()
	feed := func(line string) {
		_, err := pw.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), pr, out, Options{
			GossipInterval: 10 * time.Millisecond,
			Logger:         zaptest.NewLogger(t),
		})
	}()

	feed(initN1)
	feed(`{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":2,"topology":{"n1":["n2"]}}}`)
	feed(`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":3,"message":42}}`)

	require.Eventually(t, func() bool {
		for _, msg := range out.Messages() {
			if g, ok := msg.Body.Payload.(protocol.Gossip); ok && msg.Dest == "n2" && len(g.Messages) == 1 && g.Messages[0] == 42 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after end of input")
	}
}

// syncBuffer collects output written by the control loop goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Messages() []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var msgs []protocol.Message
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if msg, err := protocol.Decode([]byte(line)); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}
