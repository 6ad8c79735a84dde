package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gossipnode/internal/protocol"
)

func TestReader_ReadsLinesInOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":1,"echo":"a"}}`,
		``,
		`   `,
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":2,"echo":"b"}}`,
	}, "\n")

	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Echo{Echo: "a"}, first.Body.Payload)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, protocol.Echo{Echo: "b"}, second.Body.Payload)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_DecodeFailure(t *testing.T) {
	r := NewReader(strings.NewReader("{not json}\n"))

	_, err := r.Next()
	var decodeErr *protocol.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "{not json}", decodeErr.Line)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReader_TransportFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(failingReader{err: boom})

	_, err := r.Next()
	var transportErr *protocol.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "read", transportErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestWriter_OneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Send(protocol.Message{Src: "n1", Dest: "c1", Body: protocol.Body{
		MsgID: protocol.ID(0), InReplyTo: protocol.ID(1), Payload: protocol.EchoOk{Echo: "x"},
	}}))
	require.NoError(t, w.Send(protocol.Message{Src: "n1", Dest: "n2", Body: protocol.Body{
		Payload: protocol.Gossip{Messages: []int{1}},
	}}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"src":"n1","dest":"c1","body":{"type":"echo_ok","msg_id":0,"in_reply_to":1,"echo":"x"}}`, lines[0])
	assert.JSONEq(t, `{"src":"n1","dest":"n2","body":{"type":"gossip","messages":[1]}}`, lines[1])
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestWriter_TransportFailure(t *testing.T) {
	boom := errors.New("closed pipe")
	w := NewWriter(failingWriter{err: boom})

	err := w.Send(protocol.Message{Src: "n1", Dest: "c1", Body: protocol.Body{Payload: protocol.InitOk{}}})
	var transportErr *protocol.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "write", transportErr.Op)
	assert.ErrorIs(t, err, boom)
}
