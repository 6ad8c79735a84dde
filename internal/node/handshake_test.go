package node

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipnode/internal/protocol"
)

// Scenario: init for n1 is acknowledged with msg_id 0 correlated to the init.
func TestHandshake_AcknowledgesInit(t *testing.T) {
	src := &queueSource{msgs: []protocol.Message{
		{Src: "c0", Dest: "n1", Body: protocol.Body{MsgID: protocol.ID(1), Payload: protocol.Init{NodeID: "n1", NodeIDs: []string{"n1"}}}},
	}}
	out := &recorder{}

	st, err := Handshake(src, out, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "n1", st.NodeID)
	assert.Equal(t, []string{"n1"}, st.NodeIDs)
	assert.Equal(t, uint64(1), st.NextMsgID)
	assert.Equal(t, 0, st.Values.Len())
	assert.Empty(t, st.Values.Neighbours())

	require.Len(t, out.sent, 1)
	reply := out.sent[0]
	assert.Equal(t, protocol.InitOk{}, reply.Body.Payload)
	assert.Equal(t, "n1", reply.Src)
	assert.Equal(t, "c0", reply.Dest)
	assert.Equal(t, uint64(0), *reply.Body.MsgID)
	assert.Equal(t, uint64(1), *reply.Body.InReplyTo)
}

func TestHandshake_RejectsOtherFirstMessage(t *testing.T) {
	src := &queueSource{msgs: []protocol.Message{request("c1", 1, protocol.Echo{Echo: "early"})}}
	out := &recorder{}

	_, err := Handshake(src, out, zaptest.NewLogger(t))

	var violation *protocol.ProtocolViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, protocol.TypeEcho, violation.Msg.Type())
	assert.Empty(t, out.sent, "nothing is written before a valid init")
}

func TestHandshake_RejectsEmptyNodeID(t *testing.T) {
	src := &queueSource{msgs: []protocol.Message{request("c0", 1, protocol.Init{NodeIDs: []string{"n1"}})}}

	_, err := Handshake(src, &recorder{}, zaptest.NewLogger(t))

	var violation *protocol.ProtocolViolationError
	require.ErrorAs(t, err, &violation)
}

func TestHandshake_EmptyInput(t *testing.T) {
	_, err := Handshake(&queueSource{}, &recorder{}, zaptest.NewLogger(t))

	var transportErr *protocol.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestHandshake_WriteFailure(t *testing.T) {
	src := &queueSource{msgs: []protocol.Message{request("c0", 1, protocol.Init{NodeID: "n1", NodeIDs: []string{"n1"}})}}
	out := &recorder{err: errClosed}

	_, err := Handshake(src, out, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, errClosed)
}
