package node

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"gossipnode/internal/gossip"
	"gossipnode/internal/protocol"
)

// Sender writes one message to the output stream.
type Sender interface {
	Send(msg protocol.Message) error
}

// Handshake blocks for the first input message, which must be an init.
// It fixes the node identity, acknowledges with init_ok and returns the
// fresh state with the counter already advanced past the reply.
func Handshake(src gossip.Source, out Sender, logger *zap.Logger) (*State, error) {
	msg, err := src.Next()
	if errors.Is(err, io.EOF) {
		return nil, &protocol.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, err
	}

	in, ok := msg.Body.Payload.(protocol.Init)
	if !ok {
		return nil, protocol.NewProtocolViolation(msg, "expected init as first message")
	}
	if in.NodeID == "" {
		return nil, protocol.NewProtocolViolation(msg, "init carries an empty node_id")
	}

	st := newState(in)
	reply, err := Respond(st, msg)
	if err != nil {
		return nil, err
	}
	if err := out.Send(reply); err != nil {
		return nil, err
	}
	st.NextMsgID++

	logger.Info("handshake complete",
		zap.String("node_id", st.NodeID),
		zap.Strings("node_ids", st.NodeIDs))

	return st, nil
}
