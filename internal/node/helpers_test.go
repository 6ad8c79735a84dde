package node

import (
	"errors"
	"io"

	"gossipnode/internal/protocol"
	"gossipnode/internal/store"
)

// recorder is a Sender that keeps every message, optionally failing after
// failAfter successful sends.
type recorder struct {
	sent      []protocol.Message
	failAfter int
	err       error
}

func (r *recorder) Send(msg protocol.Message) error {
	if r.err != nil && len(r.sent) >= r.failAfter {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// queueSource is a gossip.Source over a fixed slice, ending with io.EOF.
type queueSource struct {
	msgs []protocol.Message
}

func (q *queueSource) Next() (protocol.Message, error) {
	if len(q.msgs) == 0 {
		return protocol.Message{}, io.EOF
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, nil
}

type statusRecorder struct {
	calls []bool
}

func (s *statusRecorder) SetServing(serving bool) {
	s.calls = append(s.calls, serving)
}

var errClosed = errors.New("stdout closed")

func request(src string, msgID uint64, p protocol.Payload) protocol.Message {
	return protocol.Message{Src: src, Dest: "n1", Body: protocol.Body{MsgID: protocol.ID(msgID), Payload: p}}
}

func testState(values ...int) *State {
	st := &State{NodeID: "n1", NodeIDs: []string{"n1", "n2"}, Values: store.New()}
	st.Values.Merge(values)
	return st
}
