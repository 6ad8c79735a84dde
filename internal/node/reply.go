package node

import (
	"fmt"

	"gossipnode/internal/protocol"
)

type replyFunc func(st *State, p protocol.Payload) protocol.Payload

// replies maps each answerable request type to its reply payload.
// Types missing here (replies, gossip) cannot be answered.
var replies = map[string]replyFunc{
	protocol.TypeEcho: func(_ *State, p protocol.Payload) protocol.Payload {
		return protocol.EchoOk{Echo: p.(protocol.Echo).Echo}
	},
	protocol.TypeGenerate: func(st *State, _ protocol.Payload) protocol.Payload {
		// Counters are per node, so prefixing the node id makes the id global.
		return protocol.GenerateOk{ID: fmt.Sprintf("%s-%d", st.NodeID, st.NextMsgID)}
	},
	protocol.TypeInit: func(*State, protocol.Payload) protocol.Payload {
		return protocol.InitOk{}
	},
	protocol.TypeBroadcast: func(*State, protocol.Payload) protocol.Payload {
		return protocol.BroadcastOk{}
	},
	protocol.TypeRead: func(st *State, _ protocol.Payload) protocol.Payload {
		return protocol.ReadOk{Messages: st.Values.Snapshot()}
	},
	protocol.TypeTopology: func(*State, protocol.Payload) protocol.Payload {
		return protocol.TopologyOk{}
	},
}

// Respond computes the reply to req from the current state without
// mutating it. The reply is addressed back to the sender, correlated by
// in_reply_to, and carries st.NextMsgID as its msg_id; the caller advances
// the counter once the reply is written.
func Respond(st *State, req protocol.Message) (protocol.Message, error) {
	build, ok := replies[req.Type()]
	if !ok {
		return protocol.Message{}, protocol.NewProtocolViolation(req, "no reply defined for %q", req.Type())
	}

	var inReplyTo *uint64
	if req.Body.MsgID != nil {
		inReplyTo = protocol.ID(*req.Body.MsgID)
	}

	return protocol.Message{
		Src:  req.Dest,
		Dest: req.Src,
		Body: protocol.Body{
			MsgID:     protocol.ID(st.NextMsgID),
			InReplyTo: inReplyTo,
			Payload:   build(st, req.Body.Payload),
		},
	}, nil
}
