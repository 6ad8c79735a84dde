package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// variant describes how one body type is read off the wire.
type variant struct {
	required []string
	decode   func(data []byte) (Payload, error)
}

var variants = map[string]variant{
	TypeEcho:        {required: []string{"echo"}, decode: decodeAs[Echo]},
	TypeEchoOk:      {required: []string{"echo"}, decode: decodeAs[EchoOk]},
	TypeInit:        {required: []string{"node_id", "node_ids"}, decode: decodeAs[Init]},
	TypeInitOk:      {decode: decodeAs[InitOk]},
	TypeGenerate:    {decode: decodeAs[Generate]},
	TypeGenerateOk:  {required: []string{"id"}, decode: decodeAs[GenerateOk]},
	TypeBroadcast:   {required: []string{"message"}, decode: decodeAs[Broadcast]},
	TypeBroadcastOk: {decode: decodeAs[BroadcastOk]},
	TypeRead:        {decode: decodeAs[Read]},
	TypeReadOk:      {required: []string{"messages"}, decode: decodeAs[ReadOk]},
	TypeTopology:    {required: []string{"topology"}, decode: decodeAs[Topology]},
	TypeTopologyOk:  {decode: decodeAs[TopologyOk]},
	TypeGossip:      {required: []string{"messages"}, decode: decodeAs[Gossip]},
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses one wire line into a Message.
// Any failure is returned as a *DecodeError.
func Decode(line []byte) (Message, error) {
	var env struct {
		Src  string          `json:"src"`
		Dest string          `json:"dest"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return Message{}, &DecodeError{Line: string(line), Err: err}
	}
	if len(env.Body) == 0 || bytes.Equal(env.Body, []byte("null")) {
		return Message{}, &DecodeError{Line: string(line), Err: errors.New("missing body")}
	}

	var body Body
	if err := body.UnmarshalJSON(env.Body); err != nil {
		return Message{}, &DecodeError{Line: string(line), Err: err}
	}

	return Message{Src: env.Src, Dest: env.Dest, Body: body}, nil
}

// Encode renders m as a single JSON line terminated by '\n'.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type(), err)
	}
	return append(data, '\n'), nil
}

// UnmarshalJSON reads a flattened body: the correlation ids, the "type"
// discriminant and the payload fields of that type.
func (b *Body) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	rawType, ok := fields["type"]
	if !ok {
		return errors.New("body has no type")
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return fmt.Errorf("body type: %w", err)
	}

	v, ok := variants[typ]
	if !ok {
		return fmt.Errorf("unknown body type %q", typ)
	}
	for _, name := range v.required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%s: missing field %q", typ, name)
		}
	}

	msgID, err := decodeID(fields, "msg_id")
	if err != nil {
		return err
	}
	inReplyTo, err := decodeID(fields, "in_reply_to")
	if err != nil {
		return err
	}

	payload, err := v.decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", typ, err)
	}

	*b = Body{MsgID: msgID, InReplyTo: inReplyTo, Payload: payload}
	return nil
}

// MarshalJSON flattens the payload fields next to the type and ids.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, errors.New("body has no payload")
	}

	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	fields["type"], _ = json.Marshal(b.Payload.Type())
	if b.MsgID != nil {
		fields["msg_id"], _ = json.Marshal(*b.MsgID)
	}
	if b.InReplyTo != nil {
		fields["in_reply_to"], _ = json.Marshal(*b.InReplyTo)
	}

	return json.Marshal(fields)
}

// MarshalJSON writes an empty set as [] rather than null.
func (r ReadOk) MarshalJSON() ([]byte, error) {
	type plain ReadOk
	if r.Messages == nil {
		r.Messages = []int{}
	}
	return json.Marshal(plain(r))
}

// MarshalJSON writes an empty set as [] rather than null.
func (g Gossip) MarshalJSON() ([]byte, error) {
	type plain Gossip
	if g.Messages == nil {
		g.Messages = []int{}
	}
	return json.Marshal(plain(g))
}

func decodeID(fields map[string]json.RawMessage, name string) (*uint64, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &id, nil
}
