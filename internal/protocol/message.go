package protocol

// Body type discriminants. These strings are part of the wire contract.
const (
	TypeEcho        = "echo"
	TypeEchoOk      = "echo_ok"
	TypeInit        = "init"
	TypeInitOk      = "init_ok"
	TypeGenerate    = "generate"
	TypeGenerateOk  = "generate_ok"
	TypeBroadcast   = "broadcast"
	TypeBroadcastOk = "broadcast_ok"
	TypeRead        = "read"
	TypeReadOk      = "read_ok"
	TypeTopology    = "topology"
	TypeTopologyOk  = "topology_ok"
	TypeGossip      = "gossip"
)

// Message is a single unit of traffic between two nodes or a node and a client.
type Message struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body carries the correlation ids and exactly one payload.
// MsgID and InReplyTo are nil when absent on the wire.
type Body struct {
	MsgID     *uint64
	InReplyTo *uint64
	Payload   Payload
}

// Payload is one of the closed set of body variants declared in this file.
type Payload interface {
	// Type returns the wire discriminant.
	Type() string
}

// Type returns the payload discriminant, or "" when the body is empty.
func (m Message) Type() string {
	if m.Body.Payload == nil {
		return ""
	}
	return m.Body.Payload.Type()
}

// ID returns a pointer to a copy of id, for use as MsgID or InReplyTo.
func ID(id uint64) *uint64 {
	return &id
}

type Echo struct {
	Echo string `json:"echo"`
}

type EchoOk struct {
	Echo string `json:"echo"`
}

// Init is the mandatory first message assigning a node its identity.
type Init struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

type InitOk struct{}

type Generate struct{}

type GenerateOk struct {
	ID string `json:"id"`
}

type Broadcast struct {
	Message int `json:"message"`
}

type BroadcastOk struct{}

type Read struct{}

// ReadOk carries a snapshot of every value known to the replying node.
type ReadOk struct {
	Messages []int `json:"messages"`
}

// Topology maps each node id to the neighbours it should gossip to.
type Topology struct {
	Topology map[string][]string `json:"topology"`
}

type TopologyOk struct{}

// Gossip is the one-way anti-entropy message carrying a full value set.
// It has no reply counterpart.
type Gossip struct {
	Messages []int `json:"messages"`
}

func (Echo) Type() string        { return TypeEcho }
func (EchoOk) Type() string      { return TypeEchoOk }
func (Init) Type() string        { return TypeInit }
func (InitOk) Type() string      { return TypeInitOk }
func (Generate) Type() string    { return TypeGenerate }
func (GenerateOk) Type() string  { return TypeGenerateOk }
func (Broadcast) Type() string   { return TypeBroadcast }
func (BroadcastOk) Type() string { return TypeBroadcastOk }
func (Read) Type() string        { return TypeRead }
func (ReadOk) Type() string      { return TypeReadOk }
func (Topology) Type() string    { return TypeTopology }
func (TopologyOk) Type() string  { return TypeTopologyOk }
func (Gossip) Type() string      { return TypeGossip }
