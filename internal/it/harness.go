package it

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gossipnode/internal/node"
	"gossipnode/internal/protocol"
	"gossipnode/internal/telemetry"
	"gossipnode/internal/transport"
)

// ClientID is the source address used for every client request.
const ClientID = "c1"

// Cluster runs a set of nodes in-process, each over its own pair of pipes,
// and routes their output: node-addressed messages go to the destination's
// input, replies to ClientID complete pending requests.
type Cluster struct {
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	nodes   map[string]*Node
	order   []string
	blocked map[link]bool
	pending map[uint64]chan protocol.Message
	nextID  uint64
	dropped int

	wg sync.WaitGroup
}

// Node is one cluster member.
type Node struct {
	ID      string
	Metrics *telemetry.Metrics

	inbox  *mailbox
	cancel context.CancelFunc
	done   chan error
}

type link struct{ from, to string }

// NewCluster starts one node per id. Nodes stay idle until Init.
func NewCluster(ids []string, interval time.Duration, logger *zap.Logger) *Cluster {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cluster{
		logger:   logger,
		interval: interval,
		nodes:    make(map[string]*Node, len(ids)),
		blocked:  make(map[link]bool),
		pending:  make(map[uint64]chan protocol.Message),
	}
	for _, id := range ids {
		c.startNode(id)
	}
	return c
}

func (c *Cluster) startNode(id string) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		ID:      id,
		Metrics: telemetry.New(),
		inbox:   newMailbox(inW),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	c.nodes[id] = n
	c.order = append(c.order, id)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		err := node.Serve(ctx, inR, outW, node.Options{
			GossipInterval: c.interval,
			JoinTimeout:    time.Second,
			Logger:         c.logger.Named(id),
			Metrics:        n.Metrics,
		})
		outW.Close()
		inR.Close()
		n.done <- err
	}()
	go func() {
		defer c.wg.Done()
		n.inbox.run()
	}()
	go func() {
		defer c.wg.Done()
		c.route(id, transport.NewReader(outR))
	}()
}

// route forwards everything a node writes until its output closes.
func (c *Cluster) route(from string, r *transport.Reader) {
	for {
		msg, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("router stopped", zap.String("node", from), zap.Error(err))
			}
			return
		}

		if msg.Dest == ClientID {
			c.complete(msg)
			continue
		}

		c.mu.Lock()
		dest, ok := c.nodes[msg.Dest]
		cut := c.blocked[link{from, msg.Dest}]
		if cut {
			c.dropped++
		}
		c.mu.Unlock()

		if !ok || cut {
			continue
		}
		if err := dest.deliver(msg); err != nil && !errors.Is(err, errMailboxClosed) {
			c.logger.Warn("delivery failed", zap.String("from", from), zap.String("to", msg.Dest), zap.Error(err))
		}
	}
}

func (c *Cluster) complete(msg protocol.Message) {
	if msg.Body.InReplyTo == nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[*msg.Body.InReplyTo]
	delete(c.pending, *msg.Body.InReplyTo)
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// Request sends payload from ClientID to the node and waits for the reply.
func (c *Cluster) Request(ctx context.Context, nodeID string, payload protocol.Payload) (protocol.Message, error) {
	c.mu.Lock()
	n, ok := c.nodes[nodeID]
	if !ok {
		c.mu.Unlock()
		return protocol.Message{}, fmt.Errorf("node %s not found", nodeID)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan protocol.Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := protocol.Message{
		Src:  ClientID,
		Dest: nodeID,
		Body: protocol.Body{MsgID: protocol.ID(id), Payload: payload},
	}
	if err := n.deliver(req); err != nil {
		c.forget(id)
		return protocol.Message{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case err := <-n.done:
		n.done <- err
		c.forget(id)
		return protocol.Message{}, fmt.Errorf("node %s exited: %v", nodeID, err)
	case <-ctx.Done():
		c.forget(id)
		return protocol.Message{}, fmt.Errorf("%s to %s: %w", payload.Type(), nodeID, ctx.Err())
	}
}

func (c *Cluster) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Init hands every node its identity and the full member list.
func (c *Cluster) Init(ctx context.Context) error {
	ids := c.IDs()
	for _, id := range ids {
		reply, err := c.Request(ctx, id, protocol.Init{NodeID: id, NodeIDs: ids})
		if err != nil {
			return fmt.Errorf("init %s: %w", id, err)
		}
		if _, ok := reply.Body.Payload.(protocol.InitOk); !ok {
			return fmt.Errorf("init %s: unexpected reply %s", id, reply.Type())
		}
	}
	return nil
}

// Topology sends the same topology to every node.
func (c *Cluster) Topology(ctx context.Context, topology map[string][]string) error {
	for _, id := range c.IDs() {
		if _, err := c.Request(ctx, id, protocol.Topology{Topology: topology}); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast submits value to one node.
func (c *Cluster) Broadcast(ctx context.Context, nodeID string, value int) error {
	reply, err := c.Request(ctx, nodeID, protocol.Broadcast{Message: value})
	if err != nil {
		return err
	}
	if _, ok := reply.Body.Payload.(protocol.BroadcastOk); !ok {
		return fmt.Errorf("broadcast to %s: unexpected reply %s", nodeID, reply.Type())
	}
	return nil
}

// Read returns the node's known values.
func (c *Cluster) Read(ctx context.Context, nodeID string) ([]int, error) {
	reply, err := c.Request(ctx, nodeID, protocol.Read{})
	if err != nil {
		return nil, err
	}
	readOk, ok := reply.Body.Payload.(protocol.ReadOk)
	if !ok {
		return nil, fmt.Errorf("read from %s: unexpected reply %s", nodeID, reply.Type())
	}
	return sorted(readOk.Messages), nil
}

// Partition drops traffic between a and b in both directions.
func (c *Cluster) Partition(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[link{a, b}] = true
	c.blocked[link{b, a}] = true
}

// Heal restores every link.
func (c *Cluster) Heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = make(map[link]bool)
}

// Dropped reports how many node-to-node messages partitions have discarded.
func (c *Cluster) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// IDs returns node ids in start order.
func (c *Cluster) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Node returns a node by ID.
func (c *Cluster) Node(id string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id]
}

// Stop ends every node's input and waits for them to exit. Nodes that do
// not exit within timeout are cancelled.
func (c *Cluster) Stop(timeout time.Duration) error {
	c.mu.Lock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, id := range c.order {
		nodes = append(nodes, c.nodes[id])
	}
	c.mu.Unlock()

	for _, n := range nodes {
		n.inbox.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	for _, n := range nodes {
		select {
		case nodeErr := <-n.done:
			if nodeErr != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", n.ID, nodeErr))
			}
		case <-ctx.Done():
			n.cancel()
			err = multierr.Append(err, fmt.Errorf("%s: did not stop within %s", n.ID, timeout))
		}
		n.cancel()
	}
	c.wg.Wait()
	return err
}

func (n *Node) deliver(msg protocol.Message) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return n.inbox.push(line)
}

// mailbox is an unbounded queue in front of a node's input pipe, so a
// router never blocks on a busy node.
type mailbox struct {
	w      *io.PipeWriter
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	notify chan struct{}
}

var errMailboxClosed = errors.New("mailbox closed")

func newMailbox(w *io.PipeWriter) *mailbox {
	return &mailbox{w: w, notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(line []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errMailboxClosed
	}
	m.queue = append(m.queue, line)
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// run writes queued lines in order, then closes the pipe once the mailbox
// is closed and drained.
func (m *mailbox) run() {
	for range m.notify {
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		closed := m.closed
		m.mu.Unlock()

		for _, line := range batch {
			if _, err := m.w.Write(line); err != nil {
				m.w.CloseWithError(err)
				return
			}
		}
		if closed {
			m.w.Close()
			return
		}
	}
}

// sorted returns a sorted copy.
func sorted(values []int) []int {
	out := append([]int(nil), values...)
	sort.Ints(out)
	return out
}
