package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gossipnode/internal/gossip"
	"gossipnode/internal/protocol"
	"gossipnode/internal/store"
	"gossipnode/internal/telemetry"
)

// Phase is the control loop's lifecycle state.
type Phase int32

const (
	Starting Phase = iota
	Running
	Draining
	Stopped
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Draining:
		return "DRAINING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// StatusReporter is told when the node starts and stops serving.
type StatusReporter interface {
	SetServing(serving bool)
}

// Node is a participant after its handshake: it owns the state and is the
// only writer to the output stream.
type Node struct {
	state       *State
	out         Sender
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	status      StatusReporter
	joinTimeout time.Duration

	phase atomic.Int32
}

// New creates a node around state produced by Handshake.
func New(st *State, out Sender, opts Options) *Node {
	opts = opts.withDefaults()
	return &Node{
		state:       st,
		out:         out,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		status:      opts.Status,
		joinTimeout: opts.JoinTimeout,
	}
}

// Phase returns the current lifecycle state. Safe for concurrent use.
func (n *Node) Phase() Phase {
	return Phase(n.phase.Load())
}

// ID returns the identity fixed by the handshake.
func (n *Node) ID() string {
	return n.state.NodeID
}

// Run starts the scheduler and consumes its events until end of input, a
// fatal error, or ctx cancellation, then stops the producers. Errors from
// event handling and from producer shutdown are both returned.
func (n *Node) Run(ctx context.Context, sched *gossip.Scheduler) error {
	n.setPhase(Running)
	sched.Start()
	n.logger.Info("control loop running", zap.Duration("gossip_interval", sched.Interval()))

	err := n.loop(ctx, sched.Events())

	n.setPhase(Draining)
	n.logger.Info("draining", zap.Int("values_known", n.state.Values.Len()))

	stopErr := sched.Stop(n.joinTimeout)
	if stopErr != nil {
		n.logger.Error("producer failed during shutdown", zap.Error(stopErr))
	}

	n.setPhase(Stopped)
	n.logger.Info("stopped")
	return multierr.Append(err, stopErr)
}

func (n *Node) loop(ctx context.Context, events <-chan gossip.Event) error {
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("shutdown requested", zap.Error(ctx.Err()))
			return nil
		case ev := <-events:
			switch ev.Kind {
			case gossip.External:
				if err := n.handle(ev.Message); err != nil {
					return err
				}
			case gossip.GossipTick:
				if err := n.fanOut(); err != nil {
					return err
				}
			case gossip.EndOfInput:
				if ev.Err != nil {
					return fmt.Errorf("input: %w", ev.Err)
				}
				n.logger.Info("end of input")
				return nil
			}
		}
	}
}

// handle applies an inbound message to state and answers it. Gossip is the
// only request that gets no reply.
func (n *Node) handle(msg protocol.Message) error {
	n.metrics.Received(msg.Type())
	n.logger.Debug("received", zap.String("type", msg.Type()), zap.String("src", msg.Src))

	values := n.state.Values

	switch p := msg.Body.Payload.(type) {
	case protocol.Gossip:
		learned := values.Merge(p.Messages)
		n.metrics.Learned("gossip", learned, values.Len())
		if learned > 0 {
			n.logger.Debug("learned from gossip", zap.String("src", msg.Src), zap.Int("learned", learned))
		}
		return nil

	case protocol.Broadcast:
		if values.Observe(p.Message) {
			n.metrics.Learned("broadcast", 1, values.Len())
		}

	case protocol.Topology:
		err := values.SetNeighbours(n.state.NodeID, p.Topology)
		switch {
		case errors.Is(err, store.ErrNeighboursAssigned):
			n.logger.Warn("ignoring repeated topology", zap.Strings("neighbours", values.Neighbours()))
		case err != nil:
			return protocol.NewProtocolViolation(msg, "%v", err)
		default:
			n.logger.Info("neighbours assigned", zap.Strings("neighbours", values.Neighbours()))
		}

	case protocol.Init:
		n.logger.Warn("repeated init acknowledged without reassigning identity", zap.String("requested_id", p.NodeID))
	}

	return n.reply(msg)
}

// reply writes the answer to req and advances the counter.
func (n *Node) reply(req protocol.Message) error {
	resp, err := Respond(n.state, req)
	if err != nil {
		return err
	}
	if err := n.send(resp); err != nil {
		return err
	}
	n.state.NextMsgID++
	return nil
}

// fanOut sends the full value set to every neighbour. Gossip is
// uncorrelated and does not consume a msg_id.
func (n *Node) fanOut() error {
	neighbours := n.state.Values.Neighbours()
	if len(neighbours) == 0 {
		n.metrics.Tick(0)
		return nil
	}

	snapshot := n.state.Values.Snapshot()
	for _, dest := range neighbours {
		msg := protocol.Message{
			Src:  n.state.NodeID,
			Dest: dest,
			Body: protocol.Body{Payload: protocol.Gossip{Messages: snapshot}},
		}
		if err := n.send(msg); err != nil {
			return err
		}
	}

	n.metrics.Tick(len(neighbours))
	return nil
}

func (n *Node) send(msg protocol.Message) error {
	if err := n.out.Send(msg); err != nil {
		return err
	}
	n.metrics.Sent(msg.Type())
	return nil
}

func (n *Node) setPhase(p Phase) {
	n.phase.Store(int32(p))
	if n.status != nil {
		n.status.SetServing(p == Running)
	}
}
