package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"gossipnode/internal/gossip"
	"gossipnode/internal/protocol"
	"gossipnode/internal/telemetry"
	"gossipnode/internal/transport"
)

// Options configures Serve. Zero values fall back to defaults.
type Options struct {
	GossipInterval time.Duration
	QueueSize      int
	JoinTimeout    time.Duration

	Logger  *zap.Logger
	Metrics *telemetry.Metrics // optional
	Status  StatusReporter     // optional
}

func (o Options) withDefaults() Options {
	if o.GossipInterval <= 0 {
		o.GossipInterval = gossip.DefaultInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = gossip.DefaultQueueSize
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = gossip.DefaultJoinTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Serve runs one node over a pair of streams: it performs the init
// handshake, then runs the control loop until in is exhausted, a fatal
// error occurs, or ctx is cancelled. A nil return means a clean shutdown.
func Serve(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	opts = opts.withDefaults()
	if opts.Status != nil {
		opts.Status.SetServing(false)
	}

	r := transport.NewReader(in)
	w := transport.NewWriter(out)

	// The handshake read cannot be interrupted, so wait for it alongside ctx.
	// On cancellation the reader goroutine is abandoned with the input.
	type handshakeResult struct {
		st  *State
		err error
	}
	done := make(chan handshakeResult, 1)
	go func() {
		st, err := Handshake(r, w, opts.Logger)
		done <- handshakeResult{st, err}
	}()

	var st *State
	select {
	case <-ctx.Done():
		opts.Logger.Info("shutdown requested before init", zap.Error(ctx.Err()))
		return nil
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("handshake: %w", res.err)
		}
		st = res.st
	}
	opts.Metrics.Received(protocol.TypeInit)
	opts.Metrics.Sent(protocol.TypeInitOk)

	opts.Logger = opts.Logger.With(zap.String("node_id", st.NodeID))
	sched := gossip.NewScheduler(r, opts.GossipInterval, opts.QueueSize, opts.Logger.Named("scheduler"))

	n := New(st, w, opts)
	return n.Run(ctx, sched)
}
