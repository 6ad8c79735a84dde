// Package gossip merges the concurrent event sources of a node into one
// ordered stream: messages decoded from the input, periodic anti-entropy
// ticks, and end of input.
//
// A Scheduler runs one goroutine per producer and exposes a single channel
// that the node's control loop drains. Only the control loop touches node
// state; producers never do.
//
// Limitations:
// - No ordering between producers beyond arrival order at the queue
// - A producer blocked in a read cannot be interrupted; Stop abandons it
package gossip
