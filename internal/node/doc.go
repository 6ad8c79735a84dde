// Package node implements a single cluster participant: the init handshake
// that fixes its identity, the reply engine that answers client requests,
// and the single-writer control loop that applies events from the gossip
// scheduler to node state and performs periodic anti-entropy fan-out.
//
// State is owned by the control loop goroutine and is never locked.
package node
