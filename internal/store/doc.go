// Package store holds the replicated value set a node has observed and the
// neighbour list it gossips to. Values only ever grow: insertion and merge
// are idempotent and commutative, so replicas exchanging full snapshots
// converge regardless of delivery order or duplication.
//
// A Store is owned by a single goroutine and does no locking of its own.
package store
