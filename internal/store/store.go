package store

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNeighboursAssigned is returned when a topology arrives after the
// neighbour list has already been set.
var ErrNeighboursAssigned = errors.New("neighbours already assigned")

// ErrNotInTopology is returned when a topology has no entry for this node.
var ErrNotInTopology = errors.New("node missing from topology")

// Store is the grow-only value set plus the gossip out-edges of one node.
type Store struct {
	seen       map[int]struct{}
	neighbours []string
	assigned   bool
}

// New creates an empty store with no neighbours.
func New() *Store {
	return &Store{seen: make(map[int]struct{})}
}

// Observe inserts v and reports whether it was newly learned.
func (s *Store) Observe(v int) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	return true
}

// Merge unions values into the set and returns how many were new.
func (s *Store) Merge(values []int) int {
	learned := 0
	for _, v := range values {
		if s.Observe(v) {
			learned++
		}
	}
	return learned
}

// Contains reports whether v is known.
func (s *Store) Contains(v int) bool {
	_, ok := s.seen[v]
	return ok
}

// Len returns the number of known values.
func (s *Store) Len() int {
	return len(s.seen)
}

// Snapshot returns the known values in ascending order.
// The slice is a fresh copy and never nil.
func (s *Store) Snapshot() []int {
	out := make([]int, 0, len(s.seen))
	for v := range s.seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// SetNeighbours assigns the out-edges listed for nodeID in topology.
// The assignment happens at most once; later calls leave the list untouched
// and return ErrNeighboursAssigned.
func (s *Store) SetNeighbours(nodeID string, topology map[string][]string) error {
	if s.assigned {
		return ErrNeighboursAssigned
	}
	edges, ok := topology[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInTopology, nodeID)
	}
	s.neighbours = slices.Clone(edges)
	if s.neighbours == nil {
		s.neighbours = []string{}
	}
	s.assigned = true
	return nil
}

// Neighbours returns a copy of the out-edges, empty before assignment.
func (s *Store) Neighbours() []string {
	return slices.Clone(s.neighbours)
}
