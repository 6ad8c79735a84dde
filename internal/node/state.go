package node

import (
	"slices"

	"gossipnode/internal/protocol"
	"gossipnode/internal/store"
)

// State is everything a node knows. Only the control loop mutates it.
type State struct {
	NodeID    string
	NodeIDs   []string
	NextMsgID uint64
	Values    *store.Store
}

func newState(in protocol.Init) *State {
	return &State{
		NodeID:  in.NodeID,
		NodeIDs: slices.Clone(in.NodeIDs),
		Values:  store.New(),
	}
}
