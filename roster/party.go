// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roster

import (
	"math/bits"

	"github.com/luxfi/ids"
)

// SizeLog2 returns the smallest k such that 2^k >= count. count must be >= 1.
func SizeLog2(count int) uint8 {
	if count <= 1 {
		return 0
	}
	return uint8(bits.Len(uint(count - 1)))
}

// NumParties returns the party universe size 2^k.
func NumParties(sizeLog2 uint8) uint32 {
	return 1 << sizeLog2
}

// Assignment is the deterministic node-id -> party-id mapping for a roster.
// Party ids run 0..N-1 with N the smallest power of two >= the node count;
// nodes fill the first len(roster) slots in ascending node-id order and the
// remaining slots are empty (weight 0, no key contribution).
type Assignment struct {
	sizeLog2 uint8
	byNode   map[ids.NodeID]uint32
	byParty  []Entry
}

// NewAssignment derives the party assignment for r.
func NewAssignment(r Roster) Assignment {
	entries := r.Entries()
	byNode := make(map[ids.NodeID]uint32, len(entries))
	for i, entry := range entries {
		byNode[entry.NodeID] = uint32(i)
	}
	return Assignment{
		sizeLog2: SizeLog2(len(entries)),
		byNode:   byNode,
		byParty:  entries,
	}
}

// SizeLog2 returns k, the log2 of the party universe size.
func (a Assignment) SizeLog2() uint8 {
	return a.sizeLog2
}

// NumParties returns the party universe size 2^k.
func (a Assignment) NumParties() uint32 {
	return NumParties(a.sizeLog2)
}

// PartyID returns the party id assigned to nodeID.
func (a Assignment) PartyID(nodeID ids.NodeID) (uint32, bool) {
	partyID, ok := a.byNode[nodeID]
	return partyID, ok
}

// NodeAt returns the node filling partyID, if the slot is not empty.
func (a Assignment) NodeAt(partyID uint32) (ids.NodeID, bool) {
	if partyID >= uint32(len(a.byParty)) {
		return ids.EmptyNodeID, false
	}
	return a.byParty[partyID].NodeID, true
}

// WeightAt returns the weight of partyID; empty slots have weight 0.
func (a Assignment) WeightAt(partyID uint32) uint64 {
	if partyID >= uint32(len(a.byParty)) {
		return 0
	}
	return a.byParty[partyID].Weight
}

// Weights returns the per-party weight vector covering all N slots.
func (a Assignment) Weights() []uint64 {
	weights := make([]uint64, a.NumParties())
	for i, entry := range a.byParty {
		weights[i] = entry.Weight
	}
	return weights
}
