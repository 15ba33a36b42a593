// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package roster models the weighted participant sets that define a hinTS
// signing committee. Rosters are pure data: they are built once, hashed by
// content, and passed by value into the construction controller.
package roster

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"slices"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/hints/utils/math"
)

// ErrMissingRoster is returned when a roster hash cannot be resolved.
var ErrMissingRoster = errors.New("missing roster")

// Entry is a single weighted participant.
type Entry struct {
	NodeID ids.NodeID
	Weight uint64
}

// Roster is an ordered mapping node-id -> weight. Entries are kept sorted by
// node id so that every derived artifact (content hash, party assignment,
// aggregation input) is identical on every node.
type Roster struct {
	entries []Entry
}

// FromWeights builds a roster from a node-id -> weight mapping.
func FromWeights(weights map[ids.NodeID]uint64) Roster {
	entries := make([]Entry, 0, len(weights))
	for nodeID, weight := range weights {
		entries = append(entries, Entry{NodeID: nodeID, Weight: weight})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return a.NodeID.Compare(b.NodeID)
	})
	return Roster{entries: entries}
}

// Len returns the number of participants.
func (r Roster) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the ordered entries.
func (r Roster) Entries() []Entry {
	return slices.Clone(r.entries)
}

// NodeIDs returns the participant node ids in roster order.
func (r Roster) NodeIDs() []ids.NodeID {
	nodeIDs := make([]ids.NodeID, len(r.entries))
	for i, entry := range r.entries {
		nodeIDs[i] = entry.NodeID
	}
	return nodeIDs
}

// Weight returns the weight of nodeID, or 0 if it is not a participant.
func (r Roster) Weight(nodeID ids.NodeID) uint64 {
	for _, entry := range r.entries {
		if entry.NodeID == nodeID {
			return entry.Weight
		}
	}
	return 0
}

// Contains reports whether nodeID is a participant.
func (r Roster) Contains(nodeID ids.NodeID) bool {
	for _, entry := range r.entries {
		if entry.NodeID == nodeID {
			return true
		}
	}
	return false
}

// TotalWeight returns the sum of all weights, failing on uint64 overflow.
func (r Roster) TotalWeight() (uint64, error) {
	var total uint64
	for _, entry := range r.entries {
		var err error
		total, err = safemath.Add64(total, entry.Weight)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Hash returns the content hash of the roster: SHA-384 truncated to 32 bytes
// over the canonical (count, node id, weight) encoding.
func (r Roster) Hash() ids.ID {
	hasher := sha512.New384()
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(len(r.entries)))
	hasher.Write(buf[:4])
	for _, entry := range r.entries {
		hasher.Write(entry.NodeID[:])
		binary.BigEndian.PutUint64(buf[:], entry.Weight)
		hasher.Write(buf[:])
	}
	digest := hasher.Sum(nil)

	var id ids.ID
	copy(id[:], digest)
	return id
}

// Store is the read-only roster collaborator consumed at controller creation.
type Store interface {
	// Get returns the roster with the given content hash, if known.
	Get(rosterHash ids.ID) (Roster, bool)
}
