// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the consensus-replicated record of hint-key publications,
// aggregation votes, and in-progress constructions. The read and write
// surfaces are split so the controller consumes exactly the capability it
// needs; all mutation happens on the consensus thread and commits atomically
// per consensus round.
package store

import (
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/hints/roster"
)

// Publication is a node's one-time (public key, hints) submission at a given
// party-size-log2. The store keeps the earliest adopted publication per
// (node id, size-log2).
type Publication struct {
	NodeID    ids.NodeID
	SizeLog2  uint8
	PublicKey []byte
	Hints     []byte
	AdoptedAt time.Time
}

// ConstructionState is the lifecycle phase of a construction.
type ConstructionState uint8

const (
	Gathering ConstructionState = iota
	Aggregating
	Complete
)

func (s ConstructionState) String() string {
	switch s {
	case Gathering:
		return "gathering"
	case Aggregating:
		return "aggregating"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Construction is one protocol instance, keyed by a monotonically assigned id.
// Once Complete, PreprocessedKeys and KeysHash are immutable.
type Construction struct {
	ID         uint64
	SourceHash ids.ID
	TargetHash ids.ID
	State      ConstructionState

	// GraceStart is the consensus time the gathering phase began.
	GraceStart time.Time
	// AggregationTime is the consensus time gathering closed, or zero.
	AggregationTime time.Time
	// NextCheckpoint is the advisory re-examination marker, or zero.
	NextCheckpoint time.Time

	PreprocessedKeys []byte
	KeysHash         ids.ID
}

// HasUrgentGracePeriod reports whether this is the genesis self-transition,
// which gathers hint keys under the urgent grace period.
func (c Construction) HasUrgentGracePeriod() bool {
	return c.SourceHash == c.TargetHash
}

// Readable is the read capability the controller ticks against.
type Readable interface {
	// PublicationsForSizeLog2 returns, for each node in nodeIDs with an
	// adopted publication at sizeLog2, its publication record.
	PublicationsForSizeLog2(sizeLog2 uint8, nodeIDs []ids.NodeID) map[ids.NodeID]Publication

	// VotesFor returns the recorded preprocessed-keys-hash votes for
	// constructionID, filtered to the given voters.
	VotesFor(constructionID uint64, voterIDs []ids.NodeID) map[ids.NodeID]ids.ID

	// GetActiveConstruction returns the active (non-purged) construction.
	GetActiveConstruction() (Construction, bool)

	// GetConstruction returns the construction with the given id if it has
	// not been purged.
	GetConstruction(constructionID uint64) (Construction, bool)
}

// Writable extends Readable with the consensus-thread mutation surface.
type Writable interface {
	Readable

	// RecordPublication records a publication; the first record for a
	// (node id, size-log2) pair wins and later records are ignored.
	RecordPublication(nodeID ids.NodeID, sizeLog2 uint8, publicKey, hints []byte, now time.Time) error

	// RecordVote records a vote; the first vote per (voter, construction)
	// wins and later votes are ignored.
	RecordVote(voterID ids.NodeID, constructionID uint64, keysHash ids.ID) error

	// NewConstructionFor allocates the next construction id in Gathering
	// state, purging any prior non-active construction so at most the new
	// construction and one prior Complete record coexist.
	NewConstructionFor(sourceHash, targetHash ids.ID, rosters roster.Store, now time.Time) (Construction, error)

	// SetAggregationTime closes the gathering phase at the given consensus
	// time.
	SetAggregationTime(constructionID uint64, now time.Time) error

	// RescheduleAggregationCheckpoint moves the advisory checkpoint marker.
	RescheduleAggregationCheckpoint(constructionID uint64, then time.Time) error

	// CompleteAggregation freezes the construction with its preprocessed key
	// set. Idempotent; a completed construction is never rewritten.
	CompleteAggregation(constructionID uint64, preprocessedKeys []byte) error

	// PurgeConstructionsNotFor retains only the construction whose target
	// matches targetHash.
	PurgeConstructionsNotFor(targetHash ids.ID) error
}
