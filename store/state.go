// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/roster"
)

var stateKey = []byte("hints/state")

type publicationKey struct {
	nodeID   ids.NodeID
	sizeLog2 uint8
}

type voteKey struct {
	voterID        ids.NodeID
	constructionID uint64
}

// State is the database-backed Writable implementation. Each mutation
// rewrites a single snapshot record, so every write lands atomically and
// Complete constructions survive restart byte-identical.
type State struct {
	mu sync.RWMutex

	db database.Database

	nextID        uint64
	constructions []Construction
	publications  map[publicationKey]Publication
	votes         map[voteKey]ids.ID
}

// New loads the persisted state from db, or starts empty.
func New(db database.Database) (*State, error) {
	s := &State{
		db:           db,
		nextID:       1,
		publications: make(map[publicationKey]Publication),
		votes:        make(map[voteKey]ids.ID),
	}

	raw, err := db.Get(stateKey)
	switch {
	case err == nil:
		if err := s.load(raw); err != nil {
			return nil, err
		}
	case errors.Is(err, database.ErrNotFound):
	default:
		return nil, err
	}
	return s, nil
}

func (s *State) PublicationsForSizeLog2(sizeLog2 uint8, nodeIDs []ids.NodeID) map[ids.NodeID]Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ids.NodeID]Publication)
	for _, nodeID := range nodeIDs {
		if pub, ok := s.publications[publicationKey{nodeID: nodeID, sizeLog2: sizeLog2}]; ok {
			out[nodeID] = pub
		}
	}
	return out
}

func (s *State) VotesFor(constructionID uint64, voterIDs []ids.NodeID) map[ids.NodeID]ids.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ids.NodeID]ids.ID)
	for _, voterID := range voterIDs {
		if hash, ok := s.votes[voteKey{voterID: voterID, constructionID: constructionID}]; ok {
			out[voterID] = hash
		}
	}
	return out
}

func (s *State) GetActiveConstruction() (Construction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.constructions) == 0 {
		return Construction{}, false
	}
	return s.constructions[len(s.constructions)-1], true
}

func (s *State) GetConstruction(constructionID uint64) (Construction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, construction := range s.constructions {
		if construction.ID == constructionID {
			return construction, true
		}
	}
	return Construction{}, false
}

func (s *State) RecordPublication(nodeID ids.NodeID, sizeLog2 uint8, publicKey, hints []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := publicationKey{nodeID: nodeID, sizeLog2: sizeLog2}
	if _, ok := s.publications[key]; ok {
		// First record wins; later contents are ignored.
		return nil
	}
	s.publications[key] = Publication{
		NodeID:    nodeID,
		SizeLog2:  sizeLog2,
		PublicKey: publicKey,
		Hints:     hints,
		AdoptedAt: now,
	}
	return s.persist()
}

func (s *State) RecordVote(voterID ids.NodeID, constructionID uint64, keysHash ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{voterID: voterID, constructionID: constructionID}
	if _, ok := s.votes[key]; ok {
		return nil
	}
	s.votes[key] = keysHash
	return s.persist()
}

func (s *State) NewConstructionFor(sourceHash, targetHash ids.ID, rosters roster.Store, now time.Time) (Construction, error) {
	if _, ok := rosters.Get(targetHash); !ok {
		return Construction{}, fmt.Errorf("%w: target %s", roster.ErrMissingRoster, targetHash)
	}
	if _, ok := rosters.Get(sourceHash); !ok {
		return Construction{}, fmt.Errorf("%w: source %s", roster.ErrMissingRoster, sourceHash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	construction := Construction{
		ID:         s.nextID,
		SourceHash: sourceHash,
		TargetHash: targetHash,
		State:      Gathering,
		GraceStart: now,
	}
	s.nextID++

	// Retain at most one prior Complete construction alongside the new one.
	var retained []Construction
	for i := len(s.constructions) - 1; i >= 0; i-- {
		if s.constructions[i].State == Complete {
			retained = []Construction{s.constructions[i]}
			break
		}
	}
	for _, old := range s.constructions {
		kept := false
		for _, keep := range retained {
			if keep.ID == old.ID {
				kept = true
			}
		}
		if !kept {
			s.dropVotesLocked(old.ID)
		}
	}
	s.constructions = append(retained, construction)

	if err := s.persist(); err != nil {
		return Construction{}, err
	}
	return construction, nil
}

func (s *State) SetAggregationTime(constructionID uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	construction := s.findLocked(constructionID)
	if construction == nil || construction.State != Gathering {
		return nil
	}
	construction.State = Aggregating
	construction.AggregationTime = now
	return s.persist()
}

func (s *State) RescheduleAggregationCheckpoint(constructionID uint64, then time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	construction := s.findLocked(constructionID)
	if construction == nil || construction.State == Complete {
		return nil
	}
	construction.NextCheckpoint = then
	return s.persist()
}

func (s *State) CompleteAggregation(constructionID uint64, preprocessedKeys []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	construction := s.findLocked(constructionID)
	if construction == nil || construction.State == Complete {
		return nil
	}
	construction.State = Complete
	construction.PreprocessedKeys = preprocessedKeys
	construction.KeysHash = crypto.HashPreprocessedKeys(preprocessedKeys)
	return s.persist()
}

func (s *State) PurgeConstructionsNotFor(targetHash ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retained []Construction
	for _, construction := range s.constructions {
		if construction.TargetHash == targetHash {
			retained = append(retained, construction)
		} else {
			s.dropVotesLocked(construction.ID)
		}
	}
	if len(retained) == len(s.constructions) {
		return nil
	}
	s.constructions = retained
	return s.persist()
}

func (s *State) findLocked(constructionID uint64) *Construction {
	for i := range s.constructions {
		if s.constructions[i].ID == constructionID {
			return &s.constructions[i]
		}
	}
	return nil
}

func (s *State) dropVotesLocked(constructionID uint64) {
	for key := range s.votes {
		if key.constructionID == constructionID {
			delete(s.votes, key)
		}
	}
}

func (s *State) persist() error {
	return s.db.Put(stateKey, s.snapshot())
}
