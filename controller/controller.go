// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controller drives one hinTS construction through hint-key
// gathering, aggregation, and vote-quorum completion. A controller is mutated
// only by the consensus thread; slow crypto runs on an executor and its
// results are re-admitted through a completion queue at the next tick.
package controller

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/roster"
	"github.com/luxfi/hints/store"
	"github.com/luxfi/hints/submit"
	safemath "github.com/luxfi/hints/utils/math"
)

var (
	ErrZeroTotalWeight   = errors.New("roster total weight is zero")
	ErrPartySizeTooLarge = errors.New("target roster exceeds max party size")
	ErrWeightOverflow    = errors.New("roster weight arithmetic overflow")
)

// extraCompletionSlots covers the hint computation and aggregation tasks. A
// controller has at most one of each in flight plus one validation per target
// participant, so a completion queue sized to the target roster plus these
// slots never fills.
const extraCompletionSlots = 2

// CompletionSink is notified once this node may produce partial signatures
// for a completed construction.
type CompletionSink interface {
	OnAggregationComplete(constructionID uint64, preprocessedKeys []byte)
}

// Params carries everything a controller owns. Rosters and the key pair are
// passed by value; the controller never refers back to the registry or the
// roster store.
type Params struct {
	NodeID       ids.NodeID
	Construction store.Construction

	SourceRoster roster.Roster
	TargetRoster roster.Roster

	// GracePeriod is the hint-keys wait period already selected by urgency.
	GracePeriod time.Duration
	// CheckpointInterval is the advisory re-examination cadence.
	CheckpointInterval time.Duration

	KeyPair crypto.KeyPair
	Scheme  crypto.Scheme

	Store     store.Writable
	Submitter submit.Submitter
	Sink      CompletionSink
	Executor  Executor

	Log     log.Logger
	Metrics *hintsMetrics

	// Initial snapshot drawn from the store at creation time.
	InitialPublications map[ids.NodeID]store.Publication
	InitialVotes        map[ids.NodeID]ids.ID
}

// Tagged controller state. Exactly one variant is live at a time.
type controllerState interface {
	isControllerState()
}

type initState struct{}

type gatheringState struct{}

type aggregatingState struct {
	// entries is the admissible aggregation input frozen when gathering
	// closed, sorted by party id.
	entries []crypto.Entry

	// keys and keysHash are set once the local aggregate lands.
	keys     []byte
	keysHash ids.ID
}

type completeState struct {
	keys     []byte
	keysHash ids.ID
}

func (initState) isControllerState()         {}
func (gatheringState) isControllerState()    {}
func (*aggregatingState) isControllerState() {}
func (completeState) isControllerState()     {}

// Controller owns one construction. Not thread-safe: Advance and
// CancelPendingWork are consensus-thread calls; the predicate methods are
// safe from any thread.
type Controller struct {
	nodeID       ids.NodeID
	construction store.Construction

	assignment    roster.Assignment
	targetNodeIDs []ids.NodeID
	targetTotal   uint64
	// targetThreshold is the strict super-majority of target weight required
	// to close gathering.
	targetThreshold uint64

	sourceOrder     []ids.NodeID
	sourceWeights   map[ids.NodeID]uint64
	sourceThreshold uint64

	gracePeriod        time.Duration
	checkpointInterval time.Duration

	keyPair   crypto.KeyPair
	scheme    crypto.Scheme
	store     store.Writable
	submitter submit.Submitter
	sink      CompletionSink
	executor  Executor
	log       log.Logger
	metrics   *hintsMetrics

	seedPublications map[ids.NodeID]store.Publication
	seedVotes        map[ids.NodeID]ids.ID

	state controllerState

	// admissible caches hint validation verdicts so each publication is
	// validated at most once per controller lifetime.
	admissible        map[ids.NodeID]bool
	validationPending set.Set[ids.NodeID]

	published          bool
	hintsPending       bool
	aggregationPending bool
	nextCheckpoint     time.Time

	completions chan func(now time.Time)

	cancelled atomic.Bool
	done      atomic.Bool
}

// New builds a controller for params.Construction. It fails with a
// configuration error if either roster's total weight is zero or overflows.
func New(params Params) (*Controller, error) {
	assignment := roster.NewAssignment(params.TargetRoster)

	targetTotal, err := params.TargetRoster.TotalWeight()
	if err != nil {
		return nil, fmt.Errorf("%w: target roster", ErrWeightOverflow)
	}
	sourceTotal, err := params.SourceRoster.TotalWeight()
	if err != nil {
		return nil, fmt.Errorf("%w: source roster", ErrWeightOverflow)
	}
	if targetTotal == 0 {
		return nil, fmt.Errorf("%w: target roster", ErrZeroTotalWeight)
	}
	if sourceTotal == 0 {
		return nil, fmt.Errorf("%w: source roster", ErrZeroTotalWeight)
	}

	targetThreshold, err := superMajority(targetTotal)
	if err != nil {
		return nil, err
	}
	sourceThreshold, err := superMajority(sourceTotal)
	if err != nil {
		return nil, err
	}

	if params.Metrics == nil {
		metrics, err := newMetrics(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		params.Metrics = metrics
	}

	sourceWeights := make(map[ids.NodeID]uint64, params.SourceRoster.Len())
	for _, entry := range params.SourceRoster.Entries() {
		sourceWeights[entry.NodeID] = entry.Weight
	}

	c := &Controller{
		nodeID:             params.NodeID,
		construction:       params.Construction,
		assignment:         assignment,
		targetNodeIDs:      params.TargetRoster.NodeIDs(),
		targetTotal:        targetTotal,
		targetThreshold:    targetThreshold,
		sourceOrder:        params.SourceRoster.NodeIDs(),
		sourceWeights:      sourceWeights,
		sourceThreshold:    sourceThreshold,
		gracePeriod:        params.GracePeriod,
		checkpointInterval: params.CheckpointInterval,
		keyPair:            params.KeyPair,
		scheme:             params.Scheme,
		store:              params.Store,
		submitter:          params.Submitter,
		sink:               params.Sink,
		executor:           params.Executor,
		log:                params.Log,
		metrics:            params.Metrics,
		seedPublications:   params.InitialPublications,
		seedVotes:          params.InitialVotes,
		admissible:         make(map[ids.NodeID]bool),
		validationPending:  set.NewSet[ids.NodeID](0),
		completions:        make(chan func(now time.Time), params.TargetRoster.Len()+extraCompletionSlots),
	}

	switch params.Construction.State {
	case store.Complete:
		c.state = completeState{
			keys:     params.Construction.PreprocessedKeys,
			keysHash: params.Construction.KeysHash,
		}
		c.done.Store(true)
	default:
		// A construction already in Aggregating is re-derived from the
		// gathering inputs; the store transition writes no-op on replay.
		c.state = initState{}
	}
	return c, nil
}

// superMajority returns ceil((2*total + 2) / 3), computed as
// (2*total + 4) / 3. Exactly two thirds does not pass.
func superMajority(total uint64) (uint64, error) {
	doubled, err := safemath.Mul64(2, total)
	if err != nil {
		return 0, ErrWeightOverflow
	}
	numerator, err := safemath.Add64(doubled, 4)
	if err != nil {
		return 0, ErrWeightOverflow
	}
	return numerator / 3, nil
}

// ConstructionID returns the id of the owned construction.
func (c *Controller) ConstructionID() uint64 {
	return c.construction.ID
}

// IsStillInProgress returns true while the construction has not completed.
func (c *Controller) IsStillInProgress() bool {
	return !c.done.Load()
}

// HasLog2UniverseSize returns true iff the target party-size-log2 equals
// sizeLog2.
func (c *Controller) HasLog2UniverseSize(sizeLog2 uint8) bool {
	return c.assignment.SizeLog2() == sizeLog2
}

// CancelPendingWork makes the controller refuse further crypto scheduling,
// drop results of in-flight tasks, and submit no further transactions.
// Idempotent and non-blocking.
func (c *Controller) CancelPendingWork() {
	if c.cancelled.Swap(true) {
		return
	}
	for {
		select {
		case <-c.completions:
		default:
			return
		}
	}
}

// Advance is one consensus tick. now is consensus time; no transition here
// depends on the wall clock.
func (c *Controller) Advance(now time.Time) {
	if c.cancelled.Load() {
		return
	}
	c.drainCompletions(now)
	if c.cancelled.Load() {
		return
	}

	switch st := c.state.(type) {
	case initState:
		c.state = gatheringState{}
		c.advanceGathering(now)
	case gatheringState:
		c.advanceGathering(now)
	case *aggregatingState:
		c.advanceAggregating(now, st)
	case completeState:
	}
}

func (c *Controller) drainCompletions(now time.Time) {
	for {
		select {
		case apply := <-c.completions:
			apply(now)
		default:
			return
		}
	}
}

// reAdmit queues a task result for application on the consensus thread.
func (c *Controller) reAdmit(apply func(now time.Time)) {
	select {
	case c.completions <- apply:
	default:
		// Never expected: the queue holds every task that can be in flight.
		c.log.Error("completion queue full, dropping task result",
			zap.Uint64("constructionID", c.construction.ID),
		)
	}
}

func (c *Controller) advanceGathering(now time.Time) {
	publications := c.publicationsView()

	c.ensureOwnPublication(publications)
	c.ensureValidationScheduled(publications)

	// Walk the admissible set in party-id order.
	var (
		admissibleWeight uint64
		earliest         time.Time
	)
	numParties := c.assignment.NumParties()
	for partyID := uint32(0); partyID < numParties; partyID++ {
		nodeID, ok := c.assignment.NodeAt(partyID)
		if !ok {
			continue
		}
		publication, ok := publications[nodeID]
		if !ok || !c.admissible[nodeID] {
			continue
		}
		admissibleWeight += c.assignment.WeightAt(partyID)
		if earliest.IsZero() || publication.AdoptedAt.Before(earliest) {
			earliest = publication.AdoptedAt
		}
	}

	graceElapsed := !earliest.IsZero() && !now.Before(earliest.Add(c.gracePeriod))
	allPublished := admissibleWeight >= c.targetTotal
	if !allPublished && (admissibleWeight < c.targetThreshold || !graceElapsed) {
		c.maybeRescheduleCheckpoint(now)
		return
	}

	c.closeGathering(now, publications, admissibleWeight)
}

// ensureOwnPublication schedules hint computation if this node is a target
// participant whose publication at the universe size is still missing.
func (c *Controller) ensureOwnPublication(publications map[ids.NodeID]store.Publication) {
	if _, member := c.assignment.PartyID(c.nodeID); !member {
		return
	}
	if _, ok := publications[c.nodeID]; ok {
		return
	}
	if c.published || c.hintsPending {
		return
	}

	c.hintsPending = true
	var (
		numParties = c.assignment.NumParties()
		sizeLog2   = c.assignment.SizeLog2()
		privateKey = c.keyPair.PrivateKey
		publicKey  = c.keyPair.PublicKey
	)
	c.executor.Execute(func() {
		hints, err := c.scheme.ComputeHints(privateKey, numParties)
		c.reAdmit(func(time.Time) {
			c.hintsPending = false
			if err != nil {
				c.log.Warn("hint computation failed, rescheduling",
					zap.Uint64("constructionID", c.construction.ID),
					zap.Error(err),
				)
				return
			}
			c.published = true
			c.submitter.SubmitPublication(sizeLog2, publicKey, hints)
			c.log.Info("published hint key",
				zap.Uint64("constructionID", c.construction.ID),
				zap.Uint8("sizeLog2", sizeLog2),
			)
		})
	})
}

// ensureValidationScheduled dispatches hint validation for any publication
// without a cached verdict. The consensus thread itself only reads the cache.
func (c *Controller) ensureValidationScheduled(publications map[ids.NodeID]store.Publication) {
	numParties := c.assignment.NumParties()
	for _, nodeID := range c.targetNodeIDs {
		publication, ok := publications[nodeID]
		if !ok {
			continue
		}
		if _, cached := c.admissible[nodeID]; cached || c.validationPending.Contains(nodeID) {
			continue
		}
		c.validationPending.Add(nodeID)

		c.executor.Execute(func() {
			valid := c.scheme.ValidateHints(publication.PublicKey, publication.Hints, numParties)
			c.reAdmit(func(time.Time) {
				c.validationPending.Remove(nodeID)
				c.admissible[nodeID] = valid
				if valid {
					c.metrics.publicationsAdmitted.Inc()
					return
				}
				c.metrics.publicationsRejected.Inc()
				c.log.Warn("rejected inadmissible hint publication",
					zap.Uint64("constructionID", c.construction.ID),
					zap.Stringer("nodeID", nodeID),
				)
			})
		})
	}
}

func (c *Controller) maybeRescheduleCheckpoint(now time.Time) {
	if !c.nextCheckpoint.IsZero() && now.Before(c.nextCheckpoint) {
		return
	}
	c.nextCheckpoint = now.Add(c.checkpointInterval)
	if err := c.store.RescheduleAggregationCheckpoint(c.construction.ID, c.nextCheckpoint); err != nil {
		c.log.Warn("failed to reschedule aggregation checkpoint", zap.Error(err))
	}
}

// closeGathering freezes the admissible set and transitions to aggregation.
func (c *Controller) closeGathering(now time.Time, publications map[ids.NodeID]store.Publication, admissibleWeight uint64) {
	numParties := c.assignment.NumParties()
	entries := make([]crypto.Entry, 0, len(publications))
	for partyID := uint32(0); partyID < numParties; partyID++ {
		nodeID, ok := c.assignment.NodeAt(partyID)
		if !ok {
			continue
		}
		publication, ok := publications[nodeID]
		if !ok || !c.admissible[nodeID] {
			continue
		}
		entries = append(entries, crypto.Entry{
			PartyID:   partyID,
			PublicKey: publication.PublicKey,
			Hints:     publication.Hints,
		})
	}

	if err := c.store.SetAggregationTime(c.construction.ID, now); err != nil {
		c.log.Warn("failed to record aggregation time", zap.Error(err))
	}
	c.construction.State = store.Aggregating
	c.construction.AggregationTime = now

	st := &aggregatingState{entries: entries}
	c.state = st
	c.metrics.gatheringsClosed.Inc()
	c.log.Info("hint gathering closed",
		zap.Uint64("constructionID", c.construction.ID),
		zap.Uint64("admissibleWeight", admissibleWeight),
		zap.Uint64("targetTotalWeight", c.targetTotal),
		zap.Int("numEntries", len(entries)),
	)

	c.scheduleAggregation(st)
}

func (c *Controller) scheduleAggregation(st *aggregatingState) {
	if c.aggregationPending || c.cancelled.Load() {
		return
	}
	c.aggregationPending = true

	var (
		entries    = st.entries
		weights    = c.assignment.Weights()
		numParties = c.assignment.NumParties()
	)
	c.executor.Execute(func() {
		keys, err := c.scheme.Aggregate(entries, weights, numParties)
		c.reAdmit(func(time.Time) {
			c.aggregationPending = false
			if err != nil {
				c.log.Warn("aggregation failed, rescheduling",
					zap.Uint64("constructionID", c.construction.ID),
					zap.Error(err),
				)
				return
			}
			current, ok := c.state.(*aggregatingState)
			if !ok || current != st {
				return
			}
			st.keys = keys
			st.keysHash = crypto.HashPreprocessedKeys(keys)
			c.submitter.SubmitVote(c.construction.ID, st.keysHash)
			c.log.Info("voted on preprocessed key set",
				zap.Uint64("constructionID", c.construction.ID),
				zap.Stringer("keysHash", st.keysHash),
			)
		})
	})
}

func (c *Controller) advanceAggregating(now time.Time, st *aggregatingState) {
	if st.keys == nil {
		// Local aggregate still outstanding (or failed and due for retry).
		c.scheduleAggregation(st)
		return
	}

	// Tally votes in source-roster node-id order, tracking every candidate
	// hash. Only one hash can hold a strict super-majority.
	tally := make(map[ids.ID]uint64)
	votes := c.votesView()
	var winner ids.ID
	for _, voterID := range c.sourceOrder {
		hash, ok := votes[voterID]
		if !ok {
			continue
		}
		tally[hash] += c.sourceWeights[voterID]
		if winner == ids.Empty && tally[hash] >= c.sourceThreshold {
			winner = hash
		}
	}
	if winner == ids.Empty {
		return
	}
	if winner != st.keysHash {
		// Every honest node derives the same aggregate, so a foreign winning
		// hash means this node disagrees with the network.
		c.log.Error("vote quorum on unexpected preprocessed key hash",
			zap.Uint64("constructionID", c.construction.ID),
			zap.Stringer("localHash", st.keysHash),
			zap.Stringer("winningHash", winner),
		)
		return
	}

	if err := c.store.CompleteAggregation(c.construction.ID, st.keys); err != nil {
		c.log.Warn("failed to persist completed aggregation", zap.Error(err))
		return
	}
	c.construction.State = store.Complete
	c.construction.PreprocessedKeys = st.keys
	c.construction.KeysHash = st.keysHash
	c.state = completeState{keys: st.keys, keysHash: st.keysHash}
	c.done.Store(true)
	c.metrics.constructionsComplete.Inc()
	c.log.Info("construction complete",
		zap.Uint64("constructionID", c.construction.ID),
		zap.Stringer("keysHash", st.keysHash),
	)

	if c.sink != nil {
		c.sink.OnAggregationComplete(c.construction.ID, st.keys)
	}
}

// publicationsView merges the creation-time snapshot with the live store
// view; the store wins on conflict.
func (c *Controller) publicationsView() map[ids.NodeID]store.Publication {
	out := c.store.PublicationsForSizeLog2(c.assignment.SizeLog2(), c.targetNodeIDs)
	for nodeID, publication := range c.seedPublications {
		if _, ok := out[nodeID]; !ok {
			out[nodeID] = publication
		}
	}
	return out
}

func (c *Controller) votesView() map[ids.NodeID]ids.ID {
	out := c.store.VotesFor(c.construction.ID, c.sourceOrder)
	for voterID, hash := range c.seedVotes {
		if _, ok := out[voterID]; !ok {
			out[voterID] = hash
		}
	}
	return out
}
