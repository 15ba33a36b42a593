// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/roster"
	"github.com/luxfi/hints/store"
	"github.com/luxfi/hints/submit"
)

func testNodeID(tail byte) ids.NodeID {
	var nodeID ids.NodeID
	nodeID[len(nodeID)-1] = tail
	return nodeID
}

type testRosterStore map[ids.ID]roster.Roster

func (s testRosterStore) Get(rosterHash ids.ID) (roster.Roster, bool) {
	r, ok := s[rosterHash]
	return r, ok
}

// manualExecutor collects tasks so tests decide exactly when, and in which
// order, crypto work completes.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *manualExecutor) Execute(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}

func (e *manualExecutor) runAll() {
	for _, task := range e.take() {
		task()
	}
}

func (e *manualExecutor) runAllReversed() {
	tasks := e.take()
	for i := len(tasks) - 1; i >= 0; i-- {
		tasks[i]()
	}
}

func (e *manualExecutor) take() []func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks := e.tasks
	e.tasks = nil
	return tasks
}

type publicationTx struct {
	origin ids.NodeID
	tx     submit.Publication
}

type voteTx struct {
	origin ids.NodeID
	tx     submit.Vote
}

// testNetwork queues submissions for delivery to every node's store at the
// start of the next round, mirroring consensus ordering.
type testNetwork struct {
	mu           sync.Mutex
	publications []publicationTx
	votes        []voteTx
}

func (n *testNetwork) enqueuePublication(origin ids.NodeID, tx submit.Publication) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publications = append(n.publications, publicationTx{origin: origin, tx: tx})
}

func (n *testNetwork) enqueueVote(origin ids.NodeID, tx submit.Vote) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.votes = append(n.votes, voteTx{origin: origin, tx: tx})
}

func (n *testNetwork) deliver(t *testing.T, nodes []*testNode, now time.Time) {
	t.Helper()
	n.mu.Lock()
	publications, votes := n.publications, n.votes
	n.publications, n.votes = nil, nil
	n.mu.Unlock()

	for _, node := range nodes {
		for _, p := range publications {
			require.NoError(t, node.state.RecordPublication(p.origin, p.tx.SizeLog2, p.tx.PublicKey, p.tx.Hints, now))
		}
		for _, v := range votes {
			require.NoError(t, node.state.RecordVote(v.origin, v.tx.ConstructionID, v.tx.KeysHash))
		}
	}
}

// eventLog records one node's externally visible actions in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// syncSubmitter delivers submissions to the network synchronously. The
// mutate hooks let scenarios drop or corrupt a node's transactions.
type syncSubmitter struct {
	origin  ids.NodeID
	network *testNetwork
	events  *eventLog

	mutatePublication func(submit.Publication) (submit.Publication, bool)
	mutateVote        func(submit.Vote) (submit.Vote, bool)
}

func (s *syncSubmitter) SubmitPublication(sizeLog2 uint8, publicKey, hints []byte) {
	tx := submit.Publication{SizeLog2: sizeLog2, PublicKey: publicKey, Hints: hints}
	s.events.add("publication")
	if s.mutatePublication != nil {
		var deliver bool
		if tx, deliver = s.mutatePublication(tx); !deliver {
			return
		}
	}
	s.network.enqueuePublication(s.origin, tx)
}

func (s *syncSubmitter) SubmitVote(constructionID uint64, keysHash ids.ID) {
	tx := submit.Vote{ConstructionID: constructionID, KeysHash: keysHash}
	s.events.add("vote")
	if s.mutateVote != nil {
		var deliver bool
		if tx, deliver = s.mutateVote(tx); !deliver {
			return
		}
	}
	s.network.enqueueVote(s.origin, tx)
}

type recordingSink struct {
	events *eventLog

	mu   sync.Mutex
	keys map[uint64][]byte
}

func (s *recordingSink) OnAggregationComplete(constructionID uint64, preprocessedKeys []byte) {
	s.events.add("complete")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[uint64][]byte)
	}
	s.keys[constructionID] = preprocessedKeys
}

type testNode struct {
	nodeID    ids.NodeID
	keyPair   crypto.KeyPair
	state     *store.State
	executor  *manualExecutor
	submitter *syncSubmitter
	sink      *recordingSink
	events    *eventLog
	ctrl      *Controller

	// reverseTasks makes this node's executor complete tasks in the
	// opposite order, for reordering-determinism scenarios.
	reverseTasks bool
}

type committee struct {
	nodes          []*testNode
	network        *testNetwork
	roster         roster.Roster
	constructionID uint64
}

// newCommittee builds one controller per node for the genesis self-transition
// over the given weights.
func newCommittee(t *testing.T, weights map[ids.NodeID]uint64, grace time.Duration, customize func(*testNode)) *committee {
	t.Helper()

	scheme := crypto.NewBLSScheme()
	r := roster.FromWeights(weights)
	rosters := testRosterStore{r.Hash(): r}
	network := &testNetwork{}
	start := time.Unix(0, 0)

	c := &committee{network: network, roster: r}
	for _, nodeID := range r.NodeIDs() {
		state, err := store.New(memdb.New())
		require.NoError(t, err)
		construction, err := state.NewConstructionFor(r.Hash(), r.Hash(), rosters, start)
		require.NoError(t, err)
		c.constructionID = construction.ID

		keyPair, err := scheme.GenerateKeyPair()
		require.NoError(t, err)

		events := &eventLog{}
		node := &testNode{
			nodeID:    nodeID,
			keyPair:   keyPair,
			state:     state,
			executor:  &manualExecutor{},
			submitter: &syncSubmitter{origin: nodeID, network: network, events: events},
			sink:      &recordingSink{events: events},
			events:    events,
		}
		if customize != nil {
			customize(node)
		}

		node.ctrl, err = New(Params{
			NodeID:             nodeID,
			Construction:       construction,
			SourceRoster:       r,
			TargetRoster:       r,
			GracePeriod:        grace,
			CheckpointInterval: 10 * time.Second,
			KeyPair:            keyPair,
			Scheme:             scheme,
			Store:              state,
			Submitter:          node.submitter,
			Sink:               node.sink,
			Executor:           node.executor,
			Log:                log.NewNoOpLogger(),
			InitialPublications: state.PublicationsForSizeLog2(
				roster.SizeLog2(r.Len()), r.NodeIDs()),
			InitialVotes: state.VotesFor(construction.ID, r.NodeIDs()),
		})
		require.NoError(t, err)
		c.nodes = append(c.nodes, node)
	}
	return c
}

// round delivers pending transactions, ticks every controller at now, then
// completes scheduled crypto tasks.
func (c *committee) round(t *testing.T, now time.Time) {
	t.Helper()
	c.network.deliver(t, c.nodes, now)
	for _, node := range c.nodes {
		node.ctrl.Advance(now)
	}
	for _, node := range c.nodes {
		if node.reverseTasks {
			node.executor.runAllReversed()
		} else {
			node.executor.runAll()
		}
	}
}

// runUntilComplete steps rounds of one second until every controller has
// completed or maxRounds elapses; returns true if all completed.
func (c *committee) runUntilComplete(t *testing.T, maxRounds int) bool {
	t.Helper()
	now := time.Unix(0, 0)
	for round := 0; round < maxRounds; round++ {
		c.round(t, now)
		done := 0
		for _, node := range c.nodes {
			if !node.ctrl.IsStillInProgress() {
				done++
			}
		}
		if done == len(c.nodes) {
			return true
		}
		now = now.Add(time.Second)
	}
	return false
}

func (c *committee) completedHashes(t *testing.T) []ids.ID {
	t.Helper()
	hashes := make([]ids.ID, 0, len(c.nodes))
	for _, node := range c.nodes {
		construction, ok := node.state.GetConstruction(c.constructionID)
		require.True(t, ok)
		require.Equal(t, store.Complete, construction.State)
		hashes = append(hashes, construction.KeysHash)
	}
	return hashes
}
