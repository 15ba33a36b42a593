// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// hints-sim runs an in-process committee through a full hinTS construction:
// every simulated node publishes hint keys, gathers its peers' publications,
// aggregates, votes, and completes with the same preprocessed key set. The
// consensus clock is stepped explicitly; submitted transactions are delivered
// to every node's store at the next round, which is exactly the ordering
// guarantee the real consensus substrate provides.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/hints/config"
	"github.com/luxfi/hints/controller"
	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/keystore"
	"github.com/luxfi/hints/roster"
	"github.com/luxfi/hints/store"
	"github.com/luxfi/hints/submit"
)

type rosterStore map[ids.ID]roster.Roster

func (s rosterStore) Get(rosterHash ids.ID) (roster.Roster, bool) {
	r, ok := s[rosterHash]
	return r, ok
}

type publicationTx struct {
	origin ids.NodeID
	tx     submit.Publication
}

type voteTx struct {
	origin ids.NodeID
	tx     submit.Vote
}

// mailbox collects submitted transactions for delivery at the next round.
type mailbox struct {
	mu           sync.Mutex
	publications []publicationTx
	votes        []voteTx
}

func (m *mailbox) drain() ([]publicationTx, []voteTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	publications, votes := m.publications, m.votes
	m.publications, m.votes = nil, nil
	return publications, votes
}

// nodeSender stamps submissions with the submitting node's id.
type nodeSender struct {
	origin  ids.NodeID
	mailbox *mailbox
}

func (s *nodeSender) SendPublication(_ context.Context, tx submit.Publication) error {
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	s.mailbox.publications = append(s.mailbox.publications, publicationTx{origin: s.origin, tx: tx})
	return nil
}

func (s *nodeSender) SendVote(_ context.Context, tx submit.Vote) error {
	s.mailbox.mu.Lock()
	defer s.mailbox.mu.Unlock()
	s.mailbox.votes = append(s.mailbox.votes, voteTx{origin: s.origin, tx: tx})
	return nil
}

type simNode struct {
	nodeID   ids.NodeID
	state    *store.State
	registry *controller.Registry
	signing  *controller.SigningContext
}

func main() {
	numNodes := flag.Int("nodes", 4, "Committee size")
	grace := flag.Duration("grace", 0, "Hint-keys gathering grace period")
	maxRounds := flag.Int("rounds", 50, "Maximum consensus rounds to simulate")
	step := flag.Duration("step", time.Second, "Consensus time per round")
	flag.Parse()

	logger := log.New("component", "hints-sim")
	if err := run(logger, *numNodes, *grace, *maxRounds, *step); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(logger log.Logger, numNodes int, grace time.Duration, maxRounds int, step time.Duration) error {
	scheme := crypto.NewBLSScheme()

	weights := make(map[ids.NodeID]uint64, numNodes)
	for i := 0; i < numNodes; i++ {
		var nodeID ids.NodeID
		nodeID[0] = byte(i + 1)
		weights[nodeID] = 10
	}
	committee := roster.FromWeights(weights)
	rosters := rosterStore{committee.Hash(): committee}

	cfg := config.Default()
	cfg.UrgentKeysWaitPeriod = grace
	cfg.RelaxedKeysWaitPeriod = grace

	box := &mailbox{}
	nodes := make([]*simNode, 0, numNodes)
	for _, nodeID := range committee.NodeIDs() {
		state, err := store.New(memdb.New())
		if err != nil {
			return err
		}
		keys := keystore.New(memdb.New(), scheme)
		signing := controller.NewSigningContext(scheme, keys)
		registry, err := controller.NewRegistry(controller.RegistryParams{
			NodeID:   nodeID,
			Config:   cfg,
			Scheme:   scheme,
			Keys:     keys,
			Executor: controller.GoExecutor{},
			Sender:   &nodeSender{origin: nodeID, mailbox: box},
			Sink:     signing,
			Log:      logger,
		})
		if err != nil {
			return err
		}
		nodes = append(nodes, &simNode{
			nodeID:   nodeID,
			state:    state,
			registry: registry,
			signing:  signing,
		})
	}

	// Genesis self-transition: source roster == target roster.
	now := time.Unix(0, 0)
	for _, node := range nodes {
		if _, err := node.state.NewConstructionFor(committee.Hash(), committee.Hash(), rosters, now); err != nil {
			return err
		}
	}

	var constructionID uint64
	for round := 0; round < maxRounds; round++ {
		publications, votes := box.drain()
		for _, node := range nodes {
			for _, p := range publications {
				if err := node.state.RecordPublication(p.origin, p.tx.SizeLog2, p.tx.PublicKey, p.tx.Hints, now); err != nil {
					return err
				}
			}
			for _, v := range votes {
				if err := node.state.RecordVote(v.origin, v.tx.ConstructionID, v.tx.KeysHash); err != nil {
					return err
				}
			}
		}

		done := 0
		for _, node := range nodes {
			construction, ok := node.state.GetActiveConstruction()
			if !ok {
				continue
			}
			constructionID = construction.ID
			ctrl, err := node.registry.GetOrCreateControllerFor(construction, node.state, rosters)
			if err != nil {
				return err
			}
			ctrl.Advance(now)
			if !ctrl.IsStillInProgress() {
				done++
			}
		}
		if done == len(nodes) {
			logger.Info(fmt.Sprintf("all %d nodes completed after %d rounds", len(nodes), round+1))
			break
		}

		now = now.Add(step)
		// Give executor goroutines a moment to land before the next round.
		time.Sleep(20 * time.Millisecond)
	}

	for _, node := range nodes {
		construction, ok := node.state.GetConstruction(constructionID)
		if !ok || construction.State != store.Complete {
			return fmt.Errorf("node %s did not complete the construction", node.nodeID)
		}
		fmt.Printf("node %s  keysHash %s\n", node.nodeID, construction.KeysHash)
	}

	// Exercise the signing surface: every node signs, node 0 verifies and
	// aggregates.
	message := []byte("hints-sim message")
	partials := make([][]byte, 0, len(nodes))
	partyIDs := make([]uint32, 0, len(nodes))
	keys, _ := nodes[0].signing.PreprocessedKeys(constructionID)
	assignment := roster.NewAssignment(committee)
	for _, node := range nodes {
		partial, err := node.signing.SignPartial(constructionID, message)
		if err != nil {
			return err
		}
		partyID, _ := assignment.PartyID(node.nodeID)
		if !nodes[0].signing.VerifyPartial(constructionID, partyID, message, partial) {
			return fmt.Errorf("partial signature from %s did not verify", node.nodeID)
		}
		partials = append(partials, partial)
		partyIDs = append(partyIDs, partyID)
	}
	aggregate, err := nodes[0].signing.AggregateSignatures(constructionID, partials)
	if err != nil {
		return err
	}
	if !nodes[0].signing.VerifyAggregate(constructionID, message, aggregate, partyIDs) {
		return fmt.Errorf("aggregate signature did not verify")
	}
	fmt.Printf("aggregate signature over %d partials verified (%d preprocessed key bytes)\n",
		len(partials), len(keys))
	return nil
}
