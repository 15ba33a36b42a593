// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/hints/config"
	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/keystore"
	"github.com/luxfi/hints/roster"
	"github.com/luxfi/hints/store"
	"github.com/luxfi/hints/submit"
)

// RegistryParams carries the long-lived collaborators shared by every
// controller the registry creates.
type RegistryParams struct {
	NodeID     ids.NodeID
	Config     config.Config
	Scheme     crypto.Scheme
	Keys       keystore.Accessor
	Executor   Executor
	Sender     submit.Sender
	Sink       CompletionSink
	Log        log.Logger
	Registerer prometheus.Registerer
}

// Registry enforces the at-most-one-active-controller policy. Mutations run
// on the consensus thread; the lookup methods are safe from any thread.
type Registry struct {
	mu sync.RWMutex

	nodeID   ids.NodeID
	cfg      config.Config
	scheme   crypto.Scheme
	keys     keystore.Accessor
	executor Executor
	sender   submit.Sender
	sink     CompletionSink
	log      log.Logger
	metrics  *hintsMetrics

	current          *Controller
	currentSubmitter *submit.Retrying

	// supersededID is the most recently replaced construction; its BLS key
	// is pruned once a later construction completes.
	supersededID uint64
}

// NewRegistry builds the registry and registers its metrics.
func NewRegistry(params RegistryParams) (*Registry, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	registerer := params.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Registry{
		nodeID:   params.NodeID,
		cfg:      params.Config,
		scheme:   params.Scheme,
		keys:     params.Keys,
		executor: params.Executor,
		sender:   params.Sender,
		sink:     params.Sink,
		log:      params.Log,
		metrics:  metrics,
	}, nil
}

// GetOrCreateControllerFor returns the controller owning construction,
// cancelling and replacing any controller for a different construction. The
// new controller is seeded with a snapshot of publications and votes drawn
// from hintsStore at creation time.
func (r *Registry) GetOrCreateControllerFor(
	construction store.Construction,
	hintsStore store.Writable,
	rosters roster.Store,
) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.ConstructionID() == construction.ID {
		return r.current, nil
	}
	if r.current != nil {
		r.log.Info("superseding construction controller",
			zap.Uint64("oldConstructionID", r.current.ConstructionID()),
			zap.Uint64("newConstructionID", construction.ID),
		)
		r.supersededID = r.current.ConstructionID()
		r.current.CancelPendingWork()
		r.metrics.controllersCancelled.Inc()
		if r.currentSubmitter != nil {
			// Close cancels pending attempts and then waits on in-flight
			// ones, so do not hold that wait against the consensus thread.
			go r.currentSubmitter.Close()
		}
		r.current = nil
		r.currentSubmitter = nil
	}

	sourceRoster, ok := rosters.Get(construction.SourceHash)
	if !ok {
		err := fmt.Errorf("%w: source %s", roster.ErrMissingRoster, construction.SourceHash)
		r.log.Error("cannot create construction controller", zap.Error(err))
		return nil, err
	}
	targetRoster, ok := rosters.Get(construction.TargetHash)
	if !ok {
		err := fmt.Errorf("%w: target %s", roster.ErrMissingRoster, construction.TargetHash)
		r.log.Error("cannot create construction controller", zap.Error(err))
		return nil, err
	}

	sizeLog2 := roster.SizeLog2(targetRoster.Len())
	if sizeLog2 > r.cfg.MaxPartySizeLog2 {
		err := fmt.Errorf("%w: need 2^%d parties, max 2^%d",
			ErrPartySizeTooLarge, sizeLog2, r.cfg.MaxPartySizeLog2)
		r.log.Error("cannot create construction controller", zap.Error(err))
		return nil, err
	}

	keyPair, err := r.keys.GetOrCreateKeyPair(construction.ID)
	if err != nil {
		r.log.Error("cannot load construction key pair", zap.Error(err))
		return nil, err
	}

	submitter := submit.NewRetrying(r.sender, r.log)
	ctrl, err := New(Params{
		NodeID:              r.nodeID,
		Construction:        construction,
		SourceRoster:        sourceRoster,
		TargetRoster:        targetRoster,
		GracePeriod:         r.cfg.KeysWaitPeriod(construction.HasUrgentGracePeriod()),
		CheckpointInterval:  r.cfg.AggregationCheckpointInterval,
		KeyPair:             keyPair,
		Scheme:              r.scheme,
		Store:               hintsStore,
		Submitter:           submitter,
		Sink:                &registrySink{registry: r},
		Executor:            r.executor,
		Log:                 r.log,
		Metrics:             r.metrics,
		InitialPublications: hintsStore.PublicationsForSizeLog2(sizeLog2, targetRoster.NodeIDs()),
		InitialVotes:        hintsStore.VotesFor(construction.ID, sourceRoster.NodeIDs()),
	})
	if err != nil {
		submitter.Close()
		r.log.Error("cannot create construction controller", zap.Error(err))
		return nil, err
	}

	r.current = ctrl
	r.currentSubmitter = submitter
	r.metrics.controllersCreated.Inc()
	r.log.Info("created construction controller",
		zap.Uint64("constructionID", construction.ID),
		zap.Uint8("sizeLog2", sizeLog2),
		zap.Bool("urgent", construction.HasUrgentGracePeriod()),
	)
	return ctrl, nil
}

// GetInProgressByID returns the current controller if it owns constructionID
// and has not completed.
func (r *Registry) GetInProgressByID(constructionID uint64) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil || r.current.ConstructionID() != constructionID || !r.current.IsStillInProgress() {
		return nil, false
	}
	return r.current, true
}

// GetInProgressByUniverseSizeLog2 returns the current controller if its
// party universe size matches and it has not completed.
func (r *Registry) GetInProgressByUniverseSizeLog2(sizeLog2 uint8) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil || !r.current.HasLog2UniverseSize(sizeLog2) || !r.current.IsStillInProgress() {
		return nil, false
	}
	return r.current, true
}

// registrySink forwards completions to the external sink and prunes BLS keys
// no in-progress construction can consume.
type registrySink struct {
	registry *Registry
}

func (s *registrySink) OnAggregationComplete(constructionID uint64, preprocessedKeys []byte) {
	r := s.registry

	r.mu.Lock()
	superseded := r.supersededID
	if superseded != 0 && superseded < constructionID {
		r.supersededID = 0
	} else {
		superseded = 0
	}
	r.mu.Unlock()

	if superseded != 0 {
		if err := r.keys.Prune(superseded); err != nil {
			r.log.Warn("failed to prune superseded construction key",
				zap.Uint64("constructionID", superseded),
				zap.Error(err),
			)
		}
	}

	if r.sink != nil {
		r.sink.OnAggregationComplete(constructionID, preprocessedKeys)
	}
}
