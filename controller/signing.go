// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/hints/crypto"
	"github.com/luxfi/hints/keystore"
)

// ErrConstructionNotReady is returned when signing is attempted before a
// construction has completed aggregation.
var ErrConstructionNotReady = errors.New("construction has no preprocessed key set")

// SigningContext is a CompletionSink that retains completed preprocessed key
// sets and exposes the partial / aggregate signing surface they enable.
type SigningContext struct {
	mu sync.RWMutex

	scheme crypto.Scheme
	keys   keystore.Accessor

	ready map[uint64][]byte
}

// NewSigningContext returns an empty signing context.
func NewSigningContext(scheme crypto.Scheme, keys keystore.Accessor) *SigningContext {
	return &SigningContext{
		scheme: scheme,
		keys:   keys,
		ready:  make(map[uint64][]byte),
	}
}

func (s *SigningContext) OnAggregationComplete(constructionID uint64, preprocessedKeys []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[constructionID] = preprocessedKeys
}

// PreprocessedKeys returns the completed key set for constructionID.
func (s *SigningContext) PreprocessedKeys(constructionID uint64) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, ok := s.ready[constructionID]
	return keys, ok
}

// SignPartial produces this node's partial signature over message under the
// construction's BLS key.
func (s *SigningContext) SignPartial(constructionID uint64, message []byte) ([]byte, error) {
	if _, ok := s.PreprocessedKeys(constructionID); !ok {
		return nil, fmt.Errorf("%w: construction %d", ErrConstructionNotReady, constructionID)
	}
	keyPair, err := s.keys.GetOrCreateKeyPair(constructionID)
	if err != nil {
		return nil, err
	}
	return s.scheme.SignPartial(message, keyPair.PrivateKey)
}

// VerifyPartial checks a party's partial signature against the completed key
// set.
func (s *SigningContext) VerifyPartial(constructionID uint64, partyID uint32, message, partial []byte) bool {
	keys, ok := s.PreprocessedKeys(constructionID)
	if !ok {
		return false
	}
	publicKey, err := s.scheme.ExtractPublicKey(keys, partyID)
	if err != nil {
		return false
	}
	return s.scheme.VerifyPartial(message, partial, publicKey)
}

// AggregateSignatures combines partial signatures under the construction's
// aggregation key.
func (s *SigningContext) AggregateSignatures(constructionID uint64, partials [][]byte) ([]byte, error) {
	keys, ok := s.PreprocessedKeys(constructionID)
	if !ok {
		return nil, fmt.Errorf("%w: construction %d", ErrConstructionNotReady, constructionID)
	}
	return s.scheme.AggregateSignatures(keys, partials)
}

// VerifyAggregate checks an aggregate signature produced by the given
// parties.
func (s *SigningContext) VerifyAggregate(constructionID uint64, message, aggregate []byte, partyIDs []uint32) bool {
	keys, ok := s.PreprocessedKeys(constructionID)
	if !ok {
		return false
	}
	return s.scheme.VerifyAggregate(keys, message, aggregate, partyIDs)
}
