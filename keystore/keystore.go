// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keystore persists this node's per-construction BLS key pairs. Keys
// are generated lazily on first need and must be byte-identical across
// restarts for the same construction id.
package keystore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/database"

	"github.com/luxfi/hints/crypto"
)

var errShortRecord = errors.New("truncated key record")

// Accessor is the per-construction key surface consumed by the registry.
type Accessor interface {
	// GetOrCreateKeyPair returns the key pair for constructionID, generating
	// and durably persisting a fresh one on first call.
	GetOrCreateKeyPair(constructionID uint64) (crypto.KeyPair, error)

	// Prune removes the key pair for a construction that can no longer
	// consume it.
	Prune(constructionID uint64) error
}

// Store is a database-backed Accessor. It is used only from the consensus
// thread or tasks that thread explicitly scheduled; the database performs its
// own durable-write synchronization.
type Store struct {
	db     database.Database
	scheme crypto.Scheme
	cache  map[uint64]crypto.KeyPair
}

// New returns a Store persisting keys in db.
func New(db database.Database, scheme crypto.Scheme) *Store {
	return &Store{
		db:     db,
		scheme: scheme,
		cache:  make(map[uint64]crypto.KeyPair),
	}
}

func (s *Store) GetOrCreateKeyPair(constructionID uint64) (crypto.KeyPair, error) {
	if keyPair, ok := s.cache[constructionID]; ok {
		return keyPair, nil
	}

	key := dbKey(constructionID)
	raw, err := s.db.Get(key)
	switch {
	case err == nil:
		keyPair, err := decodeKeyPair(raw)
		if err != nil {
			return crypto.KeyPair{}, fmt.Errorf("construction %d: %w", constructionID, err)
		}
		s.cache[constructionID] = keyPair
		return keyPair, nil
	case errors.Is(err, database.ErrNotFound):
	default:
		return crypto.KeyPair{}, err
	}

	keyPair, err := s.scheme.GenerateKeyPair()
	if err != nil {
		return crypto.KeyPair{}, err
	}
	if err := s.db.Put(key, encodeKeyPair(keyPair)); err != nil {
		return crypto.KeyPair{}, err
	}
	s.cache[constructionID] = keyPair
	return keyPair, nil
}

func (s *Store) Prune(constructionID uint64) error {
	delete(s.cache, constructionID)
	return s.db.Delete(dbKey(constructionID))
}

func dbKey(constructionID uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, constructionID)
	return key
}

func encodeKeyPair(keyPair crypto.KeyPair) []byte {
	out := make([]byte, 0, 4+len(keyPair.PrivateKey)+len(keyPair.PublicKey))
	out = binary.BigEndian.AppendUint16(out, uint16(len(keyPair.PrivateKey)))
	out = append(out, keyPair.PrivateKey...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(keyPair.PublicKey)))
	out = append(out, keyPair.PublicKey...)
	return out
}

func decodeKeyPair(raw []byte) (crypto.KeyPair, error) {
	privateKey, rest, err := takeField(raw)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	publicKey, rest, err := takeField(rest)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	if len(rest) != 0 {
		return crypto.KeyPair{}, errShortRecord
	}
	return crypto.KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

func takeField(raw []byte) ([]byte, []byte, error) {
	if len(raw) < 2 {
		return nil, nil, errShortRecord
	}
	n := int(binary.BigEndian.Uint16(raw))
	raw = raw[2:]
	if len(raw) < n {
		return nil, nil, errShortRecord
	}
	return raw[:n], raw[n:], nil
}
