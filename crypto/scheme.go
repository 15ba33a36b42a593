// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto is the pluggable cryptographic capability behind the hinTS
// construction controller: key generation, hint computation and validation,
// deterministic aggregation into a preprocessed key set, and the partial /
// aggregate signing operations used once a construction completes.
//
// Determinism is a contract, not a hope: every operation yields byte-identical
// output for identical inputs on every node.
package crypto

// KeyPair is a scheme-level BLS key pair. PrivateKey is the durable secret
// material (for the BLS scheme, the 32-byte key seed) and PublicKey its
// compressed public key.
type KeyPair struct {
	PrivateKey []byte
	PublicKey  []byte
}

// Entry is one admissible publication in aggregation input, ordered by party
// id. Only filled parties appear; empty slots contribute weight 0 and no key.
type Entry struct {
	PartyID   uint32
	PublicKey []byte
	Hints     []byte
}

// Scheme is the set of pure operations the controller schedules off-thread.
type Scheme interface {
	// GenerateKeyPair creates a fresh key pair.
	GenerateKeyPair() (KeyPair, error)

	// ComputeHints derives the hint bytes for a party universe of numParties
	// slots. Deterministic per (privateKey, numParties); may be slow.
	ComputeHints(privateKey []byte, numParties uint32) ([]byte, error)

	// ValidateHints reports whether hints are consistent with publicKey for
	// the given universe size. Deterministic.
	ValidateHints(publicKey, hints []byte, numParties uint32) bool

	// Aggregate combines the admissible entries (sorted by party id) with the
	// full per-party weight vector into a preprocessed key set. Deterministic.
	Aggregate(entries []Entry, weights []uint64, numParties uint32) ([]byte, error)

	// SignPartial produces this node's partial signature over message.
	SignPartial(message, privateKey []byte) ([]byte, error)

	// VerifyPartial checks a partial signature against a party public key.
	VerifyPartial(message, partial, publicKey []byte) bool

	// AggregateSignatures combines partial signatures under the aggregation
	// key carried by a preprocessed key set.
	AggregateSignatures(preprocessedKeys []byte, partials [][]byte) ([]byte, error)

	// VerifyAggregate checks an aggregate signature produced by the given
	// parties against the preprocessed key set.
	VerifyAggregate(preprocessedKeys, message, aggregate []byte, partyIDs []uint32) bool

	// ExtractPublicKey returns the public key filling partyID in the
	// preprocessed key set, or an error if the slot is empty.
	ExtractPublicKey(preprocessedKeys []byte, partyID uint32) ([]byte, error)
}
