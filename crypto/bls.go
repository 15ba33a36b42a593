// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
)

const keySeedLen = 32

var (
	ErrBadPrivateKey = errors.New("invalid private key")
	ErrNoPartials    = errors.New("no partial signatures to aggregate")

	hintDomain = []byte("hints/v1")
)

// BLSScheme implements Scheme over BLS12-381. Private keys are 32-byte seeds;
// the secret key is re-derived from the seed on use, which keeps the durable
// representation a single opaque field. BLS signing is deterministic, so hint
// computation and aggregation are deterministic per input.
type BLSScheme struct{}

// NewBLSScheme returns the BLS-backed capability.
func NewBLSScheme() *BLSScheme {
	return &BLSScheme{}
}

func (*BLSScheme) GenerateKeyPair() (KeyPair, error) {
	seed := make([]byte, keySeedLen)
	if _, err := rand.Read(seed); err != nil {
		return KeyPair{}, err
	}
	sk, err := bls.SecretKeyFromSeed(seed)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		PrivateKey: seed,
		PublicKey:  bls.PublicKeyToCompressedBytes(sk.PublicKey()),
	}, nil
}

// hintMessage is the domain-separated per-slot message each party signs to
// produce its hints. Binding the universe size into the message keeps hints
// for different party sizes incompatible.
func hintMessage(numParties, slot uint32) []byte {
	msg := make([]byte, 0, len(hintDomain)+8)
	msg = append(msg, hintDomain...)
	msg = binary.BigEndian.AppendUint32(msg, numParties)
	msg = binary.BigEndian.AppendUint32(msg, slot)
	return msg
}

func (*BLSScheme) ComputeHints(privateKey []byte, numParties uint32) ([]byte, error) {
	if len(privateKey) != keySeedLen {
		return nil, ErrBadPrivateKey
	}
	sk, err := bls.SecretKeyFromSeed(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPrivateKey, err)
	}

	var hints []byte
	for slot := uint32(0); slot < numParties; slot++ {
		sig, err := sk.Sign(hintMessage(numParties, slot))
		if err != nil {
			return nil, err
		}
		hints = append(hints, bls.SignatureToBytes(sig)...)
	}
	return hints, nil
}

func (*BLSScheme) ValidateHints(publicKey, hints []byte, numParties uint32) bool {
	pk, err := bls.PublicKeyFromCompressedBytes(publicKey)
	if err != nil {
		return false
	}
	if numParties == 0 || len(hints) == 0 || len(hints)%int(numParties) != 0 {
		return false
	}
	sigLen := len(hints) / int(numParties)
	for slot := uint32(0); slot < numParties; slot++ {
		chunk := hints[int(slot)*sigLen : int(slot+1)*sigLen]
		sig, err := bls.SignatureFromBytes(chunk)
		if err != nil {
			return false
		}
		if !bls.Verify(pk, sig, hintMessage(numParties, slot)) {
			return false
		}
	}
	return true
}

func (*BLSScheme) Aggregate(entries []Entry, weights []uint64, numParties uint32) ([]byte, error) {
	if uint32(len(weights)) != numParties {
		return nil, fmt.Errorf("weight vector covers %d of %d parties", len(weights), numParties)
	}

	parties := make([]partyRecord, numParties)
	for i := range parties {
		parties[i].weight = weights[i]
	}

	publicKeys := make([]*bls.PublicKey, 0, len(entries))
	lastParty := -1
	for _, entry := range entries {
		if int(entry.PartyID) <= lastParty || entry.PartyID >= numParties {
			return nil, fmt.Errorf("aggregation entries not strictly ordered by party id")
		}
		lastParty = int(entry.PartyID)

		pk, err := bls.PublicKeyFromCompressedBytes(entry.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("party %d public key: %w", entry.PartyID, err)
		}
		publicKeys = append(publicKeys, pk)

		digest := sha512.Sum384(entry.Hints)
		parties[entry.PartyID].publicKey = entry.PublicKey
		parties[entry.PartyID].hintDigest = digest[:]
	}
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("no entries to aggregate")
	}

	aggPK, err := bls.AggregatePublicKeys(publicKeys)
	if err != nil {
		return nil, err
	}

	out := &preprocessed{
		parties:        parties,
		aggregationKey: bls.PublicKeyToCompressedBytes(aggPK),
	}
	return out.bytes(), nil
}

func (*BLSScheme) SignPartial(message, privateKey []byte) ([]byte, error) {
	if len(privateKey) != keySeedLen {
		return nil, ErrBadPrivateKey
	}
	sk, err := bls.SecretKeyFromSeed(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPrivateKey, err)
	}
	sig, err := sk.Sign(message)
	if err != nil {
		return nil, err
	}
	return bls.SignatureToBytes(sig), nil
}

func (*BLSScheme) VerifyPartial(message, partial, publicKey []byte) bool {
	pk, err := bls.PublicKeyFromCompressedBytes(publicKey)
	if err != nil {
		return false
	}
	sig, err := bls.SignatureFromBytes(partial)
	if err != nil {
		return false
	}
	return bls.Verify(pk, sig, message)
}

func (*BLSScheme) AggregateSignatures(preprocessedKeys []byte, partials [][]byte) ([]byte, error) {
	if _, err := parsePreprocessed(preprocessedKeys); err != nil {
		return nil, err
	}
	if len(partials) == 0 {
		return nil, ErrNoPartials
	}

	sigs := make([]*bls.Signature, len(partials))
	for i, partial := range partials {
		sig, err := bls.SignatureFromBytes(partial)
		if err != nil {
			return nil, fmt.Errorf("partial %d: %w", i, err)
		}
		sigs[i] = sig
	}
	agg, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return bls.SignatureToBytes(agg), nil
}

func (*BLSScheme) VerifyAggregate(preprocessedKeys, message, aggregate []byte, partyIDs []uint32) bool {
	keys, err := parsePreprocessed(preprocessedKeys)
	if err != nil {
		return false
	}
	sig, err := bls.SignatureFromBytes(aggregate)
	if err != nil {
		return false
	}

	publicKeys := make([]*bls.PublicKey, 0, len(partyIDs))
	for _, partyID := range partyIDs {
		if partyID >= uint32(len(keys.parties)) || len(keys.parties[partyID].publicKey) == 0 {
			return false
		}
		pk, err := bls.PublicKeyFromCompressedBytes(keys.parties[partyID].publicKey)
		if err != nil {
			return false
		}
		publicKeys = append(publicKeys, pk)
	}
	if len(publicKeys) == 0 {
		return false
	}
	aggPK, err := bls.AggregatePublicKeys(publicKeys)
	if err != nil {
		return false
	}
	return bls.Verify(aggPK, sig, message)
}

func (*BLSScheme) ExtractPublicKey(preprocessedKeys []byte, partyID uint32) ([]byte, error) {
	keys, err := parsePreprocessed(preprocessedKeys)
	if err != nil {
		return nil, err
	}
	if partyID >= uint32(len(keys.parties)) {
		return nil, fmt.Errorf("%w: party %d of %d", ErrEmptySlot, partyID, len(keys.parties))
	}
	pk := keys.parties[partyID].publicKey
	if len(pk) == 0 {
		return nil, fmt.Errorf("%w: party %d", ErrEmptySlot, partyID)
	}
	return pk, nil
}
