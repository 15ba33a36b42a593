// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	scheme := NewBLSScheme()

	keyPair, err := scheme.GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, keyPair.PrivateKey, keySeedLen)
	require.NotEmpty(t, keyPair.PublicKey)

	other, err := scheme.GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, keyPair.PrivateKey, other.PrivateKey)
}

func TestComputeHintsDeterministic(t *testing.T) {
	scheme := NewBLSScheme()
	keyPair, err := scheme.GenerateKeyPair()
	require.NoError(t, err)

	first, err := scheme.ComputeHints(keyPair.PrivateKey, 4)
	require.NoError(t, err)
	second, err := scheme.ComputeHints(keyPair.PrivateKey, 4)
	require.NoError(t, err)
	require.Equal(t, first, second)

	larger, err := scheme.ComputeHints(keyPair.PrivateKey, 8)
	require.NoError(t, err)
	require.NotEqual(t, first, larger)
}

func TestValidateHints(t *testing.T) {
	scheme := NewBLSScheme()
	keyPair, err := scheme.GenerateKeyPair()
	require.NoError(t, err)

	hints, err := scheme.ComputeHints(keyPair.PrivateKey, 4)
	require.NoError(t, err)
	require.True(t, scheme.ValidateHints(keyPair.PublicKey, hints, 4))

	// Hints for a different universe size are not valid.
	require.False(t, scheme.ValidateHints(keyPair.PublicKey, hints, 8))

	// Hints under someone else's key are not valid.
	other, err := scheme.GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, scheme.ValidateHints(other.PublicKey, hints, 4))

	// Tampered hints are not valid.
	tampered := append([]byte(nil), hints...)
	tampered[10] ^= 0xff
	require.False(t, scheme.ValidateHints(keyPair.PublicKey, tampered, 4))

	require.False(t, scheme.ValidateHints(keyPair.PublicKey, nil, 4))
}

func makeEntries(t *testing.T, scheme *BLSScheme, numParties uint32, partyIDs []uint32) ([]Entry, []KeyPair) {
	entries := make([]Entry, len(partyIDs))
	keyPairs := make([]KeyPair, len(partyIDs))
	for i, partyID := range partyIDs {
		keyPair, err := scheme.GenerateKeyPair()
		require.NoError(t, err)
		hints, err := scheme.ComputeHints(keyPair.PrivateKey, numParties)
		require.NoError(t, err)
		entries[i] = Entry{
			PartyID:   partyID,
			PublicKey: keyPair.PublicKey,
			Hints:     hints,
		}
		keyPairs[i] = keyPair
	}
	return entries, keyPairs
}

func TestAggregateDeterministic(t *testing.T) {
	scheme := NewBLSScheme()
	entries, _ := makeEntries(t, scheme, 4, []uint32{0, 1, 2, 3})
	weights := []uint64{1, 2, 3, 4}

	first, err := scheme.Aggregate(entries, weights, 4)
	require.NoError(t, err)
	second, err := NewBLSScheme().Aggregate(entries, weights, 4)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, HashPreprocessedKeys(first), HashPreprocessedKeys(second))
}

func TestAggregateEmptySlot(t *testing.T) {
	scheme := NewBLSScheme()
	entries, _ := makeEntries(t, scheme, 4, []uint32{0, 1, 2})
	weights := []uint64{1, 1, 1, 0}

	keys, err := scheme.Aggregate(entries, weights, 4)
	require.NoError(t, err)

	for partyID := uint32(0); partyID < 3; partyID++ {
		publicKey, err := scheme.ExtractPublicKey(keys, partyID)
		require.NoError(t, err)
		require.Equal(t, entries[partyID].PublicKey, publicKey)
	}
	_, err = scheme.ExtractPublicKey(keys, 3)
	require.ErrorIs(t, err, ErrEmptySlot)
	_, err = scheme.ExtractPublicKey(keys, 7)
	require.ErrorIs(t, err, ErrEmptySlot)
}

func TestAggregateRejectsUnsortedEntries(t *testing.T) {
	scheme := NewBLSScheme()
	entries, _ := makeEntries(t, scheme, 4, []uint32{0, 1})
	entries[0], entries[1] = entries[1], entries[0]

	_, err := scheme.Aggregate(entries, []uint64{1, 1, 0, 0}, 4)
	require.Error(t, err)
}

func TestAggregateRejectsShortWeightVector(t *testing.T) {
	scheme := NewBLSScheme()
	entries, _ := makeEntries(t, scheme, 4, []uint32{0})

	_, err := scheme.Aggregate(entries, []uint64{1, 1}, 4)
	require.Error(t, err)
}

func TestPartialSignatureRoundTrip(t *testing.T) {
	scheme := NewBLSScheme()
	keyPair, err := scheme.GenerateKeyPair()
	require.NoError(t, err)

	message := []byte("partial signature message")
	partial, err := scheme.SignPartial(message, keyPair.PrivateKey)
	require.NoError(t, err)
	require.True(t, scheme.VerifyPartial(message, partial, keyPair.PublicKey))
	require.False(t, scheme.VerifyPartial([]byte("other message"), partial, keyPair.PublicKey))

	other, err := scheme.GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, scheme.VerifyPartial(message, partial, other.PublicKey))
}

func TestAggregateSignatures(t *testing.T) {
	scheme := NewBLSScheme()
	entries, keyPairs := makeEntries(t, scheme, 4, []uint32{0, 1, 2})
	keys, err := scheme.Aggregate(entries, []uint64{1, 1, 1, 0}, 4)
	require.NoError(t, err)

	message := []byte("aggregate me")
	partials := make([][]byte, len(keyPairs))
	for i, keyPair := range keyPairs {
		partial, err := scheme.SignPartial(message, keyPair.PrivateKey)
		require.NoError(t, err)
		partials[i] = partial
	}

	aggregate, err := scheme.AggregateSignatures(keys, partials)
	require.NoError(t, err)
	require.True(t, scheme.VerifyAggregate(keys, message, aggregate, []uint32{0, 1, 2}))

	// Wrong signer set does not verify.
	require.False(t, scheme.VerifyAggregate(keys, message, aggregate, []uint32{0, 1}))
	// Empty slot in the signer set does not verify.
	require.False(t, scheme.VerifyAggregate(keys, message, aggregate, []uint32{0, 1, 3}))

	_, err = scheme.AggregateSignatures(keys, nil)
	require.ErrorIs(t, err, ErrNoPartials)
}

func TestParseRejectsGarbage(t *testing.T) {
	scheme := NewBLSScheme()

	_, err := scheme.ExtractPublicKey([]byte("not a key set"), 0)
	require.ErrorIs(t, err, ErrMalformedKeys)

	_, err = scheme.AggregateSignatures(nil, [][]byte{{1}})
	require.ErrorIs(t, err, ErrMalformedKeys)
}

func TestHashPreprocessedKeys(t *testing.T) {
	first := HashPreprocessedKeys([]byte("keys"))
	require.Equal(t, first, HashPreprocessedKeys([]byte("keys")))
	require.NotEqual(t, first, HashPreprocessedKeys([]byte("other")))
}
