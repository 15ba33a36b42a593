// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roster

import (
	"math"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	safemath "github.com/luxfi/hints/utils/math"
)

func testNodeID(tail byte) ids.NodeID {
	var nodeID ids.NodeID
	nodeID[len(nodeID)-1] = tail
	return nodeID
}

func TestFromWeightsOrdersByNodeID(t *testing.T) {
	r := FromWeights(map[ids.NodeID]uint64{
		testNodeID(3): 1,
		testNodeID(1): 2,
		testNodeID(2): 3,
	})

	entries := r.Entries()
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.Negative(t, entries[i-1].NodeID.Compare(entries[i].NodeID))
	}
}

func TestWeightLookup(t *testing.T) {
	r := FromWeights(map[ids.NodeID]uint64{
		testNodeID(1): 5,
		testNodeID(2): 3,
	})

	require.Equal(t, uint64(5), r.Weight(testNodeID(1)))
	require.Equal(t, uint64(3), r.Weight(testNodeID(2)))
	require.Zero(t, r.Weight(testNodeID(9)))
	require.True(t, r.Contains(testNodeID(1)))
	require.False(t, r.Contains(testNodeID(9)))
}

func TestTotalWeight(t *testing.T) {
	r := FromWeights(map[ids.NodeID]uint64{
		testNodeID(1): 5,
		testNodeID(2): 3,
		testNodeID(3): 1,
		testNodeID(4): 1,
	})
	total, err := r.TotalWeight()
	require.NoError(t, err)
	require.Equal(t, uint64(10), total)
}

func TestTotalWeightOverflow(t *testing.T) {
	r := FromWeights(map[ids.NodeID]uint64{
		testNodeID(1): math.MaxUint64,
		testNodeID(2): 1,
	})
	_, err := r.TotalWeight()
	require.ErrorIs(t, err, safemath.ErrOverflow)
}

func TestHashIsContentDeterministic(t *testing.T) {
	weights := map[ids.NodeID]uint64{
		testNodeID(1): 5,
		testNodeID(2): 3,
	}
	require.Equal(t, FromWeights(weights).Hash(), FromWeights(weights).Hash())

	reweighted := FromWeights(map[ids.NodeID]uint64{
		testNodeID(1): 5,
		testNodeID(2): 4,
	})
	require.NotEqual(t, FromWeights(weights).Hash(), reweighted.Hash())
}
