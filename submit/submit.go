// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package submit is the gateway through which a node publishes its hint key
// and aggregation vote as network transactions. Submissions are
// fire-and-forget: the gateway retries transient failures in the background
// until acknowledgement or cancellation, and never blocks the caller.
// Duplicate delivery is harmless because the store's first-wins rule keeps
// admission deterministic.
package submit

import (
	"context"

	"github.com/luxfi/ids"
)

// Publication is the logical HintKeyPublication transaction.
type Publication struct {
	SizeLog2  uint8
	PublicKey []byte
	Hints     []byte
}

// Vote is the logical AggregationVote transaction.
type Vote struct {
	ConstructionID uint64
	KeysHash       ids.ID
}

// Sender hands a signed transaction to the consensus substrate. A nil error
// is an acknowledgement that the transaction was accepted for ordering.
type Sender interface {
	SendPublication(ctx context.Context, publication Publication) error
	SendVote(ctx context.Context, vote Vote) error
}

// Submitter is the fire-and-forget surface the controller drives.
type Submitter interface {
	SubmitPublication(sizeLog2 uint8, publicKey, hints []byte)
	SubmitVote(constructionID uint64, keysHash ids.ID)
}
