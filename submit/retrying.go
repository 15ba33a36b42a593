// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package submit

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

const (
	defaultInitialDelay = 250 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
)

// Retrying is a Submitter that retries each transaction with capped
// exponential backoff until the sender acknowledges it or the submitter is
// closed. Retry cadence is wall-clock; no consensus state transition depends
// on it.
type Retrying struct {
	sender Sender
	log    log.Logger

	initialDelay time.Duration
	maxDelay     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetrying returns a Retrying submitter over sender.
func NewRetrying(sender Sender, logger log.Logger) *Retrying {
	return NewRetryingWithDelays(sender, logger, defaultInitialDelay, defaultMaxDelay)
}

// NewRetryingWithDelays returns a Retrying submitter with an explicit backoff
// schedule.
func NewRetryingWithDelays(sender Sender, logger log.Logger, initialDelay, maxDelay time.Duration) *Retrying {
	ctx, cancel := context.WithCancel(context.Background())
	return &Retrying{
		sender:       sender,
		log:          logger,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (r *Retrying) SubmitPublication(sizeLog2 uint8, publicKey, hints []byte) {
	publication := Publication{
		SizeLog2:  sizeLog2,
		PublicKey: publicKey,
		Hints:     hints,
	}
	r.retry("publication", func(ctx context.Context) error {
		return r.sender.SendPublication(ctx, publication)
	})
}

func (r *Retrying) SubmitVote(constructionID uint64, keysHash ids.ID) {
	vote := Vote{
		ConstructionID: constructionID,
		KeysHash:       keysHash,
	}
	r.retry("vote", func(ctx context.Context) error {
		return r.sender.SendVote(ctx, vote)
	})
}

// Close stops all pending retries and waits for in-flight attempts to return.
// Submissions prepared but not yet acknowledged are dropped.
func (r *Retrying) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Retrying) retry(kind string, send func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		delay := r.initialDelay
		for {
			err := send(r.ctx)
			if err == nil {
				return
			}
			if r.ctx.Err() != nil {
				return
			}
			r.log.Debug("submission failed, retrying",
				zap.String("kind", kind),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			timer := time.NewTimer(delay)
			select {
			case <-r.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if delay *= 2; delay > r.maxDelay {
				delay = r.maxDelay
			}
		}
	}()
}
