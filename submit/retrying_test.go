// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package submit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient send failure")

// flakySender fails the first failures attempts, counted across both kinds,
// then succeeds.
type flakySender struct {
	mu           sync.Mutex
	failures     int
	attempts     int
	publications []Publication
	votes        []Vote
}

func (s *flakySender) SendPublication(_ context.Context, publication Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errTransient
	}
	s.publications = append(s.publications, publication)
	return nil
}

func (s *flakySender) SendVote(_ context.Context, vote Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errTransient
	}
	s.votes = append(s.votes, vote)
	return nil
}

func (s *flakySender) delivered() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.publications), len(s.votes)
}

func TestSubmitDoesNotBlock(t *testing.T) {
	sender := &flakySender{}
	submitter := NewRetryingWithDelays(sender, log.NewNoOpLogger(), time.Millisecond, time.Millisecond)
	defer submitter.Close()

	done := make(chan struct{})
	go func() {
		submitter.SubmitPublication(2, []byte("pk"), []byte("hints"))
		submitter.SubmitVote(7, ids.ID{1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submission blocked the caller")
	}
}

func TestRetriesUntilAcknowledged(t *testing.T) {
	sender := &flakySender{failures: 3}
	submitter := NewRetryingWithDelays(sender, log.NewNoOpLogger(), time.Millisecond, 4*time.Millisecond)
	defer submitter.Close()

	submitter.SubmitVote(7, ids.ID{1})

	require.Eventually(t, func() bool {
		_, votes := sender.delivered()
		return votes == 1
	}, time.Second, time.Millisecond)
}

func TestCloseStopsRetrying(t *testing.T) {
	// A sender that never succeeds.
	sender := &flakySender{failures: 1 << 30}
	submitter := NewRetryingWithDelays(sender, log.NewNoOpLogger(), time.Millisecond, time.Millisecond)

	submitter.SubmitPublication(2, []byte("pk"), []byte("hints"))

	done := make(chan struct{})
	go func() {
		submitter.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not stop pending retries")
	}

	publications, _ := sender.delivered()
	require.Zero(t, publications)
}
