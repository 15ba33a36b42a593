// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the enumerated options of the hinTS construction
// controller. Grace periods are consensus-time durations, never wall-clock
// timeouts.
package config

import (
	"errors"
	"time"
)

var (
	ErrNegativeWaitPeriod  = errors.New("hint-keys wait period must be >= 0")
	ErrInvalidCheckpoint   = errors.New("aggregation checkpoint interval must be >= 1ms")
	ErrInvalidMaxPartySize = errors.New("max party size log2 must be between 1 and 20")
)

// Config enumerates the controller options.
type Config struct {
	// UrgentKeysWaitPeriod is the hint-keys gathering grace period for
	// HIGH-urgency (genesis self-transition) constructions.
	UrgentKeysWaitPeriod time.Duration

	// RelaxedKeysWaitPeriod is the grace period for LOW-urgency constructions.
	RelaxedKeysWaitPeriod time.Duration

	// AggregationCheckpointInterval is the advisory re-examination cadence
	// for a gathering phase that has not advanced.
	AggregationCheckpointInterval time.Duration

	// MaxPartySizeLog2 bounds the party universe; a target roster needing a
	// larger universe is a fatal configuration error.
	MaxPartySizeLog2 uint8
}

// Default returns the default controller options.
func Default() Config {
	return Config{
		UrgentKeysWaitPeriod:          30 * time.Second,
		RelaxedKeysWaitPeriod:         5 * time.Minute,
		AggregationCheckpointInterval: 10 * time.Second,
		MaxPartySizeLog2:              11,
	}
}

// Validate checks the options.
func (c Config) Validate() error {
	switch {
	case c.UrgentKeysWaitPeriod < 0 || c.RelaxedKeysWaitPeriod < 0:
		return ErrNegativeWaitPeriod
	case c.AggregationCheckpointInterval < time.Millisecond:
		return ErrInvalidCheckpoint
	case c.MaxPartySizeLog2 < 1 || c.MaxPartySizeLog2 > 20:
		return ErrInvalidMaxPartySize
	default:
		return nil
	}
}

// KeysWaitPeriod selects the grace period by urgency.
func (c Config) KeysWaitPeriod(urgent bool) time.Duration {
	if urgent {
		return c.UrgentKeysWaitPeriod
	}
	return c.RelaxedKeysWaitPeriod
}
