// Copyright (C) 2020-2025, Lux Industries Inc All rights reserved.

/*
Package hints implements the setup protocol for hinted threshold BLS
signatures: a committee of weighted nodes publishes hint keys, gathers and
validates its peers' publications, deterministically aggregates them into a
preprocessed key set, and completes once a super-majority of the source
roster votes for the same key-set hash.

# Architecture

The module is organized into the following packages:

  - roster/      Weighted participant sets and deterministic party assignment
  - crypto/      Pluggable BLS capability (keys, hints, aggregation, signing)
  - keystore/    Durable per-construction BLS private keys
  - store/       Consensus-replicated publications, votes, and constructions
  - submit/      Fire-and-forget publication and vote submission gateway
  - controller/  Per-construction state machine, registry, signing context
  - config/      Grace periods, checkpoint cadence, party-size bounds

# Flow

Consensus events land in the store; the registry picks or creates the one
controller for the active construction; each consensus tick advances the
controller, which schedules slow crypto on an executor and re-admits results
on the next tick. When a weight quorum of matching votes is observed the
controller persists the preprocessed key set and the signing context can
begin producing partial signatures:

	ctrl, err := registry.GetOrCreateControllerFor(construction, state, rosters)
	if err != nil {
		return err
	}
	ctrl.Advance(consensusNow)

Every state transition is driven by consensus time; wall-clock never decides
one, so honest nodes fed the same ordered inputs complete with byte-identical
preprocessed key sets.
*/
package hints
