// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/binary"
	"errors"
	"slices"
	"time"

	"github.com/luxfi/ids"
)

// Snapshot layout, versioned:
//
//	version | nextID | constructions | publications | votes
//
// Map entries are emitted in sorted key order so the persisted bytes are a
// deterministic function of the logical state.

const snapshotVersion = 1

var errCorruptSnapshot = errors.New("corrupt state snapshot")

func (s *State) snapshot() []byte {
	out := []byte{snapshotVersion}
	out = binary.BigEndian.AppendUint64(out, s.nextID)

	out = binary.BigEndian.AppendUint32(out, uint32(len(s.constructions)))
	for _, c := range s.constructions {
		out = binary.BigEndian.AppendUint64(out, c.ID)
		out = append(out, c.SourceHash[:]...)
		out = append(out, c.TargetHash[:]...)
		out = append(out, byte(c.State))
		out = appendTime(out, c.GraceStart)
		out = appendTime(out, c.AggregationTime)
		out = appendTime(out, c.NextCheckpoint)
		out = appendBytes(out, c.PreprocessedKeys)
		out = append(out, c.KeysHash[:]...)
	}

	pubKeys := make([]publicationKey, 0, len(s.publications))
	for key := range s.publications {
		pubKeys = append(pubKeys, key)
	}
	slices.SortFunc(pubKeys, func(a, b publicationKey) int {
		if c := a.nodeID.Compare(b.nodeID); c != 0 {
			return c
		}
		return int(a.sizeLog2) - int(b.sizeLog2)
	})
	out = binary.BigEndian.AppendUint32(out, uint32(len(pubKeys)))
	for _, key := range pubKeys {
		pub := s.publications[key]
		out = append(out, pub.NodeID[:]...)
		out = append(out, pub.SizeLog2)
		out = appendBytes(out, pub.PublicKey)
		out = appendBytes(out, pub.Hints)
		out = appendTime(out, pub.AdoptedAt)
	}

	voteKeys := make([]voteKey, 0, len(s.votes))
	for key := range s.votes {
		voteKeys = append(voteKeys, key)
	}
	slices.SortFunc(voteKeys, func(a, b voteKey) int {
		if a.constructionID != b.constructionID {
			if a.constructionID < b.constructionID {
				return -1
			}
			return 1
		}
		return a.voterID.Compare(b.voterID)
	})
	out = binary.BigEndian.AppendUint32(out, uint32(len(voteKeys)))
	for _, key := range voteKeys {
		hash := s.votes[key]
		out = binary.BigEndian.AppendUint64(out, key.constructionID)
		out = append(out, key.voterID[:]...)
		out = append(out, hash[:]...)
	}
	return out
}

func (s *State) load(raw []byte) error {
	d := decoder{buf: raw}

	if version := d.byte(); d.err != nil || version != snapshotVersion {
		return errCorruptSnapshot
	}
	s.nextID = d.uint64()

	numConstructions := d.uint32()
	for i := uint32(0); i < numConstructions && d.err == nil; i++ {
		var c Construction
		c.ID = d.uint64()
		c.SourceHash = d.id()
		c.TargetHash = d.id()
		c.State = ConstructionState(d.byte())
		c.GraceStart = d.time()
		c.AggregationTime = d.time()
		c.NextCheckpoint = d.time()
		c.PreprocessedKeys = d.bytes()
		c.KeysHash = d.id()
		s.constructions = append(s.constructions, c)
	}

	numPublications := d.uint32()
	for i := uint32(0); i < numPublications && d.err == nil; i++ {
		var pub Publication
		pub.NodeID = d.nodeID()
		pub.SizeLog2 = d.byte()
		pub.PublicKey = d.bytes()
		pub.Hints = d.bytes()
		pub.AdoptedAt = d.time()
		s.publications[publicationKey{nodeID: pub.NodeID, sizeLog2: pub.SizeLog2}] = pub
	}

	numVotes := d.uint32()
	for i := uint32(0); i < numVotes && d.err == nil; i++ {
		constructionID := d.uint64()
		voterID := d.nodeID()
		hash := d.id()
		s.votes[voteKey{voterID: voterID, constructionID: constructionID}] = hash
	}

	if d.err != nil || len(d.buf) != 0 {
		return errCorruptSnapshot
	}
	return nil
}

func appendTime(out []byte, t time.Time) []byte {
	if t.IsZero() {
		return binary.BigEndian.AppendUint64(out, 0)
	}
	return binary.BigEndian.AppendUint64(out, uint64(t.UnixNano()))
}

func appendBytes(out, b []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil || len(d.buf) < n {
		d.err = errCorruptSnapshot
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) byte() byte {
	b := d.take(1)
	if d.err != nil {
		return 0
	}
	return b[0]
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) bytes() []byte {
	n := d.uint32()
	if n == 0 {
		return nil
	}
	return slices.Clone(d.take(int(n)))
}

func (d *decoder) id() ids.ID {
	var id ids.ID
	copy(id[:], d.take(len(id)))
	return id
}

func (d *decoder) nodeID() ids.NodeID {
	var nodeID ids.NodeID
	copy(nodeID[:], d.take(len(nodeID)))
	return nodeID
}

func (d *decoder) time() time.Time {
	nanos := d.uint64()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(nanos))
}
