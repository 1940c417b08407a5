package sealreg

import "sync/atomic"

// Sealer is the concurrency-safe front end for general-purpose hosts. It
// wraps a SealEngine behind a non-blocking mutual-exclusion discipline:
// TryCommit either acquires the engine immediately or resolves to a drop,
// matching the register's arbiter. Callers never queue and never block;
// once a commit is accepted it always runs to completion.
//
// The sticky drop flag is the difference of two counters: drops counts
// every rejected commit, acked counts the drops acknowledged by completed
// commits. A commit acknowledges only the drops already recorded when it
// was accepted, so a drop that lands while it is running stays visible
// past its completion, same as the register.
type Sealer struct {
	inFlight atomic.Bool
	drops    atomic.Uint64
	acked    atomic.Uint64
	eng      SealEngine
}

// NewSealer returns a sealer in the post-reset state.
func NewSealer() *Sealer { return &Sealer{} }

// TryCommit attempts to seal one reading. If another commit is in flight
// the request is dropped immediately (accepted=false, zero record) and
// the sticky dropped flag is set. A drop that occurs while a commit is
// running survives that commit's completion; only a commit accepted after
// the drop clears the flag when it completes.
func (s *Sealer) TryCommit(sensorID uint8, value uint32, sessionID uint8) (rec SealedRecord, accepted bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.drops.Add(1)
		return SealedRecord{}, false
	}
	pending := s.drops.Load()
	rec = s.eng.Commit(sensorID, value, sessionID)
	s.finishCommit(pending)
	return rec, true
}

// finishCommit acknowledges the drops that were already recorded when the
// commit was accepted and releases the engine. Only the goroutine holding
// inFlight writes acked, so the store cannot lose a drop recorded after
// pendingAtAccept was sampled: that drop raised drops past the value
// stored here.
func (s *Sealer) finishCommit(pendingAtAccept uint64) {
	s.acked.Store(pendingAtAccept)
	s.inFlight.Store(false)
}

// CommitDropped reports the sticky drop flag.
func (s *Sealer) CommitDropped() bool { return s.drops.Load() != s.acked.Load() }

// RestoreState seeds the wrapped engine; see SealEngine.RestoreState.
// Not safe to call concurrently with TryCommit.
func (s *Sealer) RestoreState(monoCount uint32, sessionID uint8) {
	s.eng.RestoreState(monoCount, sessionID)
}

// Reset begins a new epoch. Not safe to call concurrently with TryCommit.
func (s *Sealer) Reset() {
	s.eng.Reset()
	s.drops.Store(0)
	s.acked.Store(0)
	s.inFlight.Store(false)
}
