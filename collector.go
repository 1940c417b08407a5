package sealreg

import (
	"fmt"
	"sync"
)

// Collector is the trusted receiving side for sealed telemetry. Devices
// register each reset epoch (the session id sampled at first commit plus
// boot metadata), then submit batches of sealed records; the collector
// holds per-epoch tails so every batch is checked for contiguity, session
// uniformity, and checksum validity on arrival. A final verification
// replays a full epoch from storage.
type Collector struct {
	mu     sync.RWMutex
	epochs map[string]EpochInfo
	next   map[string]uint32 // mono count expected from the next batch
	counts map[string]uint64
	stores map[string]Store
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		epochs: make(map[string]EpochInfo),
		next:   make(map[string]uint32),
		counts: make(map[string]uint64),
		stores: make(map[string]Store),
	}
}

// RegisterEpoch records a new reset epoch. Re-registering an epoch id
// resets its expected sequence to zero; a device that reboots under the
// same id is a distinct epoch and must use a fresh id.
func (c *Collector) RegisterEpoch(info EpochInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[info.EpochID] = info
	c.next[info.EpochID] = 0
	c.counts[info.EpochID] = 0
}

// RegisterStore attaches a storage backend to an epoch. Submitted batches
// are persisted there and final verification replays from it.
func (c *Collector) RegisterStore(epochID string, store Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores[epochID] = store
}

// Epoch returns the registered metadata for an epoch.
func (c *Collector) Epoch(epochID string) (EpochInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.epochs[epochID]
	return info, ok
}

// SubmitSeals verifies a batch against the epoch's running tail and, when a
// store is attached, persists it. The batch must continue exactly where
// the previous one ended; any gap, session change, or checksum failure
// rejects the whole batch and leaves the tail untouched.
func (c *Collector) SubmitSeals(epochID string, records []SealedRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.epochs[epochID]
	if !ok {
		return ErrUnknownEpoch
	}
	for _, r := range records {
		if r.SessionID != info.SessionID {
			return ErrSessionMismatch
		}
	}
	nextMono, err := VerifySequence(records, c.next[epochID])
	if err != nil {
		return fmt.Errorf("batch for epoch %s: %w", epochID, err)
	}

	if st := c.stores[epochID]; st != nil {
		for _, r := range records {
			if err := st.Append(r); err != nil {
				return fmt.Errorf("persist epoch %s: %w", epochID, err)
			}
		}
	}

	c.next[epochID] = nextMono
	c.counts[epochID] += uint64(len(records))
	return nil
}

// SealCount reports how many records the collector has accepted for an
// epoch.
func (c *Collector) SealCount(epochID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.epochs[epochID]; !ok {
		return 0, ErrUnknownEpoch
	}
	return c.counts[epochID], nil
}

// FinalVerify replays the epoch's records from its store and verifies the
// whole run from mono zero under the registered session id. This is the
// authoritative check; it does not trust the running tail.
func (c *Collector) FinalVerify(epochID string) error {
	c.mu.RLock()
	info, ok := c.epochs[epochID]
	st := c.stores[epochID]
	c.mu.RUnlock()

	if !ok {
		return ErrUnknownEpoch
	}
	if st == nil {
		return fmt.Errorf("epoch %s: no store attached", epochID)
	}

	ch, done, err := st.Iter(0)
	if err != nil {
		return err
	}
	var records []SealedRecord
	for r := range ch {
		records = append(records, r)
	}
	if err := done(); err != nil {
		return err
	}

	if err := VerifyEpoch(records, info.SessionID); err != nil {
		return fmt.Errorf("epoch %s: %w", epochID, err)
	}
	return nil
}

// VerifyBatch checks a standalone run of records without touching collector
// state: contiguity from the claimed start, session uniformity, checksums.
func (c *Collector) VerifyBatch(epochID string, records []SealedRecord, startMono uint32) error {
	c.mu.RLock()
	info, ok := c.epochs[epochID]
	c.mu.RUnlock()
	if !ok {
		return ErrUnknownEpoch
	}
	for _, r := range records {
		if r.SessionID != info.SessionID {
			return ErrSessionMismatch
		}
	}
	_, err := VerifySequence(records, startMono)
	return err
}
