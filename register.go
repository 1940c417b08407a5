package sealreg

// sealState enumerates the commit state machine.
type sealState uint8

const (
	sealIdle sealState = iota
	sealFeed
	sealLatch
)

// SealRegister is a cycle-stepped model of the sealing peripheral: the
// commit state machine, the monotonic counter, the locked session id, the
// sticky drop flag, and the serialized 3-word readout port, all sharing one
// CRCUnit with the host.
//
// The register advances only on Tick; writes and reads model single-cycle
// bus operations exactly as the silicon sees them. A commit request while a
// commit is in flight is dropped, never queued; backpressure from the
// checksum engine inside a commit is absorbed by waiting, never by byte
// loss.
type SealRegister struct {
	crc *CRCUnit

	state     sealState
	sessionIn uint8

	pendingValue uint32

	// in-flight commit capture
	feedBuf    [9]byte
	feedIdx    int
	feedSensor uint8
	feedValue  uint32
	curMono    uint32

	monoCount     uint32
	sessionID     uint8
	sessionLocked bool

	dropped     bool
	clearOnDone bool

	record    SealedRecord
	hasRecord bool
	readPtr   int
}

// NewSealRegister builds a register in its post-reset state around the
// given engine. A nil engine gets a private one; passing a shared unit
// models the silicon arrangement where the host computes checksums through
// the same engine.
func NewSealRegister(crc *CRCUnit) *SealRegister {
	if crc == nil {
		crc = NewCRCUnit()
	}
	return &SealRegister{crc: crc}
}

// Reset re-creates the power-on state: mono count zero, session unlocked,
// drop flag clear, read pointer zero, engine re-initialized. This begins a
// new epoch.
func (r *SealRegister) Reset() {
	r.state = sealIdle
	r.pendingValue = 0
	r.feedIdx = 0
	r.monoCount = 0
	r.curMono = 0
	r.sessionID = 0
	r.sessionLocked = false
	r.dropped = false
	r.clearOnDone = false
	r.record = SealedRecord{}
	r.hasRecord = false
	r.readPtr = 0
	r.crc.release(ownerSeal)
	r.crc.Init()
}

// SetSessionInput drives the session-identity input. It is sampled only at
// the first commit of an epoch; later changes are ignored until Reset.
func (r *SealRegister) SetSessionInput(id uint8) { r.sessionIn = id }

// WriteValue latches a 32-bit reading for the next commit.
func (r *SealRegister) WriteValue(v uint32) { r.pendingValue = v }

// WriteControl models a write to the control register. A commit request
// while the machine is not idle is dropped: the write's value, sensor id,
// and session data are discarded and the sticky drop flag is set. A
// standalone checksum-reset request is honored only while idle; during a
// commit the engine belongs to the state machine and the request is a
// no-op. When commit and reset are both set, the commit wins and the
// per-commit engine init subsumes the reset.
func (r *SealRegister) WriteControl(c ControlWord) {
	if c.Commit {
		if r.state != sealIdle {
			r.dropped = true
			r.clearOnDone = false
			return
		}
		r.acceptCommit(c.SensorID)
		return
	}
	if c.CRCReset && r.state == sealIdle {
		r.crc.Init()
	}
}

// WriteControlBits is WriteControl over the packed 10-bit encoding.
func (r *SealRegister) WriteControlBits(v uint16) { r.WriteControl(UnpackControl(v)) }

func (r *SealRegister) acceptCommit(sensorID uint8) {
	if !r.sessionLocked {
		r.sessionID = r.sessionIn
		r.sessionLocked = true
	}
	r.feedSensor = sensorID
	r.feedValue = r.pendingValue
	r.curMono = r.monoCount
	r.feedBuf = sealBytes(sensorID, r.feedValue, r.curMono)
	r.feedIdx = 0
	// Commit takes the engine; a host mid-computation loses it, which the
	// host's poll-before-use discipline rules out in correct operation.
	r.crc.owner = ownerSeal
	r.crc.Init()
	r.clearOnDone = r.dropped
	r.state = sealFeed
}

// Tick advances the register and the shared engine one cycle.
func (r *SealRegister) Tick() {
	switch r.state {
	case sealFeed:
		if r.feedIdx < len(r.feedBuf) {
			// Feed refuses while the engine is busy; the byte is simply
			// re-offered next cycle.
			if r.crc.Feed(r.feedBuf[r.feedIdx]) {
				r.feedIdx++
			}
		} else if !r.crc.Busy() {
			r.state = sealLatch
		}
	case sealLatch:
		r.record = SealedRecord{
			SensorID:  r.feedSensor,
			Value:     r.feedValue,
			SessionID: r.sessionID,
			MonoCount: r.curMono,
			CRC16:     r.crc.Result(),
		}
		r.hasRecord = true
		r.monoCount++ // wraps at 2^32
		r.readPtr = 0
		if r.clearOnDone {
			r.dropped = false
			r.clearOnDone = false
		}
		r.crc.release(ownerSeal)
		r.state = sealIdle
	}
	r.crc.Tick()
}

// Status returns the read-visible status bits.
func (r *SealRegister) Status() SealStatus {
	busy := r.state != sealIdle
	return SealStatus{Ready: !busy, Busy: busy, CommitDropped: r.dropped}
}

// ReadWord returns the word at the current read pointer and advances it,
// wrapping modulo SealWords. Any successful commit resets the pointer to
// the first word regardless of where a reader left off.
func (r *SealRegister) ReadWord() uint32 {
	w := sealWords(r.record)
	v := w[r.readPtr]
	r.readPtr = (r.readPtr + 1) % SealWords
	return v
}

// Record returns the most recently sealed record, if any.
func (r *SealRegister) Record() (SealedRecord, bool) { return r.record, r.hasRecord }

// MonoCount exposes the counter value the next accepted commit will seal.
func (r *SealRegister) MonoCount() uint32 { return r.monoCount }

// RestoreState seeds the counter and session lock without replaying
// commits. Test hook mirroring SealEngine.RestoreState; silicon reaches the
// same states only through commits.
func (r *SealRegister) RestoreState(monoCount uint32, sessionID uint8) {
	r.monoCount = monoCount
	r.sessionID = sessionID
	r.sessionLocked = true
}

// WaitIdle ticks the register until the state machine returns to idle,
// giving up after budget cycles. Exhausting the budget is a liveness
// violation and is reported as ErrLiveness, never retried.
func (r *SealRegister) WaitIdle(budget int) error {
	for i := 0; i < budget; i++ {
		if r.state == sealIdle {
			return nil
		}
		r.Tick()
	}
	if r.state == sealIdle {
		return nil
	}
	return ErrLiveness
}

// HostCRCInit models the host resetting the shared engine through its own
// register window. It reports false, with no effect, while a commit owns
// the engine.
func (r *SealRegister) HostCRCInit() bool {
	if r.state != sealIdle || !r.crc.tryAcquire(ownerHost) {
		return false
	}
	r.crc.Init()
	return true
}

// HostCRCFeed offers one byte from the host. Refused while a commit owns
// the engine or while the engine is busy with a previous byte; the host
// polls HostCRCBusy and retries.
func (r *SealRegister) HostCRCFeed(b byte) bool {
	if r.state != sealIdle || !r.crc.tryAcquire(ownerHost) {
		return false
	}
	return r.crc.Feed(b)
}

// HostCRCBusy reports whether the engine is unavailable to the host, either
// because a commit holds it or because it is still shifting a byte.
func (r *SealRegister) HostCRCBusy() bool {
	return r.state != sealIdle || r.crc.Busy()
}

// HostCRCResult reads the accumulator and releases the host's claim on the
// engine.
func (r *SealRegister) HostCRCResult() uint16 {
	v := r.crc.Result()
	if r.state == sealIdle {
		r.crc.release(ownerHost)
	}
	return v
}
