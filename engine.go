package sealreg

// SealEngine is the host-executable twin of the register's sealing
// algorithm. It applies the same counter, session-lock, and read-pointer
// bookkeeping as SealRegister but runs each commit synchronously: no busy
// window, no drops. It is the authority the register model is validated
// against, and the piece firmware embeds to pre-compute or re-check seals.
type SealEngine struct {
	monoCount     uint32
	sessionID     uint8
	sessionLocked bool

	record    SealedRecord
	hasRecord bool
	readPtr   int
}

// NewSealEngine returns an engine in the post-reset state.
func NewSealEngine() *SealEngine { return &SealEngine{} }

// Reset begins a new epoch: counter zero, session unlocked, readout empty.
func (e *SealEngine) Reset() { *e = SealEngine{} }

// Commit seals one reading. The first commit of an epoch locks the engine's
// session id to sessionID; later commits ignore the argument and reuse the
// locked value, exactly as the silicon samples its session input once.
func (e *SealEngine) Commit(sensorID uint8, value uint32, sessionID uint8) SealedRecord {
	if !e.sessionLocked {
		e.sessionID = sessionID
		e.sessionLocked = true
	}
	rec := SealedRecord{
		SensorID:  sensorID,
		Value:     value,
		SessionID: e.sessionID,
		MonoCount: e.monoCount,
		CRC16:     SealCRC16(sensorID, value, e.monoCount),
	}
	e.monoCount++ // wraps at 2^32
	e.readPtr = 0
	e.record = rec
	e.hasRecord = true
	return rec
}

// RestoreState seeds the counter and locks the session id without
// replaying prior commits. Used to reach wraparound and mid-session states
// directly.
func (e *SealEngine) RestoreState(monoCount uint32, sessionID uint8) {
	e.monoCount = monoCount
	e.sessionID = sessionID
	e.sessionLocked = true
}

// MonoCount exposes the counter value the next commit will seal.
func (e *SealEngine) MonoCount() uint32 { return e.monoCount }

// ReadWord mirrors the register's serialized readout over the last sealed
// record: three words, auto-advancing, wrapping, pointer reset by every
// commit.
func (e *SealEngine) ReadWord() uint32 {
	w := sealWords(e.record)
	v := w[e.readPtr]
	e.readPtr = (e.readPtr + 1) % SealWords
	return v
}

// Record returns the most recently sealed record, if any.
func (e *SealEngine) Record() (SealedRecord, bool) { return e.record, e.hasRecord }

// VerifySeal recomputes the checksum from the record's sensor id, value,
// and mono count and compares it to the stored one. The session id is not
// part of the checksum.
func VerifySeal(r SealedRecord) bool {
	return r.CRC16 == SealCRC16(r.SensorID, r.Value, r.MonoCount)
}
