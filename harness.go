package sealreg

import (
	"fmt"
	"math/rand"
)

// DefaultCycleBudget bounds how many cycles one commit may take before the
// harness declares a liveness violation. A commit needs on the order of
// 9 bytes x (1 feed + 8 busy) cycles; the budget leaves generous slack
// without ever masking a stuck machine.
const DefaultCycleBudget = 512

// CrossValidator drives the register model and the reference engine with
// identical inputs and requires bit-identical sealed records. Any
// disagreement is surfaced as ErrParity with the offending inputs; it is
// never tolerated or retried.
type CrossValidator struct {
	Reg    *SealRegister
	Ref    *SealEngine
	Budget int
}

// NewCrossValidator builds a validator around fresh instances.
func NewCrossValidator() *CrossValidator {
	return &CrossValidator{
		Reg:    NewSealRegister(nil),
		Ref:    NewSealEngine(),
		Budget: DefaultCycleBudget,
	}
}

// ResetEpoch resets both implementations and drives the session input.
func (cv *CrossValidator) ResetEpoch(sessionID uint8) {
	cv.Reg.Reset()
	cv.Reg.SetSessionInput(sessionID)
	cv.Ref.Reset()
}

// hwCommit runs one commit through the register's bus interface and
// reassembles the record from the 3-word readout.
func (cv *CrossValidator) hwCommit(sensorID uint8, value uint32) (SealedRecord, error) {
	cv.Reg.WriteValue(value)
	cv.Reg.WriteControl(ControlWord{SensorID: sensorID, Commit: true})
	if err := cv.Reg.WaitIdle(cv.Budget); err != nil {
		return SealedRecord{}, err
	}
	var w [SealWords]uint32
	for i := range w {
		w[i] = cv.Reg.ReadWord()
	}
	return RecordFromWords(w, sensorID), nil
}

// CheckOne seals one reading on both implementations and compares the full
// record. The session id passed to the reference engine matters only on
// the first commit of an epoch, matching the register's sampling rule.
func (cv *CrossValidator) CheckOne(sensorID uint8, value uint32, sessionID uint8) error {
	hw, err := cv.hwCommit(sensorID, value)
	if err != nil {
		return err
	}
	sw := cv.Ref.Commit(sensorID, value, sessionID)
	if hw != sw {
		return fmt.Errorf("%w: sensor=0x%02X value=0x%08X hw=%+v sw=%+v",
			ErrParity, sensorID, value, hw, sw)
	}
	return nil
}

// RunGolden checks the three fixed vectors the algorithm is pinned to.
func (cv *CrossValidator) RunGolden() error {
	cv.ResetEpoch(0x01)

	hw, err := cv.hwCommit(0xAA, 0x00000000)
	if err != nil {
		return err
	}
	if hw.CRC16 != 0x578C || hw.MonoCount != 0 {
		return fmt.Errorf("%w: golden V1 got crc=0x%04X mono=%d, want 0x578C/0",
			ErrParity, hw.CRC16, hw.MonoCount)
	}
	if sw := SealCRC16(0xAA, 0x00000000, 0); sw != 0x578C {
		return fmt.Errorf("%w: golden V1 reference crc=0x%04X, want 0x578C", ErrParity, sw)
	}

	hw, err = cv.hwCommit(0xFF, 0xFFFFFFFF)
	if err != nil {
		return err
	}
	if hw.CRC16 != 0xE80E || hw.MonoCount != 1 {
		return fmt.Errorf("%w: golden V2 got crc=0x%04X mono=%d, want 0xE80E/1",
			ErrParity, hw.CRC16, hw.MonoCount)
	}
	if sw := SealCRC16(0xFF, 0xFFFFFFFF, 1); sw != 0xE80E {
		return fmt.Errorf("%w: golden V2 reference crc=0x%04X, want 0xE80E", ErrParity, sw)
	}

	if crc := CRC16([]byte{0x01, 0x02, 0x03}); crc != 0x6161 {
		return fmt.Errorf("%w: crc16{01,02,03}=0x%04X, want 0x6161", ErrParity, crc)
	}
	return nil
}

// RunRandom seals trials randomized readings at sequential mono counts and
// requires agreement on every one. The seed makes a failing trial
// reproducible.
func (cv *CrossValidator) RunRandom(trials int, seed int64) error {
	cv.ResetEpoch(0x42)
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < trials; i++ {
		sensorID := uint8(rng.Uint32())
		value := rng.Uint32()
		if err := cv.CheckOne(sensorID, value, 0x42); err != nil {
			return fmt.Errorf("trial %d: %w", i, err)
		}
	}
	return nil
}

// RunBoundary checks extreme and patterned inputs, each from a fresh epoch
// so the mono count is pinned to zero.
func (cv *CrossValidator) RunBoundary() error {
	cases := []struct {
		name     string
		sensorID uint8
		value    uint32
	}{
		{"all-zero", 0x00, 0x00000000},
		{"all-ff", 0xFF, 0xFFFFFFFF},
		{"sid0-valff", 0x00, 0xFFFFFFFF},
		{"sidff-val0", 0xFF, 0x00000000},
		{"min-nonzero", 0x01, 0x00000001},
		{"msb-set", 0x80, 0x80000000},
		{"max-positive", 0x7F, 0x7FFFFFFF},
		{"alternating-1", 0xAA, 0x55555555},
		{"alternating-2", 0x55, 0xAAAAAAAA},
		{"deadbeef", 0x01, 0xDEADBEEF},
		{"sequential", 0x03, 0x12345678},
		{"value-byte3", 0x40, 0xFF000000},
	}
	for _, c := range cases {
		cv.ResetEpoch(0x01)
		if err := cv.CheckOne(c.sensorID, c.value, 0x01); err != nil {
			return fmt.Errorf("boundary %s: %w", c.name, err)
		}
	}
	return nil
}

// RunSessionIsolation seals the same reading across epochs with distinct
// session inputs: the checksum must be identical in every epoch (the
// session id is outside it) while the reported session id tracks the
// input.
func (cv *CrossValidator) RunSessionIsolation(epochs int) error {
	var base uint16
	for i := 0; i < epochs; i++ {
		sid := uint8(i * 25)
		cv.ResetEpoch(sid)
		hw, err := cv.hwCommit(0x42, 0xBEEF0042)
		if err != nil {
			return err
		}
		if hw.SessionID != sid {
			return fmt.Errorf("%w: epoch %d session=0x%02X, want 0x%02X",
				ErrParity, i, hw.SessionID, sid)
		}
		if i == 0 {
			base = hw.CRC16
		} else if hw.CRC16 != base {
			return fmt.Errorf("%w: epoch %d crc=0x%04X differs from epoch 0 crc=0x%04X",
				ErrParity, i, hw.CRC16, base)
		}
	}
	return nil
}

// RunMonotonic seals n readings in one epoch and requires the mono count to
// increase by exactly one per commit on both implementations.
func (cv *CrossValidator) RunMonotonic(n int) error {
	cv.ResetEpoch(0x77)
	for i := 0; i < n; i++ {
		hw, err := cv.hwCommit(uint8(i), uint32(i*1000+42))
		if err != nil {
			return err
		}
		sw := cv.Ref.Commit(uint8(i), uint32(i*1000+42), 0x77)
		if hw != sw {
			return fmt.Errorf("commit %d: %w: hw=%+v sw=%+v", i, ErrParity, hw, sw)
		}
		if hw.MonoCount != uint32(i) {
			return fmt.Errorf("%w: commit %d mono=%d", ErrParity, i, hw.MonoCount)
		}
	}
	return nil
}

// RunWraparound seeds both implementations at the top of the counter range
// and commits across the 0xFFFFFFFF to 0 wrap, requiring agreement on both
// sides of it.
func (cv *CrossValidator) RunWraparound() error {
	cv.ResetEpoch(0x01)
	cv.Reg.RestoreState(0xFFFFFFFF, 0x01)
	cv.Ref.RestoreState(0xFFFFFFFF, 0x01)

	if err := cv.CheckOne(0x01, 0x00C0FFEE, 0x01); err != nil {
		return fmt.Errorf("pre-wrap: %w", err)
	}
	if err := cv.CheckOne(0x02, 0x00C0FFEE, 0x01); err != nil {
		return fmt.Errorf("post-wrap: %w", err)
	}
	rec, ok := cv.Ref.Record()
	if !ok || rec.MonoCount != 0 {
		return fmt.Errorf("%w: post-wrap mono=%d, want 0", ErrParity, rec.MonoCount)
	}
	return nil
}

// RunAll runs every suite with the testbench's scale: 1000 random trials,
// 12 boundary cases, 10 session epochs, 50 sequential commits.
func (cv *CrossValidator) RunAll() error {
	if err := cv.RunGolden(); err != nil {
		return fmt.Errorf("golden: %w", err)
	}
	if err := cv.RunRandom(1000, 12345); err != nil {
		return fmt.Errorf("random: %w", err)
	}
	if err := cv.RunBoundary(); err != nil {
		return err
	}
	if err := cv.RunSessionIsolation(10); err != nil {
		return fmt.Errorf("session isolation: %w", err)
	}
	if err := cv.RunMonotonic(50); err != nil {
		return fmt.Errorf("monotonic: %w", err)
	}
	if err := cv.RunWraparound(); err != nil {
		return fmt.Errorf("wraparound: %w", err)
	}
	return nil
}
