// Package sealreg implements a tamper-evident telemetry sealing engine:
// each sensor reading is bound to a strictly monotonic sequence number and
// a per-boot session identity, then stamped with a CRC16/MODBUS checksum
// computed over a canonical byte layout. The package carries two
// interchangeable implementations of the sealing algorithm, a
// cycle-stepped register model (SealRegister) mirroring the silicon state
// machine and a synchronous reference engine (SealEngine), plus the
// cross-validation harness that holds them bit-for-bit equal, and the
// host-side storage, transport, and collector layers used to ship sealed
// records off-device and verify them centrally.
package sealreg

import (
	"errors"
	"time"
)

// SealedRecord is one sealed telemetry reading. The checksum covers the
// sensor id, value, and mono count in that order (value and mono count
// little-endian); the session id is reported alongside but is deliberately
// outside the checksum so that identical readings seal identically across
// sessions.
type SealedRecord struct {
	SensorID  uint8
	Value     uint32
	SessionID uint8
	MonoCount uint32
	CRC16     uint16
}

// SealWords is the number of words in the serialized readout of one record.
const SealWords = 3

// Store abstracts persistence of sealed records for one epoch.
type Store interface {
	Append(r SealedRecord) error
	Iter(startMono uint32) (<-chan SealedRecord, func() error, error)
	Tail() (SealedRecord, bool, error)
	Count() (uint64, error)
}

// EpochInfo describes one reset epoch as registered with a collector.
type EpochInfo struct {
	EpochID   string
	SessionID uint8
	BootTime  time.Time
}

// ErrSeqGap indicates a gap or reordering in the mono count sequence.
var ErrSeqGap = errors.New("mono count gap or reordering detected")

// ErrChecksumMismatch indicates a record whose stored checksum does not
// match a recomputation from its fields.
var ErrChecksumMismatch = errors.New("checksum mismatch: tampering or corruption")

// ErrSessionMismatch indicates records with differing session ids inside
// one epoch.
var ErrSessionMismatch = errors.New("session id mismatch within epoch")

// ErrLiveness indicates the register model failed to complete a commit
// within its cycle budget. It is fatal: a stuck engine, never retryable.
var ErrLiveness = errors.New("liveness violation: busy never cleared within cycle budget")

// ErrParity indicates the register model and the reference engine disagreed
// for identical inputs.
var ErrParity = errors.New("hardware/software parity mismatch")

// ErrUnknownEpoch is returned by the collector for operations against an
// epoch that was never registered.
var ErrUnknownEpoch = errors.New("unknown epoch")
