package sealreg

// ControlWord is the structured form of a write to the seal control
// register: the sensor id plus the commit and checksum-reset request bits.
// When both bits are set the commit wins; the per-commit engine init makes
// the reset request redundant in that case.
type ControlWord struct {
	SensorID uint8
	Commit   bool
	CRCReset bool
}

// Control register bit layout: bit 0 = crc_reset, bit 1 = commit,
// bits 9..2 = sensor id.
const (
	ctrlCRCReset = 1 << 0
	ctrlCommit   = 1 << 1
	ctrlMask     = 0x3FF
)

// PackControl encodes a ControlWord into the 10-bit register encoding.
func PackControl(c ControlWord) uint16 {
	v := uint16(c.SensorID) << 2
	if c.Commit {
		v |= ctrlCommit
	}
	if c.CRCReset {
		v |= ctrlCRCReset
	}
	return v
}

// UnpackControl decodes the 10-bit register encoding.
func UnpackControl(v uint16) ControlWord {
	v &= ctrlMask
	return ControlWord{
		SensorID: uint8(v >> 2),
		Commit:   v&ctrlCommit != 0,
		CRCReset: v&ctrlCRCReset != 0,
	}
}

// SealStatus is the read-visible state of the seal register.
type SealStatus struct {
	Ready         bool
	Busy          bool
	CommitDropped bool
}

// Status register bit layout: bit 0 = busy, bit 1 = ready, bit 2 = dropped.
const (
	statusBusy    = 1 << 0
	statusReady   = 1 << 1
	statusDropped = 1 << 2
)

// PackStatus encodes a SealStatus into its register encoding.
func PackStatus(s SealStatus) uint16 {
	var v uint16
	if s.Busy {
		v |= statusBusy
	}
	if s.Ready {
		v |= statusReady
	}
	if s.CommitDropped {
		v |= statusDropped
	}
	return v
}

// sealWords serializes a record into the 3-word readout sequence:
//
//	word0: value
//	word1: {session_id, mono_count[23:0]}
//	word2: {mono_count[31:24], crc16, 0x00}
func sealWords(r SealedRecord) [SealWords]uint32 {
	return [SealWords]uint32{
		r.Value,
		uint32(r.SessionID)<<24 | r.MonoCount&0x00FFFFFF,
		r.MonoCount&0xFF000000 | uint32(r.CRC16)<<8,
	}
}

// RecordFromWords reassembles a SealedRecord from its 3-word readout. The
// sensor id is not part of the readout; callers that need a self-verifying
// record must supply it from the control word they committed with.
func RecordFromWords(w [SealWords]uint32, sensorID uint8) SealedRecord {
	return SealedRecord{
		SensorID:  sensorID,
		Value:     w[0],
		SessionID: uint8(w[1] >> 24),
		MonoCount: w[2]&0xFF000000 | w[1]&0x00FFFFFF,
		CRC16:     uint16(w[2] >> 8),
	}
}
