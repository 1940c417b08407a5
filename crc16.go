package sealreg

// CRC16 computes CRC16/MODBUS over data: seed 0xFFFF, reflected polynomial
// 0xA001. This is the same checksum the silicon engine produces one byte at
// a time.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// crcFeedCycles is how many cycles the engine stays busy after accepting a
// byte: one per shift round.
const crcFeedCycles = 8

// crcOwner identifies who currently holds the shared checksum engine.
type crcOwner uint8

const (
	ownerNone crcOwner = iota
	ownerSeal
	ownerHost
)

// CRCUnit is a cycle-stepped model of the shared checksum engine. Feeding a
// byte computes the full update and asserts busy for crcFeedCycles ticks;
// feeds arriving while busy are silently ignored, which is the engine's
// contract rather than a defect. Init resets the accumulator at any time,
// busy or not, with no draining.
//
// The unit is exclusively ownable: TryAcquire either grants ownership
// immediately or refuses, never blocks. The seal register holds the unit
// for the duration of a commit; host-side checksum traffic in that window
// is a no-op.
type CRCUnit struct {
	acc   uint16
	busy  int
	owner crcOwner
}

// NewCRCUnit returns an engine in its post-reset state: accumulator 0xFFFF,
// not busy, unowned.
func NewCRCUnit() *CRCUnit {
	return &CRCUnit{acc: 0xFFFF}
}

// Init resets the accumulator to 0xFFFF and clears busy immediately, even
// mid-computation.
func (u *CRCUnit) Init() {
	u.acc = 0xFFFF
	u.busy = 0
}

// Feed offers one byte to the engine. It reports whether the byte was
// accepted; a byte offered while busy is dropped without error and without
// touching the accumulator.
func (u *CRCUnit) Feed(b byte) bool {
	if u.busy > 0 {
		return false
	}
	crc := u.acc ^ uint16(b)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0xA001
		} else {
			crc >>= 1
		}
	}
	u.acc = crc
	u.busy = crcFeedCycles
	return true
}

// Result returns the current accumulator. It is readable at any time; the
// value is meaningful only while the engine is not busy.
func (u *CRCUnit) Result() uint16 { return u.acc }

// Busy reports whether the engine is still shifting the last byte.
func (u *CRCUnit) Busy() bool { return u.busy > 0 }

// Tick advances the engine one cycle.
func (u *CRCUnit) Tick() {
	if u.busy > 0 {
		u.busy--
	}
}

// tryAcquire grants exclusive ownership to who if the unit is free or
// already held by who. It never blocks: contention is an immediate refusal.
func (u *CRCUnit) tryAcquire(who crcOwner) bool {
	if u.owner == ownerNone || u.owner == who {
		u.owner = who
		return true
	}
	return false
}

// release returns the unit to the free state if who holds it.
func (u *CRCUnit) release(who crcOwner) {
	if u.owner == who {
		u.owner = ownerNone
	}
}

// sealBytes lays out the canonical 9-byte checksum input: sensor id, then
// value little-endian, then mono count little-endian. This order is fixed;
// it is what the silicon feeds and what every golden vector assumes.
func sealBytes(sensorID uint8, value, mono uint32) [9]byte {
	var buf [9]byte
	buf[0] = sensorID
	buf[1] = byte(value)
	buf[2] = byte(value >> 8)
	buf[3] = byte(value >> 16)
	buf[4] = byte(value >> 24)
	buf[5] = byte(mono)
	buf[6] = byte(mono >> 8)
	buf[7] = byte(mono >> 16)
	buf[8] = byte(mono >> 24)
	return buf
}

// SealCRC16 computes the checksum of one seal directly from its inputs.
func SealCRC16(sensorID uint8, value, mono uint32) uint16 {
	b := sealBytes(sensorID, value, mono)
	return CRC16(b[:])
}
