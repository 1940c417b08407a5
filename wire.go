package sealreg

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Protobuf wire schema, hand-encoded with protowire (the generated-code
// route needs protoc; the messages here are four fields each and the wire
// format is the contract, so the low-level API carries them directly).
//
//	SealedRecord: 1 sensor_id varint, 2 value fixed32, 3 session_id varint,
//	              4 mono_count fixed32, 5 crc16 varint
//	SealBatch:    1 epoch_id string, 2 record message (repeated)
//	Epoch:        1 epoch_id string, 2 session_id varint,
//	              3 boot_time_unix_nanos varint
//	Status:       1 ok varint, 2 message string

// AppendRecord appends the wire encoding of one record to b.
func AppendRecord(b []byte, r SealedRecord) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SensorID))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, r.Value)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.SessionID))
	b = protowire.AppendTag(b, 4, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, r.MonoCount)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.CRC16))
	return b
}

// UnmarshalRecord decodes one record message.
func UnmarshalRecord(data []byte) (SealedRecord, error) {
	var r SealedRecord
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, fmt.Errorf("record: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("sensor_id: %w", protowire.ParseError(n))
			}
			r.SensorID = uint8(v)
			data = data[n:]
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return r, fmt.Errorf("value: %w", protowire.ParseError(n))
			}
			r.Value = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("session_id: %w", protowire.ParseError(n))
			}
			r.SessionID = uint8(v)
			data = data[n:]
		case num == 4 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return r, fmt.Errorf("mono_count: %w", protowire.ParseError(n))
			}
			r.MonoCount = v
			data = data[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("crc16: %w", protowire.ParseError(n))
			}
			r.CRC16 = uint16(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, fmt.Errorf("record field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

// MarshalBatch encodes an epoch id plus its run of records.
func MarshalBatch(epochID string, records []SealedRecord) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, epochID)
	for _, r := range records {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendRecord(nil, r))
	}
	return b
}

// UnmarshalBatch decodes a batch message.
func UnmarshalBatch(data []byte) (epochID string, records []SealedRecord, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", nil, fmt.Errorf("batch: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", nil, fmt.Errorf("epoch_id: %w", protowire.ParseError(n))
			}
			epochID = v
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return "", nil, fmt.Errorf("batch record: %w", protowire.ParseError(n))
			}
			r, err := UnmarshalRecord(v)
			if err != nil {
				return "", nil, fmt.Errorf("batch record %d: %w", len(records), err)
			}
			records = append(records, r)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", nil, fmt.Errorf("batch field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return epochID, records, nil
}

// MarshalEpoch encodes epoch registration metadata.
func MarshalEpoch(info EpochInfo) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, info.EpochID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(info.SessionID))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(info.BootTime.UnixNano()))
	return b
}

// UnmarshalEpoch decodes epoch registration metadata.
func UnmarshalEpoch(data []byte) (EpochInfo, error) {
	var info EpochInfo
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return info, fmt.Errorf("epoch: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return info, fmt.Errorf("epoch_id: %w", protowire.ParseError(n))
			}
			info.EpochID = v
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return info, fmt.Errorf("session_id: %w", protowire.ParseError(n))
			}
			info.SessionID = uint8(v)
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return info, fmt.Errorf("boot_time: %w", protowire.ParseError(n))
			}
			info.BootTime = time.Unix(0, int64(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return info, fmt.Errorf("epoch field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return info, nil
}

// MarshalStatus encodes a verification outcome.
func MarshalStatus(ok bool, msg string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	if ok {
		b = protowire.AppendVarint(b, 1)
	} else {
		b = protowire.AppendVarint(b, 0)
	}
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, msg)
	return b
}

// UnmarshalStatus decodes a verification outcome.
func UnmarshalStatus(data []byte) (ok bool, msg string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return false, "", fmt.Errorf("status: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return false, "", fmt.Errorf("ok: %w", protowire.ParseError(n))
			}
			ok = v != 0
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return false, "", fmt.Errorf("message: %w", protowire.ParseError(n))
			}
			msg = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return false, "", fmt.Errorf("status field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return ok, msg, nil
}
