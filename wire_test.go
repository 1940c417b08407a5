package sealreg

import (
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestWire_RecordRoundtrip(t *testing.T) {
	want := SealedRecord{
		SensorID:  0xAA,
		Value:     0xDEADBEEF,
		SessionID: 0x42,
		MonoCount: 0xFFFFFFFF,
		CRC16:     0xE80E,
	}
	got, err := UnmarshalRecord(AppendRecord(nil, want))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestWire_BatchRoundtrip(t *testing.T) {
	records := makeSeals(0, 7, 0x42)
	epochID, got, err := UnmarshalBatch(MarshalBatch("dev1-boot3", records))
	if err != nil {
		t.Fatal(err)
	}
	if epochID != "dev1-boot3" {
		t.Fatalf("epoch id = %q", epochID)
	}
	if len(got) != len(records) {
		t.Fatalf("decoded %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Fatalf("record %d: got %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestWire_EpochRoundtrip(t *testing.T) {
	want := EpochInfo{
		EpochID:   "dev7-boot1",
		SessionID: 0xA7,
		BootTime:  time.Unix(0, 1700000000123456789),
	}
	got, err := UnmarshalEpoch(MarshalEpoch(want))
	if err != nil {
		t.Fatal(err)
	}
	if got.EpochID != want.EpochID || got.SessionID != want.SessionID ||
		!got.BootTime.Equal(want.BootTime) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestWire_Status(t *testing.T) {
	ok, msg, err := UnmarshalStatus(MarshalStatus(false, "checksum mismatch"))
	if err != nil {
		t.Fatal(err)
	}
	if ok || msg != "checksum mismatch" {
		t.Fatalf("ok=%v msg=%q", ok, msg)
	}
}

func TestWire_SkipsUnknownFields(t *testing.T) {
	// A future sender may add fields; decoders must skip them.
	b := AppendRecord(nil, SealedRecord{SensorID: 5, MonoCount: 9, CRC16: 0x1234})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "ignore me")

	got, err := UnmarshalRecord(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.SensorID != 5 || got.MonoCount != 9 || got.CRC16 != 0x1234 {
		t.Fatalf("got %+v", got)
	}
}

func TestWire_Truncated(t *testing.T) {
	b := AppendRecord(nil, makeSeals(0, 1, 1)[0])
	if _, err := UnmarshalRecord(b[:len(b)-1]); err == nil {
		t.Fatal("truncated record decoded without error")
	}
}
