package sealreg

import (
	"errors"
	"testing"
)

func TestLocalTransport(t *testing.T) {
	c := NewCollector()
	tr := NewLocalTransport(c)

	if err := tr.RegisterEpoch(EpochInfo{EpochID: "e", SessionID: 0x42}); err != nil {
		t.Fatal(err)
	}
	if err := tr.SendSeals("e", makeSeals(0, 10, 0x42)); err != nil {
		t.Fatal(err)
	}
	n, _ := c.SealCount("e")
	if n != 10 {
		t.Fatalf("seal count = %d, want 10", n)
	}
}

func TestUplink_BatchesAndFlushes(t *testing.T) {
	c := NewCollector()
	st, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	up, err := NewUplink(NewLocalTransport(c), EpochInfo{EpochID: "e", SessionID: 0x42}, 4)
	if err != nil {
		t.Fatal(err)
	}
	c.RegisterStore("e", st)

	records := makeSeals(0, 10, 0x42)
	for _, r := range records {
		if err := up.Push(r); err != nil {
			t.Fatal(err)
		}
	}
	// Two full batches of 4 went out; 2 records are still buffered.
	n, _ := c.SealCount("e")
	if n != 8 {
		t.Fatalf("count before flush = %d, want 8", n)
	}
	if err := up.Flush(); err != nil {
		t.Fatal(err)
	}
	n, _ = c.SealCount("e")
	if n != 10 {
		t.Fatalf("count after flush = %d, want 10", n)
	}
	if err := c.FinalVerify("e"); err != nil {
		t.Fatal(err)
	}
}

type failingTransport struct {
	inner Transport
	fail  bool
}

func (f *failingTransport) RegisterEpoch(info EpochInfo) error { return f.inner.RegisterEpoch(info) }
func (f *failingTransport) VerifyEpoch(id string) (bool, error) {
	return f.inner.VerifyEpoch(id)
}
func (f *failingTransport) SendSeals(id string, records []SealedRecord) error {
	if f.fail {
		return errors.New("link down")
	}
	return f.inner.SendSeals(id, records)
}

func TestUplink_RetryAfterFailureKeepsSequence(t *testing.T) {
	c := NewCollector()
	ft := &failingTransport{inner: NewLocalTransport(c)}
	up, err := NewUplink(ft, EpochInfo{EpochID: "e", SessionID: 0x42}, 0)
	if err != nil {
		t.Fatal(err)
	}

	records := makeSeals(0, 6, 0x42)
	for _, r := range records[:3] {
		_ = up.Push(r)
	}
	ft.fail = true
	if err := up.Flush(); err == nil {
		t.Fatal("flush succeeded over a dead link")
	}

	// The buffer survives, so the retry resubmits the same contiguous run.
	ft.fail = false
	for _, r := range records[3:] {
		_ = up.Push(r)
	}
	if err := up.Flush(); err != nil {
		t.Fatal(err)
	}
	n, _ := c.SealCount("e")
	if n != 6 {
		t.Fatalf("count = %d, want 6", n)
	}
}
