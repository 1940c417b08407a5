package sealreg

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
)

// Transport defines how a device ships sealed telemetry to the collector.
// Implementations may use HTTP, message queues, or an in-process collector.
type Transport interface {
	// RegisterEpoch announces a new reset epoch before any seals are sent.
	RegisterEpoch(info EpochInfo) error

	// SendSeals submits a batch of sealed records continuing the epoch's
	// sequence.
	SendSeals(epochID string, records []SealedRecord) error

	// VerifyEpoch asks the collector for an authoritative verification of
	// the full epoch. Returns true if the epoch verified.
	VerifyEpoch(epochID string) (bool, error)
}

// HTTPTransport implements Transport over HTTP/HTTPS with gob bodies.
type HTTPTransport struct {
	BaseURL string       // base URL of the collector (e.g. "https://seals.example.com")
	Client  *http.Client // customizable timeouts, TLS, etc.
}

// NewHTTPTransport creates a gob-over-HTTP transport for the collector at
// baseURL.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, Client: &http.Client{}}
}

func (t *HTTPTransport) post(url string, body io.Reader) error {
	resp, err := t.Client.Post(url, "application/octet-stream", body)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("collector returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// RegisterEpoch sends the epoch metadata via HTTP POST.
func (t *HTTPTransport) RegisterEpoch(info EpochInfo) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return fmt.Errorf("encode epoch: %w", err)
	}
	return t.post(t.BaseURL+"/api/v1/epochs/register", &buf)
}

// SendSeals submits a batch via HTTP POST.
func (t *HTTPTransport) SendSeals(epochID string, records []SealedRecord) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return fmt.Errorf("encode seals: %w", err)
	}
	return t.post(fmt.Sprintf("%s/api/v1/epochs/%s/seals", t.BaseURL, epochID), &buf)
}

// VerifyEpoch requests final verification of the epoch.
func (t *HTTPTransport) VerifyEpoch(epochID string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/epochs/%s/verify", t.BaseURL, epochID)
	resp, err := t.Client.Post(url, "application/octet-stream", nil)
	if err != nil {
		return false, fmt.Errorf("post verify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	msg, _ := io.ReadAll(resp.Body)
	return false, fmt.Errorf("verification failed: %s", msg)
}

// LocalTransport is a Transport backed by an in-process Collector. Useful
// for tests and single-machine deployments where device and collector are
// co-located.
type LocalTransport struct {
	Collector *Collector
}

// NewLocalTransport creates a transport bound to a local collector.
func NewLocalTransport(c *Collector) *LocalTransport {
	return &LocalTransport{Collector: c}
}

// RegisterEpoch registers the epoch with the local collector.
func (t *LocalTransport) RegisterEpoch(info EpochInfo) error {
	t.Collector.RegisterEpoch(info)
	return nil
}

// SendSeals submits the batch to the local collector.
func (t *LocalTransport) SendSeals(epochID string, records []SealedRecord) error {
	return t.Collector.SubmitSeals(epochID, records)
}

// VerifyEpoch performs final verification on the local collector.
func (t *LocalTransport) VerifyEpoch(epochID string) (bool, error) {
	err := t.Collector.FinalVerify(epochID)
	return err == nil, err
}

// Uplink couples a sealing source to a transport: it registers the epoch on
// construction, buffers sealed records, and flushes them in batches.
type Uplink struct {
	EpochID   string
	Transport Transport

	buf       []SealedRecord
	batchSize int
}

// NewUplink registers the epoch and returns an uplink that flushes every
// batchSize records (a batchSize of 0 means flush only on demand).
func NewUplink(transport Transport, info EpochInfo, batchSize int) (*Uplink, error) {
	if err := transport.RegisterEpoch(info); err != nil {
		return nil, fmt.Errorf("register epoch: %w", err)
	}
	return &Uplink{EpochID: info.EpochID, Transport: transport, batchSize: batchSize}, nil
}

// Push queues one sealed record, flushing if the batch is full.
func (u *Uplink) Push(r SealedRecord) error {
	u.buf = append(u.buf, r)
	if u.batchSize > 0 && len(u.buf) >= u.batchSize {
		return u.Flush()
	}
	return nil
}

// Flush sends all queued records. The buffer is kept on failure so a retry
// resubmits the same contiguous run.
func (u *Uplink) Flush() error {
	if len(u.buf) == 0 {
		return nil
	}
	if err := u.Transport.SendSeals(u.EpochID, u.buf); err != nil {
		return err
	}
	u.buf = u.buf[:0]
	return nil
}
