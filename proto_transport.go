package sealreg

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ProtoHTTPTransport implements Transport with protobuf wire-format bodies
// over HTTP/HTTPS. More compact than gob and language-agnostic, so a
// non-Go collector can consume the same submissions.
type ProtoHTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewProtoHTTPTransport creates a protobuf HTTP transport for the collector
// at baseURL.
func NewProtoHTTPTransport(baseURL string) *ProtoHTTPTransport {
	return &ProtoHTTPTransport{BaseURL: baseURL, Client: &http.Client{}}
}

func (t *ProtoHTTPTransport) post(url string, body []byte) error {
	resp, err := t.Client.Post(url, "application/x-protobuf", bytes.NewReader(body))
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

// RegisterEpoch sends the epoch metadata as a protobuf message.
func (t *ProtoHTTPTransport) RegisterEpoch(info EpochInfo) error {
	return t.post(t.BaseURL+"/api/v1/epochs/register", MarshalEpoch(info))
}

// SendSeals submits a batch as a protobuf message.
func (t *ProtoHTTPTransport) SendSeals(epochID string, records []SealedRecord) error {
	url := fmt.Sprintf("%s/api/v1/epochs/%s/seals", t.BaseURL, epochID)
	return t.post(url, MarshalBatch(epochID, records))
}

// VerifyEpoch requests final verification; the outcome comes back as a
// protobuf status message.
func (t *ProtoHTTPTransport) VerifyEpoch(epochID string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/epochs/%s/verify", t.BaseURL, epochID)
	resp, err := t.Client.Post(url, "application/x-protobuf", nil)
	if err != nil {
		return false, fmt.Errorf("post verify: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("collector returned %d: %s", resp.StatusCode, body)
	}
	ok, msg, err := UnmarshalStatus(body)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("verification failed: %s", msg)
	}
	return true, nil
}
