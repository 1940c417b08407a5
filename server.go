package sealreg

import (
	"crypto/tls"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Server exposes a Collector over HTTP(S): epoch registration, batch
// submission, and final verification. Request bodies may be gob (the
// default) or protobuf wire format, selected by Content-Type, mirroring
// the two transports.
type Server struct {
	Collector *Collector
	tlsConfig *tls.Config

	// NewStore, when set, is invoked at epoch registration to attach a
	// storage backend for that epoch.
	NewStore func(epochID string) (Store, error)
}

// NewServer creates a collector server with a fresh Collector.
func NewServer() *Server {
	return &Server{Collector: NewCollector()}
}

// SetTLSConfig clones cfg for use when serving HTTPS. A nil cfg restores
// the defaults.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	if cfg == nil {
		s.tlsConfig = nil
		return
	}
	s.tlsConfig = cfg.Clone()
}

func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-protobuf") ||
		strings.HasPrefix(ct, "application/protobuf")
}

func decodeEpoch(r *http.Request) (EpochInfo, error) {
	if isProtobuf(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return EpochInfo{}, fmt.Errorf("read body: %w", err)
		}
		return UnmarshalEpoch(body)
	}
	var info EpochInfo
	if err := gob.NewDecoder(r.Body).Decode(&info); err != nil {
		return EpochInfo{}, fmt.Errorf("decode gob: %w", err)
	}
	return info, nil
}

func decodeSeals(r *http.Request, epochID string) ([]SealedRecord, error) {
	if isProtobuf(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		batchID, records, err := UnmarshalBatch(body)
		if err != nil {
			return nil, err
		}
		if batchID != "" && batchID != epochID {
			return nil, fmt.Errorf("batch epoch %q does not match path epoch %q", batchID, epochID)
		}
		return records, nil
	}
	var records []SealedRecord
	if err := gob.NewDecoder(r.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode gob: %w", err)
	}
	return records, nil
}

// HandleRegister handles POST /api/v1/epochs/register.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info, err := decodeEpoch(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid epoch: %v", err), http.StatusBadRequest)
		return
	}

	s.Collector.RegisterEpoch(info)
	if s.NewStore != nil {
		st, err := s.NewStore(info.EpochID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Open store: %v", err), http.StatusInternalServerError)
			return
		}
		s.Collector.RegisterStore(info.EpochID, st)
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   "registered",
		"epoch_id": info.EpochID,
	})
}

// HandleEpochs dispatches POST /api/v1/epochs/{epochID}/seals and
// POST /api/v1/epochs/{epochID}/verify.
func (s *Server) HandleEpochs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/epochs/")
	switch {
	case strings.HasSuffix(rest, "/seals"):
		s.handleSeals(w, r, strings.TrimSuffix(rest, "/seals"))
	case strings.HasSuffix(rest, "/verify"):
		s.handleVerify(w, r, strings.TrimSuffix(rest, "/verify"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSeals(w http.ResponseWriter, r *http.Request, epochID string) {
	records, err := decodeSeals(r, epochID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid batch: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.Collector.SubmitSeals(epochID, records); err != nil {
		http.Error(w, fmt.Sprintf("Submit failed: %v", err), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "accepted",
		"epoch_id": epochID,
		"count":    len(records),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, epochID string) {
	err := s.Collector.FinalVerify(epochID)

	if isProtobuf(r) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		if err != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(MarshalStatus(false, err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(MarshalStatus(true, ""))
		return
	}

	if err != nil {
		http.Error(w, fmt.Sprintf("Verification failed: %v", err), http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "verified",
		"epoch_id": epochID,
		"verified": true,
	})
}

// SetupRoutes configures the collector's HTTP routes on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/epochs/register", s.HandleRegister)
	mux.HandleFunc("/api/v1/epochs/", s.HandleEpochs)
}

func (s *Server) tlsConfigWithDefaults() *tls.Config {
	if s.tlsConfig == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg := s.tlsConfig.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// ListenAndServe starts the collector over plain HTTP.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return (&http.Server{Addr: addr, Handler: mux}).ListenAndServe()
}

// ListenAndServeTLS starts the collector over HTTPS.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	server := &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: s.tlsConfigWithDefaults(),
	}
	return server.ListenAndServeTLS(certFile, keyFile)
}
