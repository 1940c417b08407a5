// Command sealregd runs the seal collector: an HTTP(S) endpoint that
// registers device reset epochs, accepts batches of sealed telemetry
// records, verifies them on arrival, and persists them per epoch.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	flag "github.com/spf13/pflag"

	"github.com/karasz/sealreg"
)

type config struct {
	Addr     string `env:"SEALREGD_ADDR" envDefault:":8080"`
	DataDir  string `env:"SEALREGD_DATA_DIR" envDefault:"./sealregd-data"`
	Backend  string `env:"SEALREGD_STORE" envDefault:"sqlite"`
	CertFile string `env:"SEALREGD_TLS_CERT"`
	KeyFile  string `env:"SEALREGD_TLS_KEY"`
}

func openStore(cfg config, epochID string) (sealreg.Store, error) {
	// Epoch ids come from the network; never let them escape the data dir.
	dir := filepath.Join(cfg.DataDir, filepath.Base(epochID))
	switch cfg.Backend {
	case "file":
		return sealreg.OpenFileStore(dir)
	case "sqlite":
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		return sealreg.OpenSQLiteStore(filepath.Join(dir, "seals.db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "per-epoch storage directory")
	flag.StringVar(&cfg.Backend, "store", cfg.Backend, "storage backend: sqlite or file")
	flag.StringVar(&cfg.CertFile, "tls-cert", cfg.CertFile, "TLS certificate file (enables HTTPS)")
	flag.StringVar(&cfg.KeyFile, "tls-key", cfg.KeyFile, "TLS key file")
	flag.Parse()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	srv := sealreg.NewServer()
	srv.NewStore = func(epochID string) (sealreg.Store, error) {
		return openStore(cfg, epochID)
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		log.Printf("sealregd listening on %s (TLS), storing in %s (%s)",
			cfg.Addr, cfg.DataDir, cfg.Backend)
		log.Fatal(srv.ListenAndServeTLS(cfg.Addr, cfg.CertFile, cfg.KeyFile))
	}
	log.Printf("sealregd listening on %s, storing in %s (%s)",
		cfg.Addr, cfg.DataDir, cfg.Backend)
	log.Fatal(srv.ListenAndServe(cfg.Addr))
}
