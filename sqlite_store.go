package sealreg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

type sqliteStore struct{ db *sql.DB }

// OpenSQLiteStore opens/creates a SQLite DB for one epoch's sealed records
// and ensures schema + PRAGMAs.
func OpenSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := &sqliteStore{db: db}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	// seq preserves arrival order so the mono counter's 2^32 wrap does not
	// break iteration ordering.
	schema := `
CREATE TABLE IF NOT EXISTS seals (
  seq     INTEGER PRIMARY KEY AUTOINCREMENT,
  mono    INTEGER NOT NULL,
  sensor  INTEGER NOT NULL,
  session INTEGER NOT NULL,
  value   INTEGER NOT NULL,
  crc     INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// Append stores one sealed record after checking it continues the epoch's
// sequence: exactly one past the stored tail, with the wrap at 2^32 a legal
// step. An empty store accepts any starting mono so restored-state epochs
// can be persisted.
func (s *sqliteStore) Append(r SealedRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var tailMono int64
	err = tx.QueryRowContext(ctx,
		`SELECT mono FROM seals ORDER BY seq DESC LIMIT 1`).Scan(&tailMono)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first record of the epoch
	case err != nil:
		return err
	default:
		want := uint32(tailMono) + 1 // wraps at 2^32
		if r.MonoCount != want {
			return fmt.Errorf("%w: have %d, got %d", ErrSeqGap, uint32(tailMono), r.MonoCount)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seals(mono, sensor, session, value, crc) VALUES(?, ?, ?, ?, ?)`,
		int64(r.MonoCount), r.SensorID, r.SessionID, int64(r.Value), r.CRC16); err != nil {
		return err
	}

	return tx.Commit()
}

// Iter streams records in arrival order starting from the first occurrence
// of startMono. An unknown startMono yields an empty stream.
func (s *sqliteStore) Iter(startMono uint32) (<-chan SealedRecord, func() error, error) {
	ctx, cancel := context.WithCancel(context.Background())
	query := `SELECT mono, sensor, session, value, crc FROM seals
	          WHERE seq >= COALESCE((SELECT MIN(seq) FROM seals WHERE mono = ?), seq + 1)
	          ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query, int64(startMono))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	out := make(chan SealedRecord, 64)
	go func() {
		defer close(out)
		defer rows.Close()
		defer cancel()
		for rows.Next() {
			var mono, value int64
			var sensor, session uint8
			var crc int64
			if err := rows.Scan(&mono, &sensor, &session, &value, &crc); err != nil {
				return
			}
			select {
			case out <- SealedRecord{
				SensorID:  sensor,
				Value:     uint32(value),
				SessionID: session,
				MonoCount: uint32(mono),
				CRC16:     uint16(crc),
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() error { cancel(); return nil }, nil
}

// Tail returns the most recently appended record.
func (s *sqliteStore) Tail() (SealedRecord, bool, error) {
	var mono, value, crc int64
	var sensor, session uint8
	err := s.db.QueryRow(
		`SELECT mono, sensor, session, value, crc FROM seals ORDER BY seq DESC LIMIT 1`).
		Scan(&mono, &sensor, &session, &value, &crc)
	if errors.Is(err, sql.ErrNoRows) {
		return SealedRecord{}, false, nil
	}
	if err != nil {
		return SealedRecord{}, false, err
	}
	return SealedRecord{
		SensorID:  sensor,
		Value:     uint32(value),
		SessionID: session,
		MonoCount: uint32(mono),
		CRC16:     uint16(crc),
	}, true, nil
}

// Count reports how many records are stored.
func (s *sqliteStore) Count() (uint64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM seals`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Close closes the underlying database.
func (s *sqliteStore) Close() error { return s.db.Close() }
