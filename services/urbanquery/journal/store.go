// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists a bounded audit trail of resolved queries in
// BadgerDB. Records expire via BadgerDB's native TTL, so no
// application-level cleanup is needed.
package journal

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// defaultTTL retains journal records for a week.
const defaultTTL = 7 * 24 * time.Hour

// keyPrefix namespaces journal records. Versioned (v1) to allow future
// format changes without collision.
const keyPrefix = "journal/v1/"

// =============================================================================
// Record
// =============================================================================

// Record is one resolved query as written to the journal.
type Record struct {
	RequestID      string
	Question       string
	Context        string
	Answer         string
	Source         string
	Success        bool
	Model          string
	Warnings       []string
	ProcessingTime float64
	Timestamp      time.Time
}

// =============================================================================
// Store
// =============================================================================

// Store writes query records to BadgerDB and reads them back for the
// debug surface.
//
// # Description
//
// All methods are nil-safe: a nil *Store skips persistence entirely,
// which is the correct behavior for tests and for deployments that do
// not configure a journal directory. Journaling failure is never fatal
// to query resolution; callers log and continue.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type Store struct {
	db     *dgbadger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open creates a Store backed by a BadgerDB instance at dir.
//
// # Inputs
//
//   - dir: On-disk location for the journal database.
//   - ttl: Record lifetime. Pass 0 to use the default (7 days).
//   - logger: Logger for diagnostics. May be nil.
//
// # Outputs
//
//   - *Store: Ready-to-use store owning the DB. Close it on shutdown.
//   - error: Non-nil if the database cannot be opened.
func Open(dir string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := dgbadger.DefaultOptions(dir).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: opening badger at %s: %w", dir, err)
	}

	logger.Info("Query journal opened", slog.String("dir", dir), slog.Duration("ttl", ttl))
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Append writes one record with the configured TTL.
//
// # Description
//
// The key is the nanosecond timestamp plus the request ID, so iteration
// order is chronological. Nil-safe: a nil Store returns nil without
// writing.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("journal: encoding record: %w", err)
	}

	key := recordKey(rec)
	err = s.db.Update(func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, raw).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("journal: writing record: %w", err)
	}

	s.logger.Debug("Journal record written",
		slog.String("request_id", rec.RequestID),
		slog.String("source", rec.Source),
	)
	return nil
}

// Recent returns up to limit records, newest first.
//
// Nil-safe: a nil Store returns an empty slice.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []Record
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the end of the prefix range.
		seekKey := append([]byte(keyPrefix), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix([]byte(keyPrefix)) && len(records) < limit; it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: reading records: %w", err)
	}
	return records, nil
}

// Close releases the underlying database. Nil-safe.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// Helpers
// =============================================================================

// recordKey builds a chronologically sortable BadgerDB key.
func recordKey(rec Record) []byte {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []byte(fmt.Sprintf("%s%020d/%s", keyPrefix, ts.UnixNano(), rec.RequestID))
}

func encodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("gob decode: %w", err)
	}
	return rec, nil
}
