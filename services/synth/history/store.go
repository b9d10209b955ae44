// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSynth/services/synth/learner"
	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
)

// Key layout:
//
//	hist/<20-digit unix nanos>/<id>  -> JSON routing.HistoryRecord
//	learner/snapshot                  -> learner snapshot bytes
//
// Zero-padded timestamps make key order equal record order.
const (
	recordPrefix = "hist/"
	snapshotKey  = "learner/snapshot"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store is closed")

// BadgerStore is a routing.HistoryStore and learner.SnapshotStore backed by
// BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var (
	_ routing.HistoryStore  = (*BadgerStore)(nil)
	_ learner.SnapshotStore = (*BadgerStore)(nil)
)

// Open opens a BadgerStore.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*BadgerStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := &BadgerStore{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		store.gc = runner
	}
	return store, nil
}

// OpenInMemory opens an in-memory store. Data is lost on Close.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Append stores one record. Missing IDs are generated.
func (s *BadgerStore) Append(ctx context.Context, record routing.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	key := fmt.Sprintf("%s%020d/%s", recordPrefix, record.RecordedAt.UnixNano(), record.ID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Query returns up to limit records, newest first.
//
// Description:
//
//	The "strategy" filter keeps records of one strategy. The query text is
//	not used for matching; records are selected by recency. A limit <= 0
//	returns every matching record.
func (s *BadgerStore) Query(ctx context.Context, _ string, limit int, filters map[string]string) ([]routing.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wantStrategy := filters["strategy"]

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var records []routing.HistoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek key.
		seek := append([]byte(recordPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(recordPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec routing.HistoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode history record %s: %w", it.Item().Key(), err)
			}
			if wantStrategy != "" && rec.Strategy != wantStrategy {
				continue
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveSnapshot stores a learner snapshot, replacing any previous one.
func (s *BadgerStore) SaveSnapshot(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
}

// LoadSnapshot returns the stored learner snapshot, or
// learner.ErrNoSnapshot.
func (s *BadgerStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, learner.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read learner snapshot: %w", err)
	}
	return data, nil
}

// Close stops GC and closes the database. Safe to call multiple times.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}
