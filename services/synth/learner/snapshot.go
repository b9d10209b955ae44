// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// snapshotVersion is bumped when the snapshot layout changes.
const snapshotVersion = 1

// ErrNoSnapshot is returned by a SnapshotStore that holds no snapshot.
var ErrNoSnapshot = errors.New("no learner snapshot stored")

// SnapshotStore persists serialized learner snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
}

type snapshot struct {
	Version    int       `json:"version"`
	MaxHistory int       `json:"max_history"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Snapshot serializes the outcome window to JSON.
func (l *Learner) Snapshot() ([]byte, error) {
	l.mu.RLock()
	snap := snapshot{
		Version:    snapshotVersion,
		MaxHistory: l.maxHistory,
		Outcomes:   append([]Outcome(nil), l.history...),
	}
	l.mu.RUnlock()
	return json.Marshal(snap)
}

// Restore replaces the outcome window with a snapshot.
//
// Description:
//
//	The learner keeps its own MaxHistory. When the snapshot holds more
//	outcomes than fit, only the newest are kept.
func (l *Learner) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode learner snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported learner snapshot version %d", snap.Version)
	}

	outcomes := snap.Outcomes
	l.mu.Lock()
	if over := len(outcomes) - l.maxHistory; over > 0 {
		outcomes = outcomes[over:]
	}
	l.history = append(make([]Outcome, 0, len(outcomes)), outcomes...)
	l.mu.Unlock()
	return nil
}

// Save writes a snapshot to store.
func (l *Learner) Save(ctx context.Context, store SnapshotStore) error {
	data, err := l.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot learner: %w", err)
	}
	if err := store.SaveSnapshot(ctx, data); err != nil {
		return fmt.Errorf("save learner snapshot: %w", err)
	}
	return nil
}

// Load restores the learner from store. A store without a snapshot leaves
// the learner unchanged and returns nil.
func (l *Learner) Load(ctx context.Context, store SnapshotStore) error {
	data, err := store.LoadSnapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		l.logger.Debug("no learner snapshot to restore")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load learner snapshot: %w", err)
	}
	if err := l.Restore(data); err != nil {
		return err
	}
	l.logger.Info("learner snapshot restored", slog.Int("outcomes", l.Len()))
	return nil
}
