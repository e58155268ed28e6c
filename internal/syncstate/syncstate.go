// Package syncstate implements the per-folder sync state machine (C4):
// Initial, Incremental, and Backfill modes, their reconciliation rules, and
// the debounce/pending-sync bookkeeping that gates when a sync actually
// runs. Grounded on internal/sync/engine.go's per-mode dispatch and
// internal/sync/scheduler.go's per-account debounce/cancel map, generalised
// here to per-folder.
package syncstate

import (
	"strings"
	"sync"
	"time"
)

// ModeKind tags a sync Mode's variant.
type ModeKind int

const (
	ModeInitial ModeKind = iota
	ModeIncremental
	ModeBackfill
)

// Mode is one sync invocation's parameters (spec.md §4.4).
type Mode struct {
	Kind ModeKind

	// ModeInitial
	Days int

	// ModeIncremental
	LastSeenUID uint32

	// ModeBackfill
	BeforeTS   int64
	WindowDays int
}

// Result is what a completed sync batch reports back for reconciliation.
type Result struct {
	UIDs  []uint32
	Dates []int64 // parsed dates, aligned 1:1 is not required; used only for min
}

// SyncUpdate computes the spec.md §4.4 merge payload from a sync result:
// last_seen_uid = max(uids), oldest_ts = min(parsed dates), last_sync_ts = now.
type SyncUpdate struct {
	LastSeenUID *uint32
	OldestTS    *int64
	LastSyncTS  int64
}

// ComputeSyncUpdate derives the merge payload for a completed sync batch.
func ComputeSyncUpdate(r Result, now time.Time) SyncUpdate {
	u := SyncUpdate{LastSyncTS: now.Unix()}
	if len(r.UIDs) > 0 {
		max := r.UIDs[0]
		for _, uid := range r.UIDs[1:] {
			if uid > max {
				max = uid
			}
		}
		u.LastSeenUID = &max
	}
	if len(r.Dates) > 0 {
		min := r.Dates[0]
		for _, d := range r.Dates[1:] {
			if d < min {
				min = d
			}
		}
		u.OldestTS = &min
	}
	return u
}

// IsRetryableBye reports whether err represents a server-initiated
// connection close, the only class retried (spec.md §4.4: "any error whose
// string contains 'bye response' ... is retried exactly once").
func IsRetryableBye(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "bye response")
}

// folderKey scopes debounce/pending state by (account id, folder name).
type folderKey struct {
	accountID int64
	folder    string
}

// Debounced windows, spec.md §4.4: "folder selection change (debounced to
// at most one per 2 seconds per folder)" and "user-initiated backfill
// (debounced to one per 3 seconds per folder)".
const (
	SelectionDebounce = 2 * time.Second
	BackfillDebounce  = 3 * time.Second
)

// Scheduler tracks debounce timestamps and the pending-sync counter that
// drives the UI's spinner label.
type Scheduler struct {
	mu            sync.Mutex
	lastSelection map[folderKey]time.Time
	lastBackfill  map[folderKey]time.Time
	pending       int
}

// NewScheduler creates an empty debounce/pending-count tracker.
func NewScheduler() *Scheduler {
	return &Scheduler{
		lastSelection: make(map[folderKey]time.Time),
		lastBackfill:  make(map[folderKey]time.Time),
	}
}

// AllowSelectionSync reports whether a selection-triggered sync for
// (accountID, folder) may run now, and records the attempt if so.
func (s *Scheduler) AllowSelectionSync(accountID int64, folder string, now time.Time) bool {
	return s.allow(s.lastSelection, folderKey{accountID, folder}, now, SelectionDebounce)
}

// AllowBackfillSync reports whether a user-initiated backfill for
// (accountID, folder) may run now, and records the attempt if so.
func (s *Scheduler) AllowBackfillSync(accountID int64, folder string, now time.Time) bool {
	return s.allow(s.lastBackfill, folderKey{accountID, folder}, now, BackfillDebounce)
}

func (s *Scheduler) allow(m map[folderKey]time.Time, key folderKey, now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := m[key]; ok && now.Sub(last) < window {
		return false
	}
	m[key] = now
	return true
}

// BeginPending increments the pending-sync counter (called when a sync
// command is dispatched).
func (s *Scheduler) BeginPending() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

// EndPending decrements the pending-sync counter (called on each terminal
// event: folders batch, messages batch, or error).
func (s *Scheduler) EndPending() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

// Pending returns the current pending-sync count, for the UI's spinner
// label.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
