package store

import "fmt"

// LoadSnapshot builds the full, immutable per-account value copy published
// by the store-update actor (spec.md §4.3 step 3): every folder, every
// message summary grouped by folder, and a MessageDetail (with raw-derived
// body via the width-0 text cache row written by SaveDraft, or the empty
// string when no text cache exists yet) for every message, looked up one
// message at a time.
func (s *Store) LoadSnapshot(accountID int64) (*Snapshot, error) {
	folders, err := s.ListFolders(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folders for snapshot: %w", err)
	}

	snap := &Snapshot{
		AccountID: accountID,
		Folders:   folders,
		Messages:  make(map[int64][]MessageSummary, len(folders)),
		Details:   make(map[int64]MessageDetail),
	}

	for _, f := range folders {
		msgs, err := s.ListMessages(f.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages for folder %d: %w", f.ID, err)
		}
		snap.Messages[f.ID] = msgs

		for _, m := range msgs {
			body, _, err := s.GetTextCache(m.ID, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to load text cache for message %d: %w", m.ID, err)
			}
			snap.Details[m.ID] = MessageDetail{MessageSummary: m, Body: body}
		}
	}

	return snap, nil
}
