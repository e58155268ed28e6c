package store

import (
	"database/sql"
	"fmt"
)

// SyncUpdate is the merge payload carried by a store-update AppendMessages
// message (spec.md §4.3): last_seen_uid/oldest_ts are merged monotonically,
// last_sync_ts is overwritten when present.
type SyncUpdate struct {
	LastSeenUID *uint32
	OldestTS    *int64
	LastSyncTS  *int64
}

// GetSyncState returns a folder's sync bookkeeping row, zero-valued if none
// exists yet.
func (s *Store) GetSyncState(folderID int64) (SyncState, error) {
	st := SyncState{FolderID: folderID}
	var uidValidity, nextUID, lastSeenUID, lastSyncTS, oldestTS sql.NullInt64
	err := s.db.QueryRow(`
		SELECT uid_validity, next_uid, last_seen_uid, last_sync_ts, oldest_ts
		FROM folder_sync_state WHERE folder_id = ?`, folderID).
		Scan(&uidValidity, &nextUID, &lastSeenUID, &lastSyncTS, &oldestTS)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read sync state: %w", err)
	}
	st.UIDValidity = nullToPtr(uidValidity)
	st.NextUID = nullToPtr(nextUID)
	st.LastSeenUID = nullToPtr(lastSeenUID)
	st.LastSyncTS = nullToPtr(lastSyncTS)
	st.OldestTS = nullToPtr(oldestTS)
	return st, nil
}

func nullToPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// MergeSyncUpdate applies spec.md §4.3 step 2's merge policy:
// last_seen_uid = max(existing, incoming), oldest_ts = min(existing, incoming),
// last_sync_ts = incoming if present. Creates the row if absent.
func (s *Store) MergeSyncUpdate(folderID int64, update SyncUpdate) error {
	current, err := s.GetSyncState(folderID)
	if err != nil {
		return err
	}

	next := current
	if update.LastSeenUID != nil {
		incoming := int64(*update.LastSeenUID)
		if next.LastSeenUID == nil || incoming > *next.LastSeenUID {
			next.LastSeenUID = &incoming
		}
	}
	if update.OldestTS != nil {
		if next.OldestTS == nil || *update.OldestTS < *next.OldestTS {
			v := *update.OldestTS
			next.OldestTS = &v
		}
	}
	if update.LastSyncTS != nil {
		v := *update.LastSyncTS
		next.LastSyncTS = &v
	}

	_, err = s.db.Exec(`
		INSERT INTO folder_sync_state (folder_id, uid_validity, next_uid, last_seen_uid, last_sync_ts, oldest_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET
			last_seen_uid = excluded.last_seen_uid,
			last_sync_ts  = excluded.last_sync_ts,
			oldest_ts     = excluded.oldest_ts`,
		folderID, next.UIDValidity, next.NextUID, next.LastSeenUID, next.LastSyncTS, next.OldestTS)
	if err != nil {
		return fmt.Errorf("failed to merge sync state: %w", err)
	}
	return nil
}

// SetUIDValidity records the folder's UID validity and next-UID hint,
// typically set once right after SELECT.
func (s *Store) SetUIDValidity(folderID int64, uidValidity, nextUID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO folder_sync_state (folder_id, uid_validity, next_uid)
		VALUES (?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET uid_validity = excluded.uid_validity, next_uid = excluded.next_uid`,
		folderID, uidValidity, nextUID)
	if err != nil {
		return fmt.Errorf("failed to set uid validity: %w", err)
	}
	return nil
}
