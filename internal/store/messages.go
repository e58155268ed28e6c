package store

import (
	"database/sql"
	"fmt"
)

// ReplaceFolderMessages implements spec.md §4.2 replace_folder_messages:
// deletes any stored row whose uid is absent from incoming (or whose uid is
// null), then upserts each incoming message by (folder_id, uid). This is
// the reconciliation primitive reserved for a folder's initial empty state
// (spec.md §4.4).
func (s *Store) ReplaceFolderMessages(accountID, folderID int64, incoming []MessageSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin replace_folder_messages: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[uint32]struct{}, len(incoming))
	for _, m := range incoming {
		if m.UID != nil {
			keep[*m.UID] = struct{}{}
		}
	}

	rows, err := tx.Query(`SELECT id, imap_uid FROM messages WHERE folder_id = ?`, folderID)
	if err != nil {
		return fmt.Errorf("failed to query stored messages: %w", err)
	}
	var toDelete []int64
	for rows.Next() {
		var id int64
		var uid sql.NullInt64
		if err := rows.Scan(&id, &uid); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan stored message: %w", err)
		}
		if !uid.Valid {
			toDelete = append(toDelete, id)
			continue
		}
		if _, ok := keep[uint32(uid.Int64)]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	rows.Close()

	for _, id := range toDelete {
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete stale message %d: %w", id, err)
		}
	}

	for _, m := range incoming {
		if err := upsertMessageTx(tx, accountID, folderID, m); err != nil {
			return err
		}
	}

	if err := s.RecomputeUnread(tx, folderID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertFolderMessagesAppend implements upsert_folder_messages_append: same
// upsert as ReplaceFolderMessages but never deletes. An empty incoming list
// is a no-op (spec.md §8 boundary behaviour).
func (s *Store) UpsertFolderMessagesAppend(accountID, folderID int64, incoming []MessageSummary) error {
	if len(incoming) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin upsert_folder_messages_append: %w", err)
	}
	defer tx.Rollback()

	for _, m := range incoming {
		if err := upsertMessageTx(tx, accountID, folderID, m); err != nil {
			return err
		}
	}

	if err := s.RecomputeUnread(tx, folderID); err != nil {
		return err
	}
	return tx.Commit()
}

// upsertMessageTx does the explicit read-then-insert/update for
// (folder_id, imap_uid) that spec.md §4.2 requires, since imap_uid may be
// null and a partial unique index cannot be relied upon for conflict
// resolution across null values (grounded on foxcpp-maddy's imapsql.go).
func upsertMessageTx(tx *sql.Tx, accountID, folderID int64, m MessageSummary) error {
	var existingID int64
	var found bool

	if m.UID != nil {
		err := tx.QueryRow(`SELECT id FROM messages WHERE folder_id = ? AND imap_uid = ?`, folderID, *m.UID).Scan(&existingID)
		if err == nil {
			found = true
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("failed to look up message by uid: %w", err)
		}
	}

	if found {
		_, err := tx.Exec(`
			UPDATE messages SET date_str = ?, date_ts = ?, from_addr = ?, to_addr = ?,
				cc_addr = ?, subject = ?, unread = ?, preview = ?
			WHERE id = ?`,
			m.Date, m.DateTS, m.From, m.To, m.Cc, m.Subject, boolToInt(m.Unread), m.Preview, existingID)
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		return nil
	}

	var uid sql.NullInt64
	if m.UID != nil {
		uid = sql.NullInt64{Int64: int64(*m.UID), Valid: true}
	}
	_, err := tx.Exec(`
		INSERT INTO messages (account_id, folder_id, imap_uid, date_str, date_ts,
			from_addr, to_addr, cc_addr, subject, unread, preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, folderID, uid, m.Date, m.DateTS, m.From, m.To, m.Cc, m.Subject,
		boolToInt(m.Unread), m.Preview)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MoveMessages relocates messages to targetFolderID and recomputes unread
// counts for both the source and destination folders.
func (s *Store) MoveMessages(ids []int64, targetFolderID int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin move_messages: %w", err)
	}
	defer tx.Rollback()

	affected := map[int64]struct{}{targetFolderID: {}}
	for _, id := range ids {
		var sourceFolder int64
		if err := tx.QueryRow(`SELECT folder_id FROM messages WHERE id = ?`, id).Scan(&sourceFolder); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("failed to look up message %d: %w", id, err)
		}
		affected[sourceFolder] = struct{}{}

		if _, err := tx.Exec(`UPDATE messages SET folder_id = ?, imap_uid = NULL WHERE id = ?`, targetFolderID, id); err != nil {
			return fmt.Errorf("failed to move message %d: %w", id, err)
		}
	}

	for folderID := range affected {
		if err := s.RecomputeUnread(tx, folderID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteMessages removes messages and recomputes unread counts for every
// affected folder.
func (s *Store) DeleteMessages(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete_messages: %w", err)
	}
	defer tx.Rollback()

	affected := make(map[int64]struct{})
	for _, id := range ids {
		var folderID int64
		if err := tx.QueryRow(`SELECT folder_id FROM messages WHERE id = ?`, id).Scan(&folderID); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("failed to look up message %d: %w", id, err)
		}
		affected[folderID] = struct{}{}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete message %d: %w", id, err)
		}
	}

	for folderID := range affected {
		if err := s.RecomputeUnread(tx, folderID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetMessageUnread updates a message's unread flag and recomputes its
// folder's unread count.
func (s *Store) SetMessageUnread(id int64, unread bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin set_message_unread: %w", err)
	}
	defer tx.Rollback()

	var folderID int64
	if err := tx.QueryRow(`SELECT folder_id FROM messages WHERE id = ?`, id).Scan(&folderID); err != nil {
		return fmt.Errorf("failed to look up message %d: %w", id, err)
	}
	if _, err := tx.Exec(`UPDATE messages SET unread = ? WHERE id = ?`, boolToInt(unread), id); err != nil {
		return fmt.Errorf("failed to update unread flag: %w", err)
	}
	if err := s.RecomputeUnread(tx, folderID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMessage returns one message summary by id.
func (s *Store) GetMessage(id int64) (*MessageSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, account_id, folder_id, imap_uid, date_str, date_ts,
			from_addr, to_addr, cc_addr, subject, unread, preview
		FROM messages WHERE id = ?`, id)
	return scanMessageSummary(row)
}

func scanMessageSummary(row *sql.Row) (*MessageSummary, error) {
	var m MessageSummary
	var uid sql.NullInt64
	var dateTS sql.NullInt64
	var unreadInt int
	if err := row.Scan(&m.ID, &m.AccountID, &m.FolderID, &uid, &m.Date, &dateTS,
		&m.From, &m.To, &m.Cc, &m.Subject, &unreadInt, &m.Preview); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if uid.Valid {
		v := uint32(uid.Int64)
		m.UID = &v
	}
	if dateTS.Valid {
		v := dateTS.Int64
		m.DateTS = &v
	}
	m.Unread = unreadInt != 0
	return &m, nil
}

// ListMessages returns every message summary in a folder, newest-first by
// parsed date then id, for consumption by the snapshot builder and CLI.
func (s *Store) ListMessages(folderID int64) ([]MessageSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, folder_id, imap_uid, date_str, date_ts,
			from_addr, to_addr, cc_addr, subject, unread, preview
		FROM messages WHERE folder_id = ?
		ORDER BY date_ts DESC, id DESC`, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageSummary
	for rows.Next() {
		var m MessageSummary
		var uid sql.NullInt64
		var dateTS sql.NullInt64
		var unreadInt int
		if err := rows.Scan(&m.ID, &m.AccountID, &m.FolderID, &uid, &m.Date, &dateTS,
			&m.From, &m.To, &m.Cc, &m.Subject, &unreadInt, &m.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if uid.Valid {
			v := uint32(uid.Int64)
			m.UID = &v
		}
		if dateTS.Valid {
			v := dateTS.Int64
			m.DateTS = &v
		}
		m.Unread = unreadInt != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// RawBody reads the raw MIME bytes for a message, if stored.
func (s *Store) RawBody(messageID int64) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT raw FROM bodies WHERE message_id = ?`, messageID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read raw body: %w", err)
	}
	return raw, nil
}

// HasRawBody reports whether a raw body is already stored, used by the
// render coordinator (C7) before enqueuing a body fetch.
func (s *Store) HasRawBody(messageID int64) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bodies WHERE message_id = ?`, messageID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check raw body: %w", err)
	}
	return n > 0, nil
}

// SetRawBody stores a message's raw MIME bytes. A message
// already present is a no-op for the byte content, matching spec.md §8
// ("Body fetch on a message already present ... is a no-op for the store
// actor"); callers that want an unconditional refresh should delete first.
func (s *Store) SetRawBody(messageID int64, raw []byte) error {
	exists, err := s.HasRawBody(messageID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.db.Exec(`INSERT INTO bodies (message_id, raw) VALUES (?, ?)`, messageID, raw); err != nil {
		return fmt.Errorf("failed to store raw body: %w", err)
	}
	return nil
}

// SetTextCache stores the reflowed display text for (message, width).
func (s *Store) SetTextCache(messageID int64, widthCols int, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_text (message_id, width_cols, text) VALUES (?, ?, ?)
		ON CONFLICT(message_id, width_cols) DO UPDATE SET text = excluded.text`,
		messageID, widthCols, text)
	if err != nil {
		return fmt.Errorf("failed to store text cache: %w", err)
	}
	return nil
}

// GetTextCache reads the reflowed display text for (message, width), if
// cached.
func (s *Store) GetTextCache(messageID int64, widthCols int) (string, bool, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM cache_text WHERE message_id = ? AND width_cols = ?`, messageID, widthCols).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read text cache: %w", err)
	}
	return text, true, nil
}
