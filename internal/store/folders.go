package store

import "fmt"

// UpsertFolders implements spec.md §4.2 upsert_folders: inserts unseen
// names, updates unread counts for known names, deletes rows absent from
// the argument list, and returns the resolved folder list (with ids).
func (s *Store) UpsertFolders(accountID int64, folders []Folder) ([]Folder, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin upsert_folders transaction: %w", err)
	}
	defer tx.Rollback()

	existing := make(map[string]int64)
	rows, err := tx.Query(`SELECT id, name FROM folders WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing folders: %w", err)
	}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		existing[name] = id
	}
	rows.Close()

	incomingNames := make(map[string]struct{}, len(folders))
	result := make([]Folder, 0, len(folders))

	for _, f := range folders {
		incomingNames[f.Name] = struct{}{}
		if id, ok := existing[f.Name]; ok {
			if _, err := tx.Exec(`UPDATE folders SET unread = ? WHERE id = ?`, f.Unread, id); err != nil {
				return nil, fmt.Errorf("failed to update folder unread: %w", err)
			}
			f.ID = id
			f.AccountID = accountID
			result = append(result, f)
			continue
		}

		res, err := tx.Exec(`INSERT INTO folders (account_id, name, unread) VALUES (?, ?, ?)`,
			accountID, f.Name, f.Unread)
		if err != nil {
			return nil, fmt.Errorf("failed to insert folder: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve new folder id: %w", err)
		}
		f.ID = id
		f.AccountID = accountID
		result = append(result, f)
	}

	for name, id := range existing {
		if _, ok := incomingNames[name]; !ok {
			if _, err := tx.Exec(`DELETE FROM folders WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("failed to delete stale folder: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert_folders: %w", err)
	}
	return result, nil
}

// ListFolders returns every folder for an account, ordered by id.
func (s *Store) ListFolders(accountID int64) ([]Folder, error) {
	rows, err := s.db.Query(`SELECT id, account_id, name, unread FROM folders WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.Unread); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FindFolderByName returns a folder's id by exact name, or false if absent.
func (s *Store) FindFolderByName(accountID int64, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM folders WHERE account_id = ? AND name = ?`, accountID, name).Scan(&id)
	if err == errNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up folder: %w", err)
	}
	return id, true, nil
}

// EnsureFolder returns the id of the named folder, creating it (with
// unread=0) if it does not exist. Used by SaveDraft for the "Drafts" folder
// and by the store-update actor's AppendMessages auto-create path.
func (s *Store) EnsureFolder(accountID int64, name string) (int64, error) {
	id, ok, err := s.FindFolderByName(accountID, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	res, err := s.db.Exec(`INSERT INTO folders (account_id, name, unread) VALUES (?, ?, 0)`, accountID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return res.LastInsertId()
}

// RecomputeUnread updates a folder's unread column to match the count of
// messages with unread=true in it (spec.md §8 invariant).
func (s *Store) RecomputeUnread(tx execer, folderID int64) error {
	_, err := tx.Exec(`
		UPDATE folders SET unread = (
			SELECT COUNT(*) FROM messages WHERE folder_id = ? AND unread = 1
		) WHERE id = ?`, folderID, folderID)
	if err != nil {
		return fmt.Errorf("failed to recompute unread for folder %d: %w", folderID, err)
	}
	return nil
}

// DeleteFolder removes a folder and (via ON DELETE CASCADE) every message,
// body, and cache row that belonged to it.
func (s *Store) DeleteFolder(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM folders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}
