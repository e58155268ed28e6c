package store

import "fmt"

// UpsertAccount ensures exactly one account row for the given name/address,
// returning its resolved id (spec.md §3: "exactly one account row per
// configured account").
func (s *Store) UpsertAccount(name, address string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM accounts WHERE name = ?`, name).Scan(&id)
	if err == nil {
		if _, err := s.db.Exec(`UPDATE accounts SET address = ? WHERE id = ?`, address, id); err != nil {
			return 0, fmt.Errorf("failed to update account: %w", err)
		}
		return id, nil
	}

	res, err := s.db.Exec(`INSERT INTO accounts (name, address) VALUES (?, ?)`, name, address)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	return res.LastInsertId()
}

// ListAccounts returns every configured account.
func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT id, name, address FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Address); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AccountCount reports how many accounts are configured; used by
// seed_demo_if_empty to decide whether to install the demo fixture.
func (s *Store) AccountCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}
