package store

import (
	"fmt"
	"strings"
	"time"
)

// demoFolderOrder is the literal folder order from spec.md §8 scenario 1.
var demoFolderOrder = []string{
	"All Mail", "INBOX", "Starred", "Sent", "Drafts", "Archive", "Spam", "Trash",
	"Promotions", "Orders",
}

// SeedDemoIfEmpty implements spec.md §4.2 seed_demo_if_empty: when no
// accounts exist, or the first account looks like a prior demo, wipes all
// per-account data and installs the deterministic fixture from §8 scenario 1,
// keyed by whether label contains "work".
func (s *Store) SeedDemoIfEmpty(label string) error {
	count, err := s.AccountCount()
	if err != nil {
		return err
	}

	isPriorDemo := false
	if count > 0 {
		accounts, err := s.ListAccounts()
		if err != nil {
			return err
		}
		if len(accounts) > 0 && strings.HasSuffix(accounts[0].Address, "-demo.local") {
			isPriorDemo = true
		}
	}

	if count > 0 && !isPriorDemo {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin demo seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM accounts`); err != nil {
		return fmt.Errorf("failed to wipe accounts for demo reseed: %w", err)
	}

	slug := "personal"
	if strings.Contains(strings.ToLower(label), "work") {
		slug = "work"
	}
	address := fmt.Sprintf("%s@ratmail-demo.local", slug)

	res, err := tx.Exec(`INSERT INTO accounts (name, address) VALUES (?, ?)`, label, address)
	if err != nil {
		return fmt.Errorf("failed to insert demo account: %w", err)
	}
	accountID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	folderIDs := make(map[string]int64, len(demoFolderOrder))
	for _, name := range demoFolderOrder {
		fres, err := tx.Exec(`INSERT INTO folders (account_id, name, unread) VALUES (?, ?, 0)`, accountID, name)
		if err != nil {
			return fmt.Errorf("failed to insert demo folder %q: %w", name, err)
		}
		id, err := fres.LastInsertId()
		if err != nil {
			return err
		}
		folderIDs[name] = id
	}

	// 8 demo messages (ids 101..108) distributed across folders; INBOX gets
	// 4 messages, all unread, giving "INBOX unread = 4".
	demoMessages := []struct {
		id      int64
		folder  string
		from    string
		subject string
		unread  bool
		days    int
	}{
		{101, "INBOX", "Ada Lovelace <ada@example.com>", "Welcome to ratmail", true, 0},
		{102, "INBOX", "Notifications <notify@example.com>", "Your weekly digest", true, 1},
		{103, "INBOX", "Grace Hopper <grace@example.com>", "Re: compiler bug", true, 2},
		{104, "INBOX", "Billing <billing@example.com>", "Invoice #4471", true, 3},
		{105, "Sent", label + " <" + address + ">", "Re: project status", false, 1},
		{106, "Starred", "Alan Turing <alan@example.com>", "Meeting notes", false, 4},
		{107, "Promotions", "Deals <deals@example.com>", "50% off everything", false, 5},
		{108, "Archive", "Old Thread <old@example.com>", "Archived conversation", false, 30},
	}

	now := time.Now()
	for _, m := range demoMessages {
		folderID := folderIDs[m.folder]
		date := now.AddDate(0, 0, -m.days)
		_, err := tx.Exec(`
			INSERT INTO messages (id, account_id, folder_id, imap_uid, date_str, date_ts,
				from_addr, to_addr, cc_addr, subject, unread, preview)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
			m.id, accountID, folderID, m.id, date.Format(time.RFC1123Z), date.Unix(),
			m.from, address, m.subject, boolToInt(m.unread), m.subject)
		if err != nil {
			return fmt.Errorf("failed to insert demo message %d: %w", m.id, err)
		}
	}

	for _, name := range demoFolderOrder {
		if err := s.RecomputeUnread(tx, folderIDs[name]); err != nil {
			return err
		}
	}

	return tx.Commit()
}
