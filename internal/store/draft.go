package store

import (
	"fmt"
	"strings"
	"time"
)

// draftsFolderName is the well-known folder that local drafts live in
// (spec.md §3: "At most one folder named Drafts is used for locally
// composed drafts").
const draftsFolderName = "Drafts"

const previewMaxLen = 200

// SaveDraft implements spec.md §4.2 save_draft: ensures a Drafts folder
// exists, inserts a message with a null uid and a preview derived from the
// first non-blank body line (capped at 200 characters), and materialises a
// raw RFC 2822 envelope plus a text-cache row.
func (s *Store) SaveDraft(accountID int64, from, to, cc, bcc, subject, body string) (int64, error) {
	folderID, err := s.EnsureFolder(accountID, draftsFolderName)
	if err != nil {
		return 0, err
	}

	preview := firstNonBlankLine(body)
	if r := []rune(preview); len(r) > previewMaxLen {
		preview = string(r[:previewMaxLen])
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin save_draft: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.Exec(`
		INSERT INTO messages (account_id, folder_id, imap_uid, date_str, date_ts,
			from_addr, to_addr, cc_addr, subject, unread, preview)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, 0, ?)`,
		accountID, folderID, now.Format(time.RFC1123Z), now.Unix(), from, to, cc, subject, preview)
	if err != nil {
		return 0, fmt.Errorf("failed to insert draft message: %w", err)
	}
	messageID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve draft message id: %w", err)
	}

	raw := buildDraftEnvelope(from, to, cc, bcc, subject, body)
	if _, err := tx.Exec(`INSERT INTO bodies (message_id, raw) VALUES (?, ?)`, messageID, raw); err != nil {
		return 0, fmt.Errorf("failed to insert draft body: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO cache_text (message_id, width_cols, text) VALUES (?, 0, ?)`, messageID, body); err != nil {
		return 0, fmt.Errorf("failed to insert draft text cache: %w", err)
	}

	if err := s.RecomputeUnread(tx, folderID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit save_draft: %w", err)
	}
	return messageID, nil
}

// buildDraftEnvelope materialises an RFC 2822 header block (CRLF-terminated)
// followed by the body as text/plain; charset=utf-8; encoding 8bit, matching
// spec.md scenario 2's exact expected prefix.
func buildDraftEnvelope(from, to, cc, bcc, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if cc != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", cc)
	}
	if bcc != "" {
		fmt.Fprintf(&b, "Bcc: %s\r\n", bcc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func firstNonBlankLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) != "" {
			return trimmed
		}
	}
	return ""
}
