// Package imapclient wraps github.com/emersion/go-imap/v2's imapclient for
// the command surface the mail worker facade (C5) needs: LIST, STATUS
// (UNSEEN), SELECT, UID SEARCH with SINCE/BEFORE, UID FETCH, UID COPY/STORE/
// EXPUNGE. Grounded file-for-file on the teacher's internal/imap/client.go,
// trimmed to the spec's command surface (spec.md §6) — no OAuth2, no IDLE,
// no connection pool (the mail worker facade owns one client per account
// and serialises body fetches via its own semaphore instead).
package imapclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/hkdb/ratmail/internal/logging"
	"github.com/rs/zerolog"
)

// Config holds the connection parameters for one IMAP account.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SkipTLSVerify bool

	ConnectTimeout time.Duration
}

// Client wraps an imapclient.Client with the dial/login/select/search/fetch
// surface spec.md §6 requires of the core.
type Client struct {
	cfg    Config
	raw    *imapclient.Client
	log    zerolog.Logger
}

// New creates a Client but does not connect.
func New(cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Client{cfg: cfg, log: logging.WithComponent("imapclient")}
}

// Connect dials the server over TLS and authenticates. Port selection
// follows spec.md §6: implicit TLS is assumed (the worker facade decides
// STARTTLS vs implicit for SMTP only; IMAP here always dials TLS directly,
// matching the teacher's SecurityTLS path, since every example account in
// this corpus uses port 993).
func (c *Client) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	tlsConfig := &tls.Config{ServerName: c.cfg.Host, InsecureSkipVerify: c.cfg.SkipTLSVerify}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to imap server: %w", err)
	}

	raw := imapclient.New(conn, &imapclient.Options{})
	if err := c.login(raw); err != nil {
		raw.Close()
		return err
	}

	c.raw = raw
	return nil
}

// login authenticates using LOGIN by default, falling back to
// AUTHENTICATE PLAIN only when the server advertises LOGINDISABLED
// (ported from the teacher's loginPassword: a failed AUTHENTICATE can
// corrupt the IMAP wire state and prevent a fallback LOGIN from working).
func (c *Client) login(raw *imapclient.Client) error {
	if raw.Caps().Has(imap.CapLoginDisabled) {
		c.log.Debug().Msg("LOGIN disabled, using AUTHENTICATE PLAIN")
		if err := raw.Authenticate(plainAuth(c.cfg.Username, c.cfg.Password)); err != nil {
			return fmt.Errorf("imap authentication failed: %w", err)
		}
		return nil
	}

	if err := raw.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("imap login failed: %w", err)
	}
	return nil
}

// Close closes the connection without sending LOGOUT.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// FolderStatus is one LIST+STATUS result.
type FolderStatus struct {
	Name   string
	Unseen uint32
}

// ListFolders lists every mailbox and fetches its unseen count via STATUS.
func (c *Client) ListFolders(ctx context.Context) ([]FolderStatus, error) {
	mailboxes, err := c.raw.List("", "%", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap list failed: %w", err)
	}

	out := make([]FolderStatus, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		data, err := c.raw.Status(mbox.Mailbox, &imap.StatusOptions{NumUnseen: true}).Wait()
		if err != nil {
			c.log.Warn().Err(err).Str("mailbox", mbox.Mailbox).Msg("status failed, skipping unseen count")
			out = append(out, FolderStatus{Name: mbox.Mailbox})
			continue
		}
		unseen := uint32(0)
		if data.NumUnseen != nil {
			unseen = uint32(*data.NumUnseen)
		}
		out = append(out, FolderStatus{Name: mbox.Mailbox, Unseen: unseen})
	}
	return out, nil
}

// SelectResult carries the UID-validity/next-UID hints needed for sync
// state bookkeeping (spec.md §3 Folder Sync State).
type SelectResult struct {
	UIDValidity uint32
	UIDNext     uint32
}

// Select opens a mailbox and returns its UID-validity/next-UID hints.
func (c *Client) Select(ctx context.Context, name string) (SelectResult, error) {
	data, err := c.raw.Select(name, nil).Wait()
	if err != nil {
		return SelectResult{}, fmt.Errorf("imap select failed: %w", err)
	}
	return SelectResult{UIDValidity: data.UIDValidity, UIDNext: uint32(data.UIDNext)}, nil
}

// SearchSince returns every UID of a message received on/after since
// (spec.md §4.4 Initial{days}).
func (c *Client) SearchSince(ctx context.Context, since time.Time) ([]uint32, error) {
	return c.runSearch(ctx, &imap.SearchCriteria{Since: since})
}

// SearchGreaterThan returns every UID strictly greater than lastSeenUID
// (spec.md §4.4 Incremental{last_seen_uid}).
func (c *Client) SearchGreaterThan(ctx context.Context, lastSeenUID uint32) ([]uint32, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddRange(imap.UID(lastSeenUID+1), 0)
	return c.runSearch(ctx, &imap.SearchCriteria{UID: []imap.UIDSet{uidSet}})
}

// SearchWindow returns every UID received in [since, before)
// (spec.md §4.4 Backfill{before_ts, window_days}).
func (c *Client) SearchWindow(ctx context.Context, since, before time.Time) ([]uint32, error) {
	return c.runSearch(ctx, &imap.SearchCriteria{Since: since, Before: before})
}

func (c *Client) runSearch(ctx context.Context, criteria *imap.SearchCriteria) ([]uint32, error) {
	cmd := c.raw.UIDSearch(criteria, nil)

	type result struct {
		data *imap.SearchData
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := cmd.Wait()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("imap uid search failed: %w", r.err)
		}
		uids := make([]uint32, 0, len(r.data.AllUIDs()))
		for _, uid := range r.data.AllUIDs() {
			uids = append(uids, uint32(uid))
		}
		return uids, nil
	}
}

// HeaderSummary is an envelope-only fetch result used to build message
// summaries without downloading the full body.
type HeaderSummary struct {
	UID     uint32
	Date    time.Time
	From    string
	To      string
	Cc      string
	Subject string
	Seen    bool
}

// FetchHeaders fetches UID, flags and envelope for the given UIDs
// (UID FETCH ... (UID FLAGS ENVELOPE)); the raw header block is not fetched.
func (c *Client) FetchHeaders(ctx context.Context, uids []uint32) ([]HeaderSummary, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	fetchCmd := c.raw.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
	})
	defer fetchCmd.Close()

	var out []HeaderSummary
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		data, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect failed: %w", err)
		}
		h := HeaderSummary{UID: uint32(data.UID)}
		if data.Envelope != nil {
			h.Date = data.Envelope.Date
			h.Subject = data.Envelope.Subject
			h.From = addressListString(data.Envelope.From)
			h.To = addressListString(data.Envelope.To)
			h.Cc = addressListString(data.Envelope.Cc)
		}
		for _, f := range data.Flags {
			if f == imap.FlagSeen {
				h.Seen = true
			}
		}
		out = append(out, h)
	}
	return out, fetchCmd.Close()
}

func addressListString(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	a := addrs[0]
	mailbox := a.Mailbox + "@" + a.Host
	if a.Name != "" {
		return a.Name + " <" + mailbox + ">"
	}
	return mailbox
}

// FetchRFC822 downloads the full raw message for one UID
// (UID FETCH ... RFC822, spec.md §6 / C5 body fetch).
func (c *Client) FetchRFC822(ctx context.Context, uid uint32) ([]byte, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.raw.Fetch(uidSet, &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{{}},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message uid %d not found", uid)
	}
	data, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch collect failed: %w", err)
	}
	for _, b := range data.BodySection {
		return b.Bytes, nil
	}
	return nil, fmt.Errorf("no body section returned for uid %d", uid)
}

// MoveByUID copies messages to destMailbox then marks them Deleted and
// expunges (UID COPY, UID STORE +FLAGS.SILENT (\Deleted), EXPUNGE).
func (c *Client) MoveByUID(ctx context.Context, uids []uint32, destMailbox string) error {
	if err := c.CopyByUID(ctx, uids, destMailbox); err != nil {
		return err
	}
	return c.DeleteByUID(ctx, uids)
}

// CopyByUID issues UID COPY to destMailbox.
func (c *Client) CopyByUID(ctx context.Context, uids []uint32, destMailbox string) error {
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}
	if _, err := c.raw.Copy(uidSet, destMailbox).Wait(); err != nil {
		return fmt.Errorf("imap uid copy failed: %w", err)
	}
	return nil
}

// DeleteByUID marks messages \Deleted and expunges them
// (UID STORE +FLAGS.SILENT (\Deleted), EXPUNGE).
func (c *Client) DeleteByUID(ctx context.Context, uids []uint32) error {
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}
	storeFlags := imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagDeleted}}
	if err := c.raw.Store(uidSet, &storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("imap uid store deleted failed: %w", err)
	}
	if err := c.raw.Expunge().Close(); err != nil {
		return fmt.Errorf("imap expunge failed: %w", err)
	}
	return nil
}

// SetSeen sets or clears the \Seen flag on the given UIDs.
func (c *Client) SetSeen(ctx context.Context, uids []uint32, seen bool) error {
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}
	op := imap.StoreFlagsAdd
	if !seen {
		op = imap.StoreFlagsDel
	}
	storeFlags := imap.StoreFlags{Op: op, Silent: true, Flags: []imap.Flag{imap.FlagSeen}}
	if err := c.raw.Store(uidSet, &storeFlags, nil).Close(); err != nil {
		return fmt.Errorf("imap uid store seen failed: %w", err)
	}
	return nil
}

// plainAuth builds the SASL PLAIN client used by login when the server
// advertises LOGINDISABLED, grounded on the teacher's loginPassword.
func plainAuth(username, password string) sasl.Client {
	return sasl.NewPlainClient("", username, password)
}
