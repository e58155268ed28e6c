// Package cli implements the JSON command surface of the scripted,
// non-interactive command mode described in spec.md §6: a thin adapter
// from parsed command arguments onto internal/store, internal/storeupdate,
// and internal/mailworker, whose own invariants do the real enforcement.
// The broader interactive-mode CLI dispatcher (flag parsing, command
// routing, process exit codes) stays out of scope per spec.md §1; this
// package only has to produce the exact response envelope and honour the
// operations it documents.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hkdb/ratmail/internal/content"
	"github.com/hkdb/ratmail/internal/mailworker"
	"github.com/hkdb/ratmail/internal/searchdsl"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/hkdb/ratmail/internal/storeupdate"
	"github.com/hkdb/ratmail/internal/syncstate"
	"github.com/hkdb/ratmail/internal/util"
)

// SchemaV1 is the exact schema string every response envelope carries
// (spec.md §6: `{ schema: "ratmail.cli.v1", ok: bool, result? | error? }`).
const SchemaV1 = "ratmail.cli.v1"

// Response is the single JSON object every CLI invocation writes to
// stdout.
type Response struct {
	Schema string `json:"schema"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success wraps result in an ok:true envelope.
func Success(result any) Response {
	return Response{Schema: SchemaV1, OK: true, Result: result}
}

// Failure wraps err in an ok:false envelope (spec.md §7: "CLI errors
// always emit { ok: false, error: ... } and exit 0").
func Failure(err error) Response {
	return Response{Schema: SchemaV1, OK: false, Error: err.Error()}
}

// DefaultTimeout is the default wait timeout for sync and send commands
// (spec.md §6: "accept a timeout (default 30s)").
const DefaultTimeout = 30 * time.Second

// ListAccounts implements `accounts list`.
func ListAccounts(s *store.Store) Response {
	accounts, err := s.ListAccounts()
	if err != nil {
		return Failure(err)
	}
	return Success(accounts)
}

// ListFolders implements `folders list`.
func ListFolders(s *store.Store, accountID int64) Response {
	folders, err := s.ListFolders(accountID)
	if err != nil {
		return Failure(err)
	}
	return Success(folders)
}

// MessageFilter is the parsed set of `messages list` flags: a search DSL
// query (the --query value) plus --limit/--offset pagination. There are no
// separate --from/--subject/... flags; those filters are written as fields
// inside the query.
type MessageFilter struct {
	Query  string
	Limit  int
	Offset int
}

// ListMessages implements `messages list`: loads every message in
// folderID, applies the search DSL in filter.Query, and paginates the
// remainder by --limit/--offset. When the query needs attachment data,
// attachments are extracted from each message's already-stored raw body;
// a message with no stored raw body is matched against an empty
// attachment list, and no body is fetched from the server.
func ListMessages(s *store.Store, folderID int64, filter MessageFilter) Response {
	all, err := s.ListMessages(folderID)
	if err != nil {
		return Failure(err)
	}

	q := searchdsl.Parse(filter.Query)
	var matched []store.MessageSummary
	for _, m := range all {
		var atts []content.Attachment
		if q.NeedsAttachments() {
			if raw, err := s.RawBody(m.ID); err == nil {
				atts, _ = content.ExtractAttachments(raw)
			}
		}
		if searchdsl.Matches(q, m, atts) {
			matched = append(matched, m)
		}
	}

	return Success(paginate(matched, filter.Offset, filter.Limit))
}

func paginate(messages []store.MessageSummary, offset, limit int) []store.MessageSummary {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(messages) {
		return []store.MessageSummary{}
	}
	end := len(messages)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return messages[offset:end]
}

// GetMessage implements `message get`.
func GetMessage(s *store.Store, id int64) Response {
	m, err := s.GetMessage(id)
	if err != nil {
		return Failure(err)
	}
	if m == nil {
		return Failure(fmt.Errorf("message %d not found", id))
	}
	return Success(m)
}

// GetMessageBody implements `message body`. When the raw body isn't
// cached and fetch is true, it requests a synchronous fetch via worker
// and polls the worker's event stream for the matching ImapBody/ImapError
// event up to timeout (spec.md §6: "--fetch triggers a synchronous IMAP
// body fetch via the worker facade").
func GetMessageBody(ctx context.Context, s *store.Store, actor *storeupdate.Actor, worker *mailworker.Facade, id int64, uid uint32, fetch bool, timeout time.Duration) Response {
	has, err := s.HasRawBody(id)
	if err != nil {
		return Failure(err)
	}
	if !has {
		if !fetch {
			return Failure(fmt.Errorf("message %d has no cached body; retry with --fetch", id))
		}
		if err := fetchBodySync(ctx, actor, worker, id, uid, timeout); err != nil {
			return Failure(err)
		}
	}

	raw, err := s.RawBody(id)
	if err != nil {
		return Failure(err)
	}
	display, err := content.ExtractDisplay(raw, 80)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"text": display.Text, "links": display.Links})
}

// GetMessageRaw implements `message raw`: returns the unmodified MIME
// bytes, fetching synchronously first if requested and missing.
func GetMessageRaw(ctx context.Context, s *store.Store, actor *storeupdate.Actor, worker *mailworker.Facade, id int64, uid uint32, fetch bool, timeout time.Duration) Response {
	has, err := s.HasRawBody(id)
	if err != nil {
		return Failure(err)
	}
	if !has {
		if !fetch {
			return Failure(fmt.Errorf("message %d has no cached body; retry with --fetch", id))
		}
		if err := fetchBodySync(ctx, actor, worker, id, uid, timeout); err != nil {
			return Failure(err)
		}
	}
	raw, err := s.RawBody(id)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"raw": string(raw)})
}

// fetchBodySync requests a synchronous body fetch and, on success, enqueues
// the result as a KindRawBody update rather than writing the store
// directly. Every mutation path flows through the actor, the single
// writer (spec.md §4.3), even when the caller is blocking on the result.
func fetchBodySync(ctx context.Context, actor *storeupdate.Actor, worker *mailworker.Facade, id int64, uid uint32, timeout time.Duration) error {
	if worker == nil {
		return fmt.Errorf("no mail worker configured for this account")
	}
	if actor == nil {
		return fmt.Errorf("no store actor configured for this account")
	}
	if err := worker.Submit(mailworker.Command{Kind: mailworker.CmdFetchBody, MessageID: id, UID: uid}); err != nil {
		return err
	}

	deadline := time.After(timeout)
	for {
		select {
		case evt := <-worker.Events():
			switch evt.Kind {
			case mailworker.EvtImapBody:
				if evt.MessageID == id {
					done := make(chan error, 1)
					if err := actor.SendCtx(ctx, storeupdate.Update{Kind: storeupdate.KindRawBody, MessageID: id, RawBody: evt.Body, Done: done}); err != nil {
						return err
					}
					select {
					case err := <-done:
						return err
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			case mailworker.EvtImapError:
				return fmt.Errorf("imap body fetch failed: %s", evt.Reason)
			}
		case <-deadline:
			return fmt.Errorf("timed out after %s waiting for body fetch", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SaveAttachment implements `message attachment-save`: extracts attachment
// index from the message's raw body and writes it under destDir using a
// sanitised filename. When long is set, the response also carries a
// go-humanize-formatted size string for scripts that want the richer form
// instead of the raw byte count.
func SaveAttachment(s *store.Store, id int64, index int, destDir string, long bool) Response {
	raw, err := s.RawBody(id)
	if err != nil {
		return Failure(err)
	}
	atts, err := content.ExtractAttachments(raw)
	if err != nil {
		return Failure(err)
	}
	if index < 0 || index >= len(atts) {
		return Failure(content.ErrAttachmentIndexOutOfRange)
	}
	data, err := content.ExtractAttachmentData(raw, index)
	if err != nil {
		return Failure(err)
	}

	name := util.SafeFilename(atts[index].Filename)
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return Failure(fmt.Errorf("failed to write attachment: %w", err))
	}
	result := map[string]any{"path": path, "size": len(data)}
	if long {
		result["size_human"] = util.HumanizeBytes(int64(len(data)))
	}
	return Success(result)
}

// MoveMessages implements `message move`, enqueuing the mutation reliably
// (spec.md §4.3: "reliable ... used for ... bulk operations that must not
// be lost").
func MoveMessages(ctx context.Context, actor *storeupdate.Actor, ids []int64, targetFolderID int64) Response {
	if err := actor.SendCtx(ctx, storeupdate.Update{Kind: storeupdate.KindMoveMessages, IDs: ids, TargetFolderID: targetFolderID}); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"moved": len(ids)})
}

// DeleteMessages implements `message delete`.
func DeleteMessages(ctx context.Context, actor *storeupdate.Actor, ids []int64) Response {
	if err := actor.SendCtx(ctx, storeupdate.Update{Kind: storeupdate.KindDeleteMessages, IDs: ids}); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"deleted": len(ids)})
}

// MarkMessages implements `message mark` (read/unread).
func MarkMessages(ctx context.Context, actor *storeupdate.Actor, ids []int64, unread bool) Response {
	if err := actor.SendCtx(ctx, storeupdate.Update{Kind: storeupdate.KindSetMessagesUnread, IDs: ids, Unread: unread}); err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"marked": len(ids), "unread": unread})
}

// SyncFolder implements `sync`: dispatches the given CmdSyncFolder (or
// CmdSyncFolders) command and, when wait is true, blocks for the terminal
// event (Completed or ImapError) up to timeout, translating whatever IMAP
// results arrive along the way into store updates via actor. This is the
// C5-event-to-C3-update dispatcher step (spec.md §4.3 data flow: "IMAP
// session results enter C5, which emits events consumed by a per-account
// dispatcher; the dispatcher translates them into store-update messages
// for C3") (spec.md §6: "sync ... with optional wait and timeout").
func SyncFolder(ctx context.Context, actor *storeupdate.Actor, worker *mailworker.Facade, cmd mailworker.Command, wait bool, timeout time.Duration) Response {
	if err := worker.Submit(cmd); err != nil {
		return Failure(err)
	}
	if !wait {
		return Success(map[string]any{"dispatched": true})
	}

	deadline := time.After(timeout)
	for {
		select {
		case evt := <-worker.Events():
			switch evt.Kind {
			case mailworker.EvtImapMessages:
				if err := ApplyFetchedMessages(ctx, actor, evt); err != nil {
					return Failure(err)
				}
			case mailworker.EvtImapFolders:
				if err := ApplyFetchedFolders(ctx, actor, evt); err != nil {
					return Failure(err)
				}
			case mailworker.EvtCompleted:
				return Success(map[string]any{"folder": evt.Context, "status": "completed"})
			case mailworker.EvtImapError:
				return Failure(fmt.Errorf("sync failed for %s: %s", evt.Context, evt.Reason))
			}
		case <-deadline:
			return Failure(fmt.Errorf("timed out after %s waiting for sync", timeout))
		case <-ctx.Done():
			return Failure(ctx.Err())
		}
	}
}

// ApplyFetchedMessages maps an EvtImapMessages header batch onto
// storeupdate.KindAppendMessages, computing the same last-seen-uid/
// oldest-ts merge payload internal/syncstate derives for any other sync
// batch (spec.md §4.4).
func ApplyFetchedMessages(ctx context.Context, actor *storeupdate.Actor, evt mailworker.Event) error {
	messages := make([]store.MessageSummary, len(evt.Headers))
	result := syncstate.Result{UIDs: make([]uint32, len(evt.Headers)), Dates: make([]int64, len(evt.Headers))}
	for i, h := range evt.Headers {
		uid := h.UID
		dateTS := h.Date.Unix()
		messages[i] = store.MessageSummary{
			UID:     &uid,
			Date:    h.Date.Format(time.RFC3339),
			DateTS:  &dateTS,
			From:    h.From,
			To:      h.To,
			Cc:      h.Cc,
			Subject: h.Subject,
			Unread:  !h.Seen,
		}
		result.UIDs[i] = h.UID
		result.Dates[i] = dateTS
	}

	su := syncstate.ComputeSyncUpdate(result, time.Now())
	storeSU := &store.SyncUpdate{LastSeenUID: su.LastSeenUID, OldestTS: su.OldestTS, LastSyncTS: &su.LastSyncTS}

	return actor.SendCtx(ctx, storeupdate.Update{
		Kind:       storeupdate.KindAppendMessages,
		FolderName: evt.Context,
		Messages:   messages,
		SyncUpdate: storeSU,
	})
}

// ApplyFetchedFolders maps an EvtImapFolders batch onto
// storeupdate.KindFolders.
func ApplyFetchedFolders(ctx context.Context, actor *storeupdate.Actor, evt mailworker.Event) error {
	folders := make([]store.Folder, len(evt.Folders))
	for i, f := range evt.Folders {
		folders[i] = store.Folder{Name: f.Name, Unread: int(f.Unseen)}
	}
	return actor.SendCtx(ctx, storeupdate.Update{Kind: storeupdate.KindFolders, Folders: folders})
}

// Send implements `send`: dispatches a CmdSend command and waits for the
// terminal SendCompleted/SendFailed event up to timeout.
func Send(worker *mailworker.Facade, cmd mailworker.Command, timeout time.Duration) Response {
	if err := worker.Submit(cmd); err != nil {
		return Failure(err)
	}

	deadline := time.After(timeout)
	for {
		select {
		case evt := <-worker.Events():
			switch evt.Kind {
			case mailworker.EvtSendCompleted:
				return Success(map[string]any{"sent": true})
			case mailworker.EvtSendFailed:
				return Failure(fmt.Errorf("send failed: %s", evt.Reason))
			}
		case <-deadline:
			return Failure(fmt.Errorf("timed out after %s waiting for send", timeout))
		}
	}
}
