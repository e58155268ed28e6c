// Package storeupdate implements the single-writer store-update actor (C3):
// a bounded channel of tagged Update messages feeding one goroutine that
// serialises every mutation and publishes a full snapshot after each.
//
// Grounded on the teacher's internal/sync/engine.go dispatch style (plain
// structs + explicit switch, not an interface hierarchy — Go has no sum
// types) and internal/sync/scheduler.go's background-goroutine lifecycle.
package storeupdate

import (
	"context"
	"fmt"

	"github.com/hkdb/ratmail/internal/logging"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/rs/zerolog"
)

// Kind tags an Update's payload variant.
type Kind int

const (
	KindFolders Kind = iota
	KindAppendMessages
	KindRawBody
	KindMoveMessages
	KindDeleteMessages
	KindSetMessagesUnread
	KindSaveDraft
)

// Update is the tagged message union processed by the actor
// (spec.md §4.3).
type Update struct {
	Kind Kind

	// KindFolders
	Folders []store.Folder

	// KindAppendMessages
	FolderName  string
	Messages    []store.MessageSummary
	SyncUpdate  *store.SyncUpdate

	// KindRawBody
	MessageID   int64
	RawBody     []byte
	CachedText  *string

	// KindMoveMessages / KindDeleteMessages / KindSetMessagesUnread
	IDs             []int64
	TargetFolderID  int64
	RefreshFolderID int64
	Unread          bool

	// KindSaveDraft
	FromAddr string
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string

	// Done, if non-nil, receives the apply error (or nil) once this update
	// has been processed. Callers that must read their own write back
	// immediately (e.g. a synchronous body fetch) wait on it instead of
	// racing the actor goroutine.
	Done chan error
}

const (
	updateQueueCap   = 128
	snapshotQueueCap = 32
)

// Actor is the single writer for one account's store.
type Actor struct {
	accountID int64
	store     *store.Store
	log       zerolog.Logger

	updates   chan Update
	snapshots chan *store.Snapshot
}

// New creates an Actor over store for accountID. Call Run in its own
// goroutine to start processing.
func New(accountID int64, s *store.Store) *Actor {
	return &Actor{
		accountID: accountID,
		store:     s,
		log:       logging.WithComponent("store-actor"),
		updates:   make(chan Update, updateQueueCap),
		snapshots: make(chan *store.Snapshot, snapshotQueueCap),
	}
}

// Snapshots returns the channel consumers drain to observe published state.
func (a *Actor) Snapshots() <-chan *store.Snapshot {
	return a.snapshots
}

// TrySend is the best-effort enqueue discipline: drops (and logs) on a
// full queue, used by read-refresh paths that can tolerate loss.
func (a *Actor) TrySend(u Update) {
	select {
	case a.updates <- u:
	default:
		a.log.Warn().Int("kind", int(u.Kind)).Msg("store update queue full, dropping")
	}
}

// SendCtx is the reliable enqueue discipline: awaits a free slot (or ctx
// cancellation), used for drafts and bulk operations that must not be
// lost. Callers that want "spawn and forget" should call this from their
// own goroutine.
func (a *Actor) SendCtx(ctx context.Context, u Update) error {
	select {
	case a.updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes updates until ctx is cancelled. It never returns an error;
// per-update failures are logged and the loop continues (spec.md §4.3 step 5).
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case u := <-a.updates:
			a.process(ctx, u)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Actor) process(ctx context.Context, u Update) {
	err := a.apply(u)
	if u.Done != nil {
		select {
		case u.Done <- err:
		default:
		}
	}
	if err != nil {
		a.log.Error().Err(err).Int("kind", int(u.Kind)).Msg("store update failed")
		return
	}
	a.publishSnapshot()
}

func (a *Actor) apply(u Update) error {
	switch u.Kind {
	case KindFolders:
		_, err := a.store.UpsertFolders(a.accountID, u.Folders)
		return err

	case KindAppendMessages:
		folderID, err := a.store.EnsureFolder(a.accountID, u.FolderName)
		if err != nil {
			return fmt.Errorf("failed to ensure folder %q: %w", u.FolderName, err)
		}
		for i := range u.Messages {
			u.Messages[i].FolderID = folderID
			u.Messages[i].AccountID = a.accountID
		}
		if err := a.store.UpsertFolderMessagesAppend(a.accountID, folderID, u.Messages); err != nil {
			return err
		}
		if u.SyncUpdate != nil {
			return a.store.MergeSyncUpdate(folderID, *u.SyncUpdate)
		}
		return nil

	case KindRawBody:
		if err := a.store.SetRawBody(u.MessageID, u.RawBody); err != nil {
			return err
		}
		if u.CachedText != nil {
			return a.store.SetTextCache(u.MessageID, 0, *u.CachedText)
		}
		return nil

	case KindMoveMessages:
		return a.store.MoveMessages(u.IDs, u.TargetFolderID)

	case KindDeleteMessages:
		return a.store.DeleteMessages(u.IDs)

	case KindSetMessagesUnread:
		for _, id := range u.IDs {
			if err := a.store.SetMessageUnread(id, u.Unread); err != nil {
				return err
			}
		}
		return nil

	case KindSaveDraft:
		_, err := a.store.SaveDraft(a.accountID, u.FromAddr, u.To, u.Cc, u.Bcc, u.Subject, u.Body)
		return err

	default:
		return fmt.Errorf("unknown update kind %d", u.Kind)
	}
}

func (a *Actor) publishSnapshot() {
	snap, err := a.store.LoadSnapshot(a.accountID)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to load snapshot after update")
		return
	}
	select {
	case a.snapshots <- snap:
	default:
		// Drop the oldest pending snapshot to make room; a consumer that
		// falls behind only needs the latest point-in-time view.
		select {
		case <-a.snapshots:
		default:
		}
		select {
		case a.snapshots <- snap:
		default:
			a.log.Warn().Msg("snapshot queue full, dropping snapshot")
		}
	}
}
