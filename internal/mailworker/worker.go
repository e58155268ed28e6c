// Package mailworker implements the mail worker facade (C5): a bounded
// command/event channel pair fronting a background goroutine that drives
// IMAP (via internal/imapclient) and SMTP (via internal/smtpsend), with a
// 4-permit body-fetch semaphore. Grounded on the teacher's
// internal/imap/pool.go buffered-channel semaphore idiom and
// internal/sync/engine.go's spawn-one-goroutine-per-sync dispatch style.
package mailworker

import (
	"context"
	"fmt"
	"time"

	"github.com/hkdb/ratmail/internal/imapclient"
	"github.com/hkdb/ratmail/internal/logging"
	"github.com/hkdb/ratmail/internal/smtpsend"
	"github.com/hkdb/ratmail/internal/syncstate"
	"github.com/rs/zerolog"
)

// CommandKind tags a Command's payload variant (spec.md §4.5).
type CommandKind int

const (
	CmdSyncFolder CommandKind = iota
	CmdSyncFolders
	CmdFetchBody
	CmdSetFlag
	CmdMoveFolder
	CmdDeleteFolder
	CmdSend
)

// Command is one unit of work dispatched to the facade.
type Command struct {
	Kind CommandKind

	// CmdSyncFolder
	Folder string
	Mode   syncstate.Mode

	// CmdFetchBody
	MessageID int64
	UID       uint32

	// CmdSetFlag
	UIDs []uint32
	Seen bool

	// CmdMoveFolder / CmdDeleteFolder
	DestFolder string

	// CmdSend
	Message *smtpsend.ComposeMessage
}

// EventKind tags an Event's payload variant.
type EventKind int

const (
	EvtStarted EventKind = iota
	EvtImapFolders
	EvtImapMessages
	EvtImapBody
	EvtCompleted
	EvtImapError
	EvtSendFailed
	EvtSendCompleted
)

// Event mirrors a Command's outcome (spec.md §4.5).
type Event struct {
	Kind EventKind

	Folders []imapclient.FolderStatus
	Headers []imapclient.HeaderSummary

	MessageID int64
	Body      []byte

	Context string
	Reason  string
}

const (
	commandQueueCap  = 256
	eventQueueCap    = 256
	bodyFetchPermits = 4
)

// Facade is the per-account mail worker: one IMAP connection, one
// semaphore-gated body-fetch path, and an outgoing SMTP sender.
type Facade struct {
	imap     *imapclient.Client
	smtpCfg  smtpsend.Config
	log      zerolog.Logger
	commands chan Command
	events   chan Event
	bodySem  chan struct{}
}

// New creates a Facade. Call Connect then Run in its own goroutine.
func New(imapCfg imapclient.Config, smtpCfg smtpsend.Config) *Facade {
	return &Facade{
		imap:     imapclient.New(imapCfg),
		smtpCfg:  smtpCfg,
		log:      logging.WithComponent("mailworker"),
		commands: make(chan Command, commandQueueCap),
		events:   make(chan Event, eventQueueCap),
		bodySem:  make(chan struct{}, bodyFetchPermits),
	}
}

// Connect dials and authenticates the IMAP connection.
func (f *Facade) Connect(ctx context.Context) error {
	return f.imap.Connect(ctx)
}

// Close tears down the IMAP connection.
func (f *Facade) Close() error {
	return f.imap.Close()
}

// Events returns the channel consumers drain for facade outcomes.
func (f *Facade) Events() <-chan Event {
	return f.events
}

// Submit enqueues a command. Queue-full is reported to the caller per
// spec.md §4.5 ("Queue-full on the command channel is reported to the
// caller; the command is dropped.").
func (f *Facade) Submit(cmd Command) error {
	select {
	case f.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue full, dropping command kind %d", cmd.Kind)
	}
}

// Run dispatches commands until ctx is cancelled or the command channel is
// closed (a terminal error surfaced via emit, per spec.md §4.5).
func (f *Facade) Run(ctx context.Context) {
	for {
		select {
		case cmd, ok := <-f.commands:
			if !ok {
				f.emit(Event{Kind: EvtImapError, Context: "facade", Reason: "command channel closed"})
				return
			}
			f.dispatch(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (f *Facade) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdSyncFolder:
		go f.runSync(ctx, cmd)
	case CmdSyncFolders:
		go f.runSyncFolders(ctx)
	case CmdFetchBody:
		go f.runFetchBody(ctx, cmd)
	case CmdSetFlag:
		go f.runSetFlag(ctx, cmd)
	case CmdMoveFolder, CmdDeleteFolder:
		go f.runFolderOp(ctx, cmd)
	case CmdSend:
		go f.runSend(ctx, cmd)
	default:
		f.emit(Event{Kind: EvtImapError, Context: "dispatch", Reason: fmt.Sprintf("unknown command kind %d", cmd.Kind)})
	}
}

func (f *Facade) emit(evt Event) {
	select {
	case f.events <- evt:
	default:
		f.log.Warn().Int("kind", int(evt.Kind)).Msg("event queue full, dropping")
	}
}

func (f *Facade) runSync(ctx context.Context, cmd Command) {
	f.emit(Event{Kind: EvtStarted, Context: cmd.Folder})

	if _, err := f.imap.Select(ctx, cmd.Folder); err != nil {
		f.emit(Event{Kind: EvtImapError, Context: cmd.Folder, Reason: err.Error()})
		return
	}

	uids, err := f.search(ctx, cmd.Mode)
	if err != nil && syncstate.IsRetryableBye(err) {
		uids, err = f.search(ctx, cmd.Mode)
	}
	if err != nil {
		f.emit(Event{Kind: EvtImapError, Context: cmd.Folder, Reason: err.Error()})
		return
	}

	headers, err := f.imap.FetchHeaders(ctx, uids)
	if err != nil {
		f.emit(Event{Kind: EvtImapError, Context: cmd.Folder, Reason: err.Error()})
		return
	}

	f.emit(Event{Kind: EvtImapMessages, Context: cmd.Folder, Headers: headers})
	f.emit(Event{Kind: EvtCompleted, Context: cmd.Folder})
}

// runSyncFolders refreshes the account's folder list and unseen counts from
// the server (spec.md §4.3 data flow: C5 events feed C3 via the account
// dispatcher, here closing the C3 KindFolders path).
func (f *Facade) runSyncFolders(ctx context.Context) {
	f.emit(Event{Kind: EvtStarted, Context: "folders"})

	folders, err := f.imap.ListFolders(ctx)
	if err != nil {
		f.emit(Event{Kind: EvtImapError, Context: "folders", Reason: err.Error()})
		return
	}

	f.emit(Event{Kind: EvtImapFolders, Folders: folders})
	f.emit(Event{Kind: EvtCompleted, Context: "folders"})
}

func (f *Facade) search(ctx context.Context, mode syncstate.Mode) ([]uint32, error) {
	switch mode.Kind {
	case syncstate.ModeInitial:
		since := time.Now().AddDate(0, 0, -mode.Days)
		return f.imap.SearchSince(ctx, since)
	case syncstate.ModeIncremental:
		return f.imap.SearchGreaterThan(ctx, mode.LastSeenUID)
	case syncstate.ModeBackfill:
		before := time.Unix(mode.BeforeTS, 0)
		since := before.AddDate(0, 0, -mode.WindowDays)
		return f.imap.SearchWindow(ctx, since, before)
	default:
		return nil, fmt.Errorf("unknown sync mode kind %d", mode.Kind)
	}
}

// runFetchBody serialises body downloads through the 4-permit semaphore
// (spec.md §4.5: "Body fetches are serialised through a semaphore of
// capacity 4... releases the permit on drop").
func (f *Facade) runFetchBody(ctx context.Context, cmd Command) {
	select {
	case f.bodySem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-f.bodySem }()

	raw, err := f.imap.FetchRFC822(ctx, cmd.UID)
	if err != nil {
		f.emit(Event{Kind: EvtImapError, Context: "fetch-body", Reason: err.Error()})
		return
	}
	f.emit(Event{Kind: EvtImapBody, MessageID: cmd.MessageID, Body: raw})
}

func (f *Facade) runSetFlag(ctx context.Context, cmd Command) {
	if err := f.imap.SetSeen(ctx, cmd.UIDs, cmd.Seen); err != nil {
		f.emit(Event{Kind: EvtImapError, Context: "set-flag", Reason: err.Error()})
		return
	}
	f.emit(Event{Kind: EvtCompleted, Context: "set-flag"})
}

func (f *Facade) runFolderOp(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Kind {
	case CmdMoveFolder:
		err = f.imap.MoveByUID(ctx, cmd.UIDs, cmd.DestFolder)
	case CmdDeleteFolder:
		err = f.imap.DeleteByUID(ctx, cmd.UIDs)
	}
	if err != nil {
		f.emit(Event{Kind: EvtImapError, Context: cmd.DestFolder, Reason: err.Error()})
		return
	}
	f.emit(Event{Kind: EvtCompleted, Context: cmd.DestFolder})
}

// runSend is a fully async task using TLS parameters derived from config;
// errors never panic, they are emitted as SendFailed (spec.md §4.5).
func (f *Facade) runSend(ctx context.Context, cmd Command) {
	if err := smtpsend.Send(ctx, f.smtpCfg, cmd.Message); err != nil {
		f.emit(Event{Kind: EvtSendFailed, Reason: err.Error()})
		return
	}
	f.emit(Event{Kind: EvtSendCompleted})
}
