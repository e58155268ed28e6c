// Command ratmail is the scripted, non-interactive entry point for the
// core (spec.md §6): it loads the TOML configuration, opens the selected
// account's store, and dispatches one JSON command through internal/cli.
//
// The interactive terminal UI this core feeds is out of scope (spec.md
// §1); this binary exists to exercise every core module end-to-end from a
// single process, the way spec.md's scripted CLI does against the same
// store/worker surface the UI uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hkdb/ratmail/internal/cli"
	"github.com/hkdb/ratmail/internal/config"
	"github.com/hkdb/ratmail/internal/host"
	"github.com/hkdb/ratmail/internal/imapclient"
	"github.com/hkdb/ratmail/internal/logging"
	"github.com/hkdb/ratmail/internal/mailworker"
	"github.com/hkdb/ratmail/internal/smtpsend"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/hkdb/ratmail/internal/storeupdate"
	"github.com/hkdb/ratmail/internal/syncstate"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logging.Init(logging.Config{Debug: os.Getenv("RATMAIL_DEBUG") != ""})

	if len(args) < 2 {
		printResponse(cli.Failure(fmt.Errorf("usage: ratmail <group> <action> [flags]")))
		return 0
	}
	group, action := args[0], args[1]

	if group == "daemon" {
		return runDaemon(args[2:])
	}
	fs := flag.NewFlagSet(group+" "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	accountName := fs.String("account", "", "account name from ratmail.toml")
	folder := fs.String("folder", "INBOX", "folder name")
	id := fs.Int64("id", 0, "message id")
	ids := fs.String("ids", "", "comma-separated message ids")
	uid := fs.Uint("uid", 0, "imap uid")
	query := fs.String("query", "", "search DSL query")
	limit := fs.Int("limit", 50, "max results")
	offset := fs.Int("offset", 0, "result offset")
	targetFolderID := fs.Int64("target-folder-id", 0, "destination folder id")
	unread := fs.Bool("unread", false, "mark unread (message mark)")
	attIndex := fs.Int("index", 0, "attachment index")
	destDir := fs.String("dest", ".", "attachment save directory")
	fetch := fs.Bool("fetch", false, "fetch body synchronously if not cached")
	long := fs.Bool("long", false, "include go-humanize-formatted sizes in output")
	wait := fs.Bool("wait", false, "block until the operation's terminal event")
	timeoutSec := fs.Int("timeout", int(cli.DefaultTimeout.Seconds()), "timeout in seconds")
	to := fs.String("to", "", "comma-separated recipient addresses")
	subject := fs.String("subject", "", "message subject")
	body := fs.String("body", "", "message body text")

	if err := fs.Parse(args[2:]); err != nil {
		printResponse(cli.Failure(err))
		return 0
	}

	cfgPath := config.DefaultPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		printResponse(cli.Failure(err))
		return 0
	}

	acctCfg, err := selectAccount(cfg, *accountName)
	if err != nil {
		printResponse(cli.Failure(err))
		return 0
	}

	s, err := openAccountStore(acctCfg)
	if err != nil {
		printResponse(cli.Failure(err))
		return 0
	}
	defer s.Close()
	_ = s.SeedDemoIfEmpty(acctCfg.Name)

	accounts, err := s.ListAccounts()
	if err != nil || len(accounts) == 0 {
		printResponse(cli.Failure(fmt.Errorf("no account rows in store")))
		return 0
	}
	accountID := accounts[0].ID

	actor := storeupdate.New(accountID, s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	timeout := time.Duration(*timeoutSec) * time.Second
	idList := parseIDList(*ids)

	resp := dispatch(ctx, dispatchArgs{
		group: group, action: action,
		store: s, actor: actor, acctCfg: acctCfg,
		folder: *folder, id: *id, ids: idList, uid: uint32(*uid),
		query: *query, limit: *limit, offset: *offset,
		targetFolderID: *targetFolderID, unread: *unread,
		attIndex: *attIndex, destDir: *destDir,
		fetch: *fetch, long: *long, wait: *wait, timeout: timeout,
		to: *to, subject: *subject, body: *body,
	})
	printResponse(resp)
	return 0
}

type dispatchArgs struct {
	group, action string
	store         *store.Store
	actor         *storeupdate.Actor
	acctCfg       config.AccountConfig

	folder         string
	id             int64
	ids            []int64
	uid            uint32
	query          string
	limit, offset  int
	targetFolderID int64
	unread         bool
	attIndex       int
	destDir        string
	fetch, long, wait bool
	timeout        time.Duration
	to, subject, body string
}

func dispatch(ctx context.Context, a dispatchArgs) cli.Response {
	switch a.group {
	case "accounts":
		if a.action == "list" {
			return cli.ListAccounts(a.store)
		}
	case "folders":
		if a.action == "list" {
			accounts, err := a.store.ListAccounts()
			if err != nil || len(accounts) == 0 {
				return cli.Failure(fmt.Errorf("no accounts"))
			}
			return cli.ListFolders(a.store, accounts[0].ID)
		}
	case "messages":
		if a.action == "list" {
			folderID, err := resolveFolderID(a.store, a.folder)
			if err != nil {
				return cli.Failure(err)
			}
			return cli.ListMessages(a.store, folderID, cli.MessageFilter{Query: a.query, Limit: a.limit, Offset: a.offset})
		}
	case "message":
		return dispatchMessage(ctx, a)
	case "sync":
		return dispatchSync(ctx, a)
	case "send":
		return dispatchSend(a)
	}
	return cli.Failure(fmt.Errorf("unknown command %q %q", a.group, a.action))
}

func dispatchMessage(ctx context.Context, a dispatchArgs) cli.Response {
	switch a.action {
	case "get":
		return cli.GetMessage(a.store, a.id)
	case "body":
		worker, cleanup, err := connectedWorkerIfFetching(ctx, a)
		if err != nil {
			return cli.Failure(err)
		}
		defer cleanup()
		return cli.GetMessageBody(ctx, a.store, a.actor, worker, a.id, a.uid, a.fetch, a.timeout)
	case "raw":
		worker, cleanup, err := connectedWorkerIfFetching(ctx, a)
		if err != nil {
			return cli.Failure(err)
		}
		defer cleanup()
		return cli.GetMessageRaw(ctx, a.store, a.actor, worker, a.id, a.uid, a.fetch, a.timeout)
	case "attachment-save":
		return cli.SaveAttachment(a.store, a.id, a.attIndex, a.destDir, a.long)
	case "move":
		ids := a.ids
		if len(ids) == 0 && a.id != 0 {
			ids = []int64{a.id}
		}
		return cli.MoveMessages(ctx, a.actor, ids, a.targetFolderID)
	case "delete":
		ids := a.ids
		if len(ids) == 0 && a.id != 0 {
			ids = []int64{a.id}
		}
		return cli.DeleteMessages(ctx, a.actor, ids)
	case "mark":
		ids := a.ids
		if len(ids) == 0 && a.id != 0 {
			ids = []int64{a.id}
		}
		return cli.MarkMessages(ctx, a.actor, ids, a.unread)
	}
	return cli.Failure(fmt.Errorf("unknown message action %q", a.action))
}

// connectedWorkerIfFetching dials and starts a mail worker only when the
// caller actually asked for a synchronous fetch; GetMessageBody/
// GetMessageRaw need a non-nil worker only on that path, so an
// account with no --fetch flag pays for no IMAP connection at all.
func connectedWorkerIfFetching(ctx context.Context, a dispatchArgs) (*mailworker.Facade, func(), error) {
	noop := func() {}
	if !a.fetch {
		return nil, noop, nil
	}
	worker := mailworker.New(imapConfig(a.acctCfg), smtpConfig(a.acctCfg))
	if err := worker.Connect(ctx); err != nil {
		return nil, noop, err
	}
	workerCtx, cancel := context.WithCancel(ctx)
	go worker.Run(workerCtx)
	return worker, func() {
		cancel()
		_ = worker.Close()
	}, nil
}

func dispatchSync(parent context.Context, a dispatchArgs) cli.Response {
	worker := mailworker.New(imapConfig(a.acctCfg), smtpConfig(a.acctCfg))
	ctx, cancel := context.WithTimeout(parent, a.timeout+5*time.Second)
	defer cancel()
	if err := worker.Connect(ctx); err != nil {
		return cli.Failure(err)
	}
	defer worker.Close()
	go worker.Run(ctx)

	cmd := mailworker.Command{Kind: mailworker.CmdSyncFolder, Folder: a.folder}
	if a.action == "folders" {
		cmd = mailworker.Command{Kind: mailworker.CmdSyncFolders}
	} else {
		cmd.Mode = syncstate.Mode{Kind: syncstate.ModeInitial, Days: 30}
	}
	return cli.SyncFolder(ctx, a.actor, worker, cmd, a.wait, a.timeout)
}

func dispatchSend(a dispatchArgs) cli.Response {
	worker := mailworker.New(imapConfig(a.acctCfg), smtpConfig(a.acctCfg))
	recipients := make([]smtpsend.Address, 0)
	for _, addr := range strings.Split(a.to, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			recipients = append(recipients, smtpsend.Address{Address: addr})
		}
	}
	msg := &smtpsend.ComposeMessage{
		From:     smtpsend.Address{Address: a.acctCfg.SMTP.From},
		To:       recipients,
		Subject:  a.subject,
		TextBody: a.body,
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout+5*time.Second)
	defer cancel()
	go worker.Run(ctx)
	return cli.Send(worker, mailworker.Command{Kind: mailworker.CmdSend, Message: msg}, a.timeout)
}

func resolveFolderID(s *store.Store, name string) (int64, error) {
	accounts, err := s.ListAccounts()
	if err != nil || len(accounts) == 0 {
		return 0, fmt.Errorf("no accounts in store")
	}
	id, ok, err := s.FindFolderByName(accounts[0].ID, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("folder %q not found", name)
	}
	return id, nil
}

func selectAccount(cfg *config.Config, name string) (config.AccountConfig, error) {
	if len(cfg.Accounts) == 0 {
		return config.AccountConfig{}, fmt.Errorf("no accounts configured")
	}
	if name == "" {
		return cfg.Accounts[0], nil
	}
	for _, a := range cfg.Accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return config.AccountConfig{}, fmt.Errorf("unknown account %q", name)
}

func openAccountStore(acct config.AccountConfig) (*store.Store, error) {
	path := acct.DBPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(logging.StateDir(), path)
	}
	return store.Open(path)
}

func imapConfig(acct config.AccountConfig) imapclient.Config {
	return imapclient.Config{
		Host:          acct.IMAP.Host,
		Port:          acct.IMAP.Port,
		Username:      acct.IMAP.Username,
		Password:      acct.IMAP.Password,
		SkipTLSVerify: acct.IMAP.SkipTLSVerify,
	}
}

func smtpConfig(acct config.AccountConfig) smtpsend.Config {
	return smtpsend.Config{
		Host:          acct.SMTP.Host,
		Port:          acct.SMTP.Port,
		Username:      acct.SMTP.Username,
		Password:      acct.SMTP.Password,
		SkipTLSVerify: acct.SMTP.SkipTLSVerify,
	}
}

func parseIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// runDaemon implements `daemon run`: the long-running, multi-account path
// through internal/host (C8), as opposed to the one-shot single-account
// path every other group/action takes. It brings up every configured
// account's store, actor, and mail worker under one host.Host, submits a
// periodic folder-list and INBOX sync per account, and drains each
// account's worker events into store updates via the same
// cli.ApplyFetchedMessages/ApplyFetchedFolders dispatcher the scripted
// `sync` command uses, until interrupted.
func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	interval := fs.Duration("interval", 5*time.Minute, "how often every account's INBOX and folder list are refreshed")
	if err := fs.Parse(args); err != nil {
		printResponse(cli.Failure(err))
		return 0
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		printResponse(cli.Failure(err))
		return 0
	}
	if len(cfg.Accounts) == 0 {
		printResponse(cli.Failure(fmt.Errorf("no accounts configured")))
		return 0
	}

	log := logging.WithComponent("daemon")
	h := host.New()
	for _, acctCfg := range cfg.Accounts {
		acct, err := newDaemonAccount(acctCfg)
		if err != nil {
			printResponse(cli.Failure(err))
			return 0
		}
		h.Add(acct)
	}
	defer func() {
		if err := h.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, acct := range h.Accounts() {
		if err := acct.Worker.Connect(ctx); err != nil {
			log.Error().Err(err).Str("account", acct.Label).Msg("imap connect failed")
		}
	}
	h.Start(ctx)

	submitSync(h, log)

	drainTicker := time.NewTicker(500 * time.Millisecond)
	defer drainTicker.Stop()
	syncTicker := time.NewTicker(*interval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-syncTicker.C:
			submitSync(h, log)
		case <-drainTicker.C:
			h.DrainAll(nil, func(acct *host.AccountContext, evt mailworker.Event) {
				dispatchHostEvent(ctx, acct, evt, log)
			}, nil)
		}
	}
}

func newDaemonAccount(acctCfg config.AccountConfig) (*host.AccountContext, error) {
	s, err := openAccountStore(acctCfg)
	if err != nil {
		return nil, err
	}
	_ = s.SeedDemoIfEmpty(acctCfg.Name)

	accounts, err := s.ListAccounts()
	if err != nil || len(accounts) == 0 {
		s.Close()
		return nil, fmt.Errorf("no account rows for %q", acctCfg.Name)
	}
	accountID := accounts[0].ID

	return &host.AccountContext{
		Label:     acctCfg.Name,
		Store:     s,
		Actor:     storeupdate.New(accountID, s),
		Worker:    mailworker.New(imapConfig(acctCfg), smtpConfig(acctCfg)),
		AccountID: accountID,
	}, nil
}

func submitSync(h *host.Host, log zerolog.Logger) {
	for _, acct := range h.Accounts() {
		if acct.Worker == nil {
			continue
		}
		if err := acct.Worker.Submit(mailworker.Command{Kind: mailworker.CmdSyncFolders}); err != nil {
			log.Warn().Err(err).Str("account", acct.Label).Msg("failed to submit folder sync")
		}
		cmd := mailworker.Command{Kind: mailworker.CmdSyncFolder, Folder: "INBOX", Mode: syncstate.Mode{Kind: syncstate.ModeInitial, Days: 30}}
		if err := acct.Worker.Submit(cmd); err != nil {
			log.Warn().Err(err).Str("account", acct.Label).Msg("failed to submit inbox sync")
		}
	}
}

func dispatchHostEvent(ctx context.Context, acct *host.AccountContext, evt mailworker.Event, log zerolog.Logger) {
	if acct.Actor == nil {
		return
	}
	switch evt.Kind {
	case mailworker.EvtImapMessages:
		if err := cli.ApplyFetchedMessages(ctx, acct.Actor, evt); err != nil {
			log.Error().Err(err).Str("account", acct.Label).Msg("failed to apply fetched messages")
		}
	case mailworker.EvtImapFolders:
		if err := cli.ApplyFetchedFolders(ctx, acct.Actor, evt); err != nil {
			log.Error().Err(err).Str("account", acct.Label).Msg("failed to apply fetched folders")
		}
	case mailworker.EvtImapError:
		log.Warn().Str("account", acct.Label).Str("context", evt.Context).Str("reason", evt.Reason).Msg("imap error")
	}
}

func printResponse(resp cli.Response) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}
