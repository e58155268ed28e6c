package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hkdb/ratmail/internal/imapclient"
	"github.com/hkdb/ratmail/internal/mailworker"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/hkdb/ratmail/internal/storeupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.SeedDemoIfEmpty("Personal"))
	return s
}

func TestListAccounts(t *testing.T) {
	s := openTestStore(t)
	resp := ListAccounts(s)
	assert.True(t, resp.OK)
	assert.Equal(t, SchemaV1, resp.Schema)

	accounts := resp.Result.([]store.Account)
	require.Len(t, accounts, 1)
	assert.Equal(t, "personal@ratmail-demo.local", accounts[0].Address)
}

func TestListFoldersMatchesDemoFixture(t *testing.T) {
	s := openTestStore(t)
	accounts, err := s.ListAccounts()
	require.NoError(t, err)

	resp := ListFolders(s, accounts[0].ID)
	require.True(t, resp.OK)

	folders := resp.Result.([]store.Folder)
	assert.Len(t, folders, 10)
	assert.Equal(t, "All Mail", folders[0].Name)
}

func TestListMessagesFreeTextFilter(t *testing.T) {
	s := openTestStore(t)
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	folders, err := s.ListFolders(accounts[0].ID)
	require.NoError(t, err)

	var inboxID int64
	for _, f := range folders {
		if f.Name == "INBOX" {
			inboxID = f.ID
		}
	}
	require.NotZero(t, inboxID)

	resp := ListMessages(s, inboxID, MessageFilter{Limit: 100})
	require.True(t, resp.OK)
	all := resp.Result.([]store.MessageSummary)
	require.NotEmpty(t, all)

	resp = ListMessages(s, inboxID, MessageFilter{Query: "nonexistent-subject-xyz", Limit: 100})
	require.True(t, resp.OK)
	assert.Empty(t, resp.Result.([]store.MessageSummary))
}

func TestPaginate(t *testing.T) {
	messages := make([]store.MessageSummary, 5)
	for i := range messages {
		messages[i].ID = int64(i)
	}

	page := paginate(messages, 0, 2)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(0), page[0].ID)

	page = paginate(messages, 2, 2)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)

	page = paginate(messages, 10, 2)
	assert.Empty(t, page)

	page = paginate(messages, 0, 0)
	assert.Len(t, page, 5, "limit 0 means unlimited")
}

func TestGetMessageNotFound(t *testing.T) {
	s := openTestStore(t)
	resp := GetMessage(s, 999999)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "not found")
}

func runTestActor(t *testing.T, s *store.Store, accountID int64) *storeupdate.Actor {
	t.Helper()
	actor := storeupdate.New(accountID, s)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)
	return actor
}

func TestApplyFetchedMessagesAppendsIntoFolder(t *testing.T) {
	s := openTestStore(t)
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	actor := runTestActor(t, s, accounts[0].ID)

	evt := mailworker.Event{
		Kind:    mailworker.EvtImapMessages,
		Context: "Projects",
		Headers: []imapclient.HeaderSummary{
			{UID: 7, Date: time.Unix(1000, 0), From: "a@example.com", Subject: "hi", Seen: false},
			{UID: 9, Date: time.Unix(2000, 0), From: "b@example.com", Subject: "bye", Seen: true},
		},
	}
	require.NoError(t, ApplyFetchedMessages(context.Background(), actor, evt))

	require.Eventually(t, func() bool {
		id, ok, err := s.FindFolderByName(accounts[0].ID, "Projects")
		if err != nil || !ok {
			return false
		}
		msgs, err := s.ListMessages(id)
		return err == nil && len(msgs) == 2
	}, time.Second, 5*time.Millisecond)

	folderID, ok, err := s.FindFolderByName(accounts[0].ID, "Projects")
	require.NoError(t, err)
	require.True(t, ok)

	state, err := s.GetSyncState(folderID)
	require.NoError(t, err)
	require.NotNil(t, state.LastSeenUID)
	assert.Equal(t, int64(9), *state.LastSeenUID)
}

func TestApplyFetchedFoldersUpsertsFolderList(t *testing.T) {
	s := openTestStore(t)
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	actor := runTestActor(t, s, accounts[0].ID)

	evt := mailworker.Event{
		Kind: mailworker.EvtImapFolders,
		Folders: []imapclient.FolderStatus{
			{Name: "Team Updates", Unseen: 3},
		},
	}
	require.NoError(t, ApplyFetchedFolders(context.Background(), actor, evt))

	require.Eventually(t, func() bool {
		_, ok, err := s.FindFolderByName(accounts[0].ID, "Team Updates")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)
}

func TestFetchBodySyncRequiresActorAndWorker(t *testing.T) {
	err := fetchBodySync(context.Background(), nil, nil, 1, 1, time.Second)
	assert.Error(t, err)
}

func TestSaveAttachmentLongIncludesHumanSize(t *testing.T) {
	s := openTestStore(t)
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	folders, err := s.ListFolders(accounts[0].ID)
	require.NoError(t, err)
	var inboxID int64
	for _, f := range folders {
		if f.Name == "INBOX" {
			inboxID = f.ID
		}
	}
	require.NotZero(t, inboxID)

	msgs, err := s.ListMessages(inboxID)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)

	raw := []byte("From: a@example.com\r\nTo: b@example.com\r\nSubject: t\r\n" +
		"Content-Type: application/pdf\r\nContent-Disposition: attachment; filename=report.pdf\r\n\r\n%PDF-data")
	require.NoError(t, s.SetRawBody(msgs[0].ID, raw))

	resp := SaveAttachment(s, msgs[0].ID, 0, t.TempDir(), true)
	require.True(t, resp.OK)
	result := resp.Result.(map[string]any)
	assert.Contains(t, result, "size_human")
}
