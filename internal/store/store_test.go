package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAccountAndListAccounts(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UpsertAccount("Personal", "personal@example.com")
	require.NoError(t, err)
	assert.NotZero(t, id)

	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "personal@example.com", accounts[0].Address)

	id2, err := s.UpsertAccount("Personal", "personal@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, id2, "upserting the same account must not duplicate the row")
}

func TestUpsertFoldersAndFindByName(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)

	_, err = s.UpsertFolders(acctID, []Folder{{Name: "INBOX"}, {Name: "Sent"}})
	require.NoError(t, err)

	folders, err := s.ListFolders(acctID)
	require.NoError(t, err)
	assert.Len(t, folders, 2)

	id, ok, err := s.FindFolderByName(acctID, "INBOX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, id)

	_, ok, err = s.FindFolderByName(acctID, "Nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureFolderCreatesOnce(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)

	id1, err := s.EnsureFolder(acctID, "Drafts")
	require.NoError(t, err)
	id2, err := s.EnsureFolder(acctID, "Drafts")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func seedFolderWithMessages(t *testing.T, s *Store) (acctID, folderID int64) {
	t.Helper()
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)
	folderID, err = s.EnsureFolder(acctID, "INBOX")
	require.NoError(t, err)

	err = s.ReplaceFolderMessages(acctID, folderID, []MessageSummary{
		{Subject: "Hello", From: "a@x.com", Unread: true},
		{Subject: "World", From: "b@x.com", Unread: false},
	})
	require.NoError(t, err)
	return acctID, folderID
}

func TestReplaceFolderMessagesAndList(t *testing.T) {
	s := openTestStore(t)
	_, folderID := seedFolderWithMessages(t, s)

	messages, err := s.ListMessages(folderID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
}

func TestMoveMessagesRecomputesUnreadOnBothFolders(t *testing.T) {
	s := openTestStore(t)
	acctID, srcFolder := seedFolderWithMessages(t, s)
	dstFolder, err := s.EnsureFolder(acctID, "Archive")
	require.NoError(t, err)

	messages, err := s.ListMessages(srcFolder)
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	var unreadID int64
	for _, m := range messages {
		if m.Unread {
			unreadID = m.ID
		}
	}
	require.NotZero(t, unreadID)

	require.NoError(t, s.MoveMessages([]int64{unreadID}, dstFolder))

	dstMessages, err := s.ListMessages(dstFolder)
	require.NoError(t, err)
	require.Len(t, dstMessages, 1)
	assert.Equal(t, unreadID, dstMessages[0].ID)

	srcFolders, err := s.ListFolders(acctID)
	require.NoError(t, err)
	for _, f := range srcFolders {
		if f.ID == srcFolder {
			assert.Equal(t, 0, f.Unread)
		}
		if f.ID == dstFolder {
			assert.Equal(t, 1, f.Unread)
		}
	}
}

func TestSetMessageUnreadAndDelete(t *testing.T) {
	s := openTestStore(t)
	_, folderID := seedFolderWithMessages(t, s)
	messages, err := s.ListMessages(folderID)
	require.NoError(t, err)
	id := messages[0].ID

	require.NoError(t, s.SetMessageUnread(id, false))
	got, err := s.GetMessage(id)
	require.NoError(t, err)
	assert.False(t, got.Unread)

	require.NoError(t, s.DeleteMessages([]int64{id}))
	got, err = s.GetMessage(id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRawBodyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, folderID := seedFolderWithMessages(t, s)
	messages, err := s.ListMessages(folderID)
	require.NoError(t, err)
	id := messages[0].ID

	has, err := s.HasRawBody(id)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.SetRawBody(id, []byte("raw mime bytes")))

	has, err = s.HasRawBody(id)
	require.NoError(t, err)
	assert.True(t, has)

	raw, err := s.RawBody(id)
	require.NoError(t, err)
	assert.Equal(t, "raw mime bytes", string(raw))
}

func TestHTMLCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, folderID := seedFolderWithMessages(t, s)
	messages, err := s.ListMessages(folderID)
	require.NoError(t, err)
	id := messages[0].ID

	_, ok, err := s.GetHTMLCache(id, RemoteBlocked)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetHTMLCache(id, RemoteBlocked, "<p>hi</p>"))

	html, ok, err := s.GetHTMLCache(id, RemoteBlocked)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<p>hi</p>", html)
}

func TestInsertAndGetCacheTiles(t *testing.T) {
	s := openTestStore(t)
	_, folderID := seedFolderWithMessages(t, s)
	messages, err := s.ListMessages(folderID)
	require.NoError(t, err)
	id := messages[0].ID

	err = s.InsertCacheTiles([]TileRow{
		{MessageID: id, WidthPx: 800, TileHeightPx: 1200, ThemeKey: "dark:bgv2", RemotePolicy: RemoteBlocked, TileIndex: 0, HeightPx: 1200, PNG: []byte{1, 2, 3}},
	})
	require.NoError(t, err)

	tiles, err := s.GetCacheTiles(id, 800, 1200, "dark:bgv2", RemoteBlocked)
	require.NoError(t, err)
	require.Len(t, tiles, 1)
	assert.Equal(t, []byte{1, 2, 3}, tiles[0].PNG)
}

func TestMergeSyncUpdateTakesMaxAndMin(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)
	folderID, err := s.EnsureFolder(acctID, "INBOX")
	require.NoError(t, err)

	uid1 := uint32(10)
	ts1 := int64(500)
	require.NoError(t, s.MergeSyncUpdate(folderID, SyncUpdate{LastSeenUID: &uid1, OldestTS: &ts1}))

	uid2 := uint32(5)
	ts2 := int64(800)
	require.NoError(t, s.MergeSyncUpdate(folderID, SyncUpdate{LastSeenUID: &uid2, OldestTS: &ts2}))

	state, err := s.GetSyncState(folderID)
	require.NoError(t, err)
	require.NotNil(t, state.LastSeenUID)
	require.NotNil(t, state.OldestTS)
	assert.Equal(t, int64(10), *state.LastSeenUID, "last_seen_uid must take the max across merges")
	assert.Equal(t, int64(500), *state.OldestTS, "oldest_ts must take the min across merges")
}

func TestSeedDemoIfEmptyPopulatesFixture(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SeedDemoIfEmpty("Personal"))

	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	folders, err := s.ListFolders(accounts[0].ID)
	require.NoError(t, err)
	assert.Len(t, folders, 10)

	count, err := s.AccountCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.SeedDemoIfEmpty("Personal"))
	accounts2, err := s.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts2, 1, "seeding a second time must not duplicate data")
}
