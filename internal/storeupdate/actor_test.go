package storeupdate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hkdb/ratmail/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func runActor(t *testing.T, a *Actor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
}

func TestKindFoldersUpsertsFolders(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)
	a := New(acctID, s)
	runActor(t, a)

	require.NoError(t, a.SendCtx(context.Background(), Update{Kind: KindFolders, Folders: []store.Folder{{Name: "Receipts"}}}))

	require.Eventually(t, func() bool {
		_, ok, err := s.FindFolderByName(acctID, "Receipts")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)
}

func TestKindRawBodySignalsDoneAfterApply(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)
	folderID, err := s.EnsureFolder(acctID, "INBOX")
	require.NoError(t, err)
	require.NoError(t, s.ReplaceFolderMessages(acctID, folderID, []store.MessageSummary{{Subject: "hi", From: "a@x.com"}}))
	msgs, err := s.ListMessages(folderID)
	require.NoError(t, err)
	id := msgs[0].ID

	a := New(acctID, s)
	runActor(t, a)

	done := make(chan error, 1)
	require.NoError(t, a.SendCtx(context.Background(), Update{Kind: KindRawBody, MessageID: id, RawBody: []byte("raw bytes"), Done: done}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Done signal")
	}

	raw, err := s.RawBody(id)
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(raw))
}

func TestApplyUnknownKindReturnsError(t *testing.T) {
	s := openTestStore(t)
	acctID, err := s.UpsertAccount("Personal", "p@example.com")
	require.NoError(t, err)
	a := New(acctID, s)

	err = a.apply(Update{Kind: Kind(99)})
	assert.Error(t, err)
}
