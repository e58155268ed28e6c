package render

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hkdb/ratmail/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStoreWithMessage(t *testing.T) (*store.Store, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "render.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	accountID, err := s.UpsertAccount("Test", "test@example.com")
	require.NoError(t, err)
	folderID, err := s.EnsureFolder(accountID, "INBOX")
	require.NoError(t, err)

	require.NoError(t, s.UpsertFolderMessagesAppend(accountID, folderID, []store.MessageSummary{
		{UID: uint32Ptr(1), From: "a@example.com", Subject: "Hi"},
	}))
	msgs, err := s.ListMessages(folderID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	raw := []byte("Content-Type: text/html\r\n\r\n<html><body><p>hello</p></body></html>")
	require.NoError(t, s.SetRawBody(msgs[0].ID, raw))

	return s, msgs[0].ID
}

func uint32Ptr(v uint32) *uint32 { return &v }

func TestPipeline_RendersAndCachesTiles(t *testing.T) {
	s, messageID := newTestStoreWithMessage(t)

	p := New(s, NullRenderer{})
	events := make(chan Event, 4)
	go func() {
		for e := range p.Events() {
			events <- e
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(Request{
		RequestID:    1,
		MessageIDs:   []int64{messageID},
		WidthPx:      600,
		TileHeightPx: 240,
		Theme:        "dark",
		RemotePolicy: RemoteAllowed,
	})

	evt := <-events
	require.Equal(t, EvtTiles, evt.Kind)
	require.NotEmpty(t, evt.Tiles)

	tiles, err := s.GetCacheTiles(messageID, 600, 240, ThemeKey("dark"), store.RemoteAllowed)
	require.NoError(t, err)
	require.NotEmpty(t, tiles)
}

func TestPipeline_StaleRequestAbandonsBatch(t *testing.T) {
	s, messageID := newTestStoreWithMessage(t)
	p := New(s, NullRenderer{})

	p.latestRequestID.Store(2)
	p.processBatch(context.Background(), Request{
		RequestID:  1,
		MessageIDs: []int64{messageID},
	})

	select {
	case <-p.events:
		t.Fatal("expected no event for an abandoned stale batch")
	default:
	}
}
