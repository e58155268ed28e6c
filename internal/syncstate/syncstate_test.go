package syncstate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSyncUpdateTracksMaxUIDAndMinDate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	u := ComputeSyncUpdate(Result{UIDs: []uint32{5, 9, 3}, Dates: []int64{400, 100, 250}}, now)
	require.NotNil(t, u.LastSeenUID)
	require.NotNil(t, u.OldestTS)
	assert.Equal(t, uint32(9), *u.LastSeenUID)
	assert.Equal(t, int64(100), *u.OldestTS)
	assert.Equal(t, now.Unix(), u.LastSyncTS)
}

func TestComputeSyncUpdateEmptyResult(t *testing.T) {
	u := ComputeSyncUpdate(Result{}, time.Unix(1700000000, 0))
	assert.Nil(t, u.LastSeenUID)
	assert.Nil(t, u.OldestTS)
}

func TestIsRetryableBye(t *testing.T) {
	assert.True(t, IsRetryableBye(errors.New("server sent BYE response")))
	assert.True(t, IsRetryableBye(errors.New("connection closed: Bye Response from server")))
	assert.False(t, IsRetryableBye(errors.New("authentication failed")))
	assert.False(t, IsRetryableBye(nil))
}

func TestSchedulerAllowSelectionSyncDebounce(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	require.True(t, s.AllowSelectionSync(1, "INBOX", now))
	require.False(t, s.AllowSelectionSync(1, "INBOX", now.Add(time.Second)), "second call inside the 2s debounce window must be refused")
	require.True(t, s.AllowSelectionSync(1, "INBOX", now.Add(SelectionDebounce+time.Millisecond)))
}

func TestSchedulerAllowSelectionSyncDifferentFoldersIndependent(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	require.True(t, s.AllowSelectionSync(1, "INBOX", now))
	require.True(t, s.AllowSelectionSync(1, "Sent", now), "a different folder has its own debounce window")
}

func TestSchedulerAllowBackfillSyncDebounce(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	require.True(t, s.AllowBackfillSync(2, "Archive", now))
	require.False(t, s.AllowBackfillSync(2, "Archive", now.Add(time.Second)))
	require.True(t, s.AllowBackfillSync(2, "Archive", now.Add(BackfillDebounce+time.Millisecond)))
}

func TestSchedulerPendingCounter(t *testing.T) {
	s := NewScheduler()
	assert.Equal(t, 0, s.Pending())
	s.BeginPending()
	s.BeginPending()
	assert.Equal(t, 2, s.Pending())
	s.EndPending()
	assert.Equal(t, 1, s.Pending())
	s.EndPending()
	s.EndPending()
	assert.Equal(t, 0, s.Pending(), "pending count never goes negative")
}
