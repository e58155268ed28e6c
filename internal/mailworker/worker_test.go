package mailworker

import (
	"testing"

	"github.com/hkdb/ratmail/internal/imapclient"
	"github.com/hkdb/ratmail/internal/smtpsend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_QueueFullReportsError(t *testing.T) {
	f := New(imapclient.Config{}, smtpsend.Config{})

	for i := 0; i < commandQueueCap; i++ {
		require.NoError(t, f.Submit(Command{Kind: CmdSetFlag}))
	}

	err := f.Submit(Command{Kind: CmdSetFlag})
	assert.Error(t, err)
}

func TestEmit_DropsOnFullEventQueue(t *testing.T) {
	f := New(imapclient.Config{}, smtpsend.Config{})

	for i := 0; i < eventQueueCap; i++ {
		f.emit(Event{Kind: EvtCompleted})
	}
	// One more beyond capacity must not block.
	f.emit(Event{Kind: EvtCompleted})

	assert.Len(t, f.events, eventQueueCap)
}

func TestDispatch_UnknownKindEmitsError(t *testing.T) {
	f := New(imapclient.Config{}, smtpsend.Config{})
	f.dispatch(nil, Command{Kind: CommandKind(99)})

	evt := <-f.events
	assert.Equal(t, EvtImapError, evt.Kind)
}
