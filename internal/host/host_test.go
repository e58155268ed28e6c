package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchNextPrevWraps(t *testing.T) {
	h := New()
	h.Add(&AccountContext{Label: "Personal"})
	h.Add(&AccountContext{Label: "Work"})

	assert.Equal(t, 0, h.CurrentIndex())
	assert.Equal(t, "Personal", h.Current().Label)

	h.SwitchNext()
	assert.Equal(t, "Work", h.Current().Label)

	h.SwitchNext()
	assert.Equal(t, "Personal", h.Current().Label, "SwitchNext should wrap around")

	h.SwitchPrev()
	assert.Equal(t, "Work", h.Current().Label, "SwitchPrev should wrap around")
}

func TestSwitchToOutOfRange(t *testing.T) {
	h := New()
	h.Add(&AccountContext{Label: "Personal"})

	err := h.SwitchTo(5)
	require.Error(t, err)

	require.NoError(t, h.SwitchTo(0))
}

func TestLabels(t *testing.T) {
	h := New()
	h.Add(&AccountContext{Label: "Personal"})
	h.Add(&AccountContext{Label: "Work"})
	assert.Equal(t, []string{"Personal", "Work"}, h.Labels())
}

func TestCurrentOnEmptyHost(t *testing.T) {
	h := New()
	assert.Nil(t, h.Current())
}
