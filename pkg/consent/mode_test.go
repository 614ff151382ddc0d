package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFor(t *testing.T) {
	granted := Mode{Granted, Granted, Granted, Granted}
	denied := Mode{Denied, Denied, Denied, Denied}

	assert.Equal(t, granted, ModeFor(Accepted))
	assert.Equal(t, denied, ModeFor(Declined))
	assert.Equal(t, denied, ModeFor(Unset))
}

func TestModeUpdater_DefaultsToDenied(t *testing.T) {
	m := NewManager(NewMemoryStorage(), NewBus(), nil)
	layer := NewDataLayer()

	NewModeUpdater(layer, m)

	entries := layer.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, CommandDefault, entries[0].Command)
	assert.Equal(t, ModeFor(Unset), entries[0].Mode)
}

func TestModeUpdater_RestoresAcceptedState(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Set(ScopePersistent, KeyConsent, string(Accepted))
	m := NewManager(storage, NewBus(), nil)
	layer := NewDataLayer()

	NewModeUpdater(layer, m)

	current, ok := layer.Current()
	require.True(t, ok)
	assert.Equal(t, ModeFor(Accepted), current)
	assert.Len(t, layer.Entries(), 2)
}

func TestModeUpdater_FollowsTransitions(t *testing.T) {
	m := NewManager(NewMemoryStorage(), NewBus(), nil)
	layer := NewDataLayer()
	updater := NewModeUpdater(layer, m)

	m.Accept()
	current, _ := layer.Current()
	assert.Equal(t, Granted, current.AnalyticsStorage)

	m.Decline()
	current, _ = layer.Current()
	assert.Equal(t, ModeFor(Declined), current, "declining resets the signal to denied")

	updater.Close()
	m.Accept()
	assert.Len(t, layer.Entries(), 3, "closed updater stops forwarding")
}
