package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallStartTransitionsNoCallToActive(t *testing.T) {
	m := NewCallManager()

	assert.False(t, m.Active("conv-1"))
	assert.True(t, m.Start("conv-1", "alice"))
	assert.True(t, m.Active("conv-1"))
	assert.Equal(t, []string{"alice"}, m.Participants("conv-1"))
}

func TestCallDuplicateStartIsNoOp(t *testing.T) {
	m := NewCallManager()

	m.Start("conv-1", "alice")
	assert.False(t, m.Start("conv-1", "bob"), "second start must not replace the session")
	assert.Equal(t, []string{"alice"}, m.Participants("conv-1"))
}

func TestCallJoinAndLeaveLifecycle(t *testing.T) {
	m := NewCallManager()

	m.Start("conv-1", "alice")
	m.Join("conv-1", "bob")
	assert.Equal(t, []string{"alice", "bob"}, m.Participants("conv-1"))

	// Joining twice changes nothing.
	m.Join("conv-1", "bob")
	assert.Equal(t, []string{"alice", "bob"}, m.Participants("conv-1"))

	removed, ended := m.Leave("conv-1", "bob")
	assert.True(t, removed)
	assert.False(t, ended)
	assert.True(t, m.Active("conv-1"))

	// The last leave transitions back to NoCall.
	removed, ended = m.Leave("conv-1", "alice")
	assert.True(t, removed)
	assert.True(t, ended)
	assert.False(t, m.Active("conv-1"))
	assert.Empty(t, m.Participants("conv-1"))
}

func TestCallLeaveNonParticipantIsNoOp(t *testing.T) {
	m := NewCallManager()

	removed, ended := m.Leave("conv-1", "alice")
	assert.False(t, removed)
	assert.False(t, ended)

	m.Start("conv-1", "alice")
	removed, _ = m.Leave("conv-1", "bob")
	assert.False(t, removed)
	assert.True(t, m.Active("conv-1"))
}

func TestCallJoinCreatesSession(t *testing.T) {
	m := NewCallManager()

	// The first join event also creates the session.
	m.Join("conv-1", "bob")
	assert.True(t, m.Active("conv-1"))
	assert.Equal(t, []string{"bob"}, m.Participants("conv-1"))
}

func TestCallEndClearsRegardlessOfParticipants(t *testing.T) {
	m := NewCallManager()

	m.Start("conv-1", "alice")
	m.Join("conv-1", "bob")
	m.End("conv-1")

	assert.False(t, m.Active("conv-1"))
	assert.Empty(t, m.Participants("conv-1"))

	// Ending an inactive call is fine.
	m.End("conv-1")
	assert.False(t, m.Active("conv-1"))
}

func TestCallDropUserLeavesEveryCall(t *testing.T) {
	m := NewCallManager()

	m.Start("conv-1", "alice")
	m.Join("conv-1", "bob")
	m.Join("conv-2", "bob")

	left := m.DropUser("bob")
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, left)

	assert.Equal(t, []string{"alice"}, m.Participants("conv-1"))
	assert.False(t, m.Active("conv-2"), "bob was the only participant")

	// Dropping again finds nothing.
	assert.Empty(t, m.DropUser("bob"))
}
