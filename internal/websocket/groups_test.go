package websocket

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRequiresMembership(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-1": {"alice"}}))
	ctx := context.Background()

	outsider := newTestClient(hub, "mallory")
	err := hub.groups.Join(ctx, outsider, "conv-1")
	require.ErrorIs(t, err, ErrNotAMember)
	assert.Empty(t, outsider.Groups())
	assert.Empty(t, hub.groups.Snapshot("conv-1"))
}

func TestJoinTransientFailure(t *testing.T) {
	dir := newFakeDirectory(map[string][]string{"conv-1": {"alice"}})
	hub := NewHub(dir)
	ctx := context.Background()

	dir.setFailNext(1)
	c := newTestClient(hub, "alice")
	err := hub.groups.Join(ctx, c, "conv-1")
	require.ErrorIs(t, err, ErrTransientDependency)

	// The failure is not sticky.
	require.NoError(t, hub.groups.Join(ctx, c, "conv-1"))
}

func TestDuplicateJoinIsNoOp(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-1": {"alice"}}))
	ctx := context.Background()

	c := newTestClient(hub, "alice")
	require.NoError(t, hub.groups.Join(ctx, c, "conv-1"))
	require.NoError(t, hub.groups.Join(ctx, c, "conv-1"))

	assert.Equal(t, []string{"conv-1"}, c.Groups())
	assert.Len(t, hub.groups.Snapshot("conv-1"), 1)

	// No duplicate future broadcasts either.
	delivered := hub.groups.Broadcast("conv-1", NewTypingEvent("conv-1", "alice", true))
	assert.Equal(t, 1, delivered)
	recvEvent(t, c)
	noEvent(t, c)
}

func TestLeaveIsIdempotent(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-1": {"alice"}}))
	ctx := context.Background()

	c := newTestClient(hub, "alice")
	require.NoError(t, hub.groups.Join(ctx, c, "conv-1"))

	hub.groups.Leave(c, "conv-1")
	hub.groups.Leave(c, "conv-1")
	hub.groups.Leave(c, "conv-never-joined")

	assert.Empty(t, c.Groups())
	assert.Empty(t, hub.groups.Snapshot("conv-1"))
}

func TestResyncConvergesFromAnyPriorState(t *testing.T) {
	dir := newFakeDirectory(map[string][]string{
		"conv-1": {"alice"},
		"conv-2": {"alice"},
		"conv-3": {"alice"},
	})
	hub := NewHub(dir)
	ctx := context.Background()

	c := newTestClient(hub, "alice")
	require.NoError(t, hub.groups.Join(ctx, c, "conv-3"))

	want := []string{"conv-1", "conv-2"}
	require.NoError(t, hub.groups.Resync(ctx, c, want))
	assert.ElementsMatch(t, want, c.Groups())

	// Repeating the resync changes nothing.
	require.NoError(t, hub.groups.Resync(ctx, c, want))
	assert.ElementsMatch(t, want, c.Groups())

	// Resync to the empty list leaves everything.
	require.NoError(t, hub.groups.Resync(ctx, c, nil))
	assert.Empty(t, c.Groups())
}

func TestResyncRetriesTransientFailureOnce(t *testing.T) {
	dir := newFakeDirectory(map[string][]string{"conv-1": {"alice"}})
	hub := NewHub(dir)
	ctx := context.Background()

	c := newTestClient(hub, "alice")

	// First membership check fails, the retry succeeds.
	dir.setFailNext(1)
	require.NoError(t, hub.groups.Resync(ctx, c, []string{"conv-1"}))
	assert.Equal(t, []string{"conv-1"}, c.Groups())
}

func TestResyncSurfacesPersistentFailureAsWarning(t *testing.T) {
	dir := newFakeDirectory(map[string][]string{"conv-1": {"alice"}})
	hub := NewHub(dir)
	ctx := context.Background()

	c := newTestClient(hub, "alice")

	dir.setFailNext(2)
	err := hub.groups.Resync(ctx, c, []string{"conv-1"})
	require.ErrorIs(t, err, ErrTransientDependency)
	assert.Empty(t, c.Groups())

	// The connection stays usable; the next resync converges.
	require.NoError(t, hub.groups.Resync(ctx, c, []string{"conv-1"}))
	assert.Equal(t, []string{"conv-1"}, c.Groups())
}

func TestBroadcastExactlyOnceInOrder(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-1": {"alice", "bob"}}))
	ctx := context.Background()

	a := newTestClient(hub, "alice")
	b := newTestClient(hub, "bob")
	require.NoError(t, hub.groups.Join(ctx, a, "conv-1"))
	require.NoError(t, hub.groups.Join(ctx, b, "conv-1"))

	const n = 20
	for i := 0; i < n; i++ {
		msg := &MessagePayload{
			ID:             fmt.Sprintf("msg-%02d", i),
			ConversationID: "conv-1",
			SenderID:       "alice",
			Content:        fmt.Sprintf("hello %d", i),
			Type:           "text",
		}
		hub.groups.Broadcast("conv-1", NewMessageEvent(msg))
	}

	for _, c := range []*Client{a, b} {
		events := recvEvents(t, c, n)
		for i, evt := range events {
			assert.Equal(t, EventMessage, evt.Type)
			assert.Equal(t, fmt.Sprintf("msg-%02d", i), evt.Data["id"], "per-conversation order preserved")
		}
		noEvent(t, c)
	}
}

func TestBroadcastSkipsOtherConversations(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{
		"conv-1": {"alice"},
		"conv-2": {"bob"},
	}))
	ctx := context.Background()

	a := newTestClient(hub, "alice")
	b := newTestClient(hub, "bob")
	require.NoError(t, hub.groups.Join(ctx, a, "conv-1"))
	require.NoError(t, hub.groups.Join(ctx, b, "conv-2"))

	hub.groups.Broadcast("conv-1", NewTypingEvent("conv-1", "alice", true))

	recvEvent(t, a)
	noEvent(t, b)
}
