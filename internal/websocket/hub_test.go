package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	mentions []string // user IDs handed to the offline pipeline
}

func (n *fakeNotifier) MentionWhileOffline(_ context.Context, userID string, _ *MessagePayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mentions = append(n.mentions, userID)
}

type fakeStore struct {
	mu       sync.Mutex
	saved    []SendMessageInput
	reads    []string
	messages map[string]string // messageID -> owning conversation
}

func (s *fakeStore) SaveMessage(_ context.Context, senderID string, in SendMessageInput) (*MessagePayload, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, in)
	return &MessagePayload{
		ID:             "msg-1",
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		Type:           "text",
	}, []string{"mallory"}, nil
}

func (s *fakeStore) MarkRead(_ context.Context, conversationID, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.messages[messageID]; ok && owner != conversationID {
		return errors.New("message not in conversation")
	}
	s.reads = append(s.reads, conversationID+"/"+messageID+"/"+userID)
	return nil
}

func TestRegisterResyncsAuthoritativeList(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{
		"conv-1": {"alice"},
		"conv-2": {"alice", "bob"},
		"conv-3": {"bob"},
	}))

	c := newTestClient(hub, "alice")
	hub.registerClient(c)

	evt := recvEvent(t, c)
	assert.Equal(t, EventConnect, evt.Type)
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, c.Groups())
}

func TestMentionReachesNonSubscribedMember(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "mia"}}))
	ctx := context.Background()

	// Mia is online but never joined conv-x's live group.
	mia := newTestClient(hub, "mia")
	hub.presence.Connect(mia)

	msg := &MessagePayload{ID: "msg-1", ConversationID: "conv-x", SenderID: "alice", Content: "hi @mia"}
	hub.NotifyMention(ctx, "mia", msg)

	evt := recvEvent(t, mia)
	assert.Equal(t, EventMention, evt.Type)
	assert.Equal(t, "msg-1", evt.Data["id"])
}

func TestMentionOfflineUserGoesToNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	hub := NewHub(newFakeDirectory(nil), WithOfflineNotifier(notifier))

	hub.NotifyMention(context.Background(), "ghost", &MessagePayload{ID: "msg-1"})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"ghost"}, notifier.mentions)
}

func TestSignalIsPointToPoint(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob", "carol"}}))
	ctx := context.Background()

	b1 := newTestClient(hub, "bob")
	b2 := newTestClient(hub, "bob")
	carol := newTestClient(hub, "carol")
	hub.presence.Connect(b1)
	hub.presence.Connect(b2)
	hub.presence.Connect(carol)
	require.NoError(t, hub.groups.Join(ctx, carol, "conv-x"))

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	hub.ForwardSignal(ctx, EventWebRTCOffer, "alice", "bob", payload)

	// Every one of bob's connections gets the offer, tagged with the sender.
	for _, c := range []*Client{b1, b2} {
		evt := recvEvent(t, c)
		assert.Equal(t, EventWebRTCOffer, evt.Type)
		assert.Equal(t, "alice", evt.Data["from"])
	}

	// Never deliver signaling payloads to the group.
	noEvent(t, carol)
}

func TestSignalSilentDropWhenTargetOffline(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}))

	// Completes without error; bob simply receives nothing.
	hub.ForwardSignal(context.Background(), EventWebRTCCandidate, "alice", "bob", json.RawMessage(`{}`))
	assert.False(t, hub.presence.IsOnline("bob"))
}

func TestCallLifecycleScenario(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}))
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	hub.presence.Connect(alice)
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))

	// Bob is a member of conv-x but has no connection in its live group.
	bob := newTestClient(hub, "bob")
	hub.presence.Connect(bob)

	require.NoError(t, hub.StartCall(ctx, "conv-x", "alice"))

	evt := recvEvent(t, bob)
	assert.Equal(t, EventCallStart, evt.Type)
	assert.Equal(t, "alice", evt.UserID)

	evt = recvEvent(t, alice)
	assert.Equal(t, EventCallStart, evt.Type)

	require.NoError(t, hub.JoinCall(ctx, "conv-x", "bob"))
	assert.Equal(t, []string{"alice", "bob"}, hub.calls.Participants("conv-x"))

	evt = recvEvent(t, alice)
	assert.Equal(t, EventCallJoin, evt.Type)
	assert.Equal(t, "bob", evt.UserID)
	recvEvent(t, bob) // bob's own join echo

	// Bob disconnects abruptly: alice sees an implicit call/leave without
	// bob ever calling it.
	hub.unregisterClient(bob)

	evt = recvEvent(t, alice)
	assert.Equal(t, EventCallLeave, evt.Type)
	assert.Equal(t, "bob", evt.UserID)
	assert.Equal(t, []string{"alice"}, hub.calls.Participants("conv-x"))
}

func TestImplicitLeaveWaitsForLastConnection(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}))
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	hub.presence.Connect(alice)
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))

	b1 := newTestClient(hub, "bob")
	b2 := newTestClient(hub, "bob")
	hub.presence.Connect(b1)
	hub.presence.Connect(b2)

	require.NoError(t, hub.StartCall(ctx, "conv-x", "bob"))
	recvEvent(t, alice)

	// Bob still has a live device; the call keeps him.
	hub.unregisterClient(b1)
	assert.Equal(t, []string{"bob"}, hub.calls.Participants("conv-x"))
	noEvent(t, alice)

	hub.unregisterClient(b2)
	evt := recvEvent(t, alice)
	assert.Equal(t, EventCallLeave, evt.Type)
	assert.False(t, hub.calls.Active("conv-x"))
}

func TestEndCallHangsUpForEveryone(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}))
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	hub.presence.Connect(alice)
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))

	require.NoError(t, hub.StartCall(ctx, "conv-x", "alice"))
	require.NoError(t, hub.JoinCall(ctx, "conv-x", "bob"))
	recvEvents(t, alice, 2)

	require.NoError(t, hub.EndCall(ctx, "conv-x", "alice"))
	evt := recvEvent(t, alice)
	assert.Equal(t, EventCallEnd, evt.Type)
	assert.False(t, hub.calls.Active("conv-x"))
	assert.Empty(t, hub.calls.Participants("conv-x"))
}

func TestTypingRejectedForNonMember(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice"}}))

	err := hub.Typing(context.Background(), "conv-x", "mallory", true)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestHandleActionReportsPermissionFailure(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice"}}))
	ctx := context.Background()

	mallory := newTestClient(hub, "mallory")
	hub.presence.Connect(mallory)

	hub.handleAction(ctx, mallory, &ClientAction{Action: ActionTyping, ConversationID: "conv-x", IsTyping: true})

	evt := recvEvent(t, mallory)
	assert.Equal(t, EventError, evt.Type)
	assert.Equal(t, CodeNotAMember, evt.Data["code"])
}

func TestHandleActionSendMessagePersistsThenDispatches(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	hub := NewHub(
		newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob", "mallory"}}),
		WithMessageStore(store),
		WithOfflineNotifier(notifier),
	)
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	hub.presence.Connect(alice)
	hub.presence.Connect(bob)
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))
	require.NoError(t, hub.groups.Join(ctx, bob, "conv-x"))

	hub.handleAction(ctx, alice, &ClientAction{
		Action:         ActionSendMessage,
		ConversationID: "conv-x",
		Content:        "hello @mallory",
	})

	store.mu.Lock()
	require.Len(t, store.saved, 1)
	store.mu.Unlock()

	for _, c := range []*Client{alice, bob} {
		evt := recvEvent(t, c)
		assert.Equal(t, EventMessage, evt.Type)
		assert.Equal(t, "hello @mallory", evt.Data["content"])
	}

	// Mallory is offline, so the mention goes to the fallback pipeline.
	notifier.mu.Lock()
	assert.Equal(t, []string{"mallory"}, notifier.mentions)
	notifier.mu.Unlock()
}

func TestHandleActionMarkRead(t *testing.T) {
	store := &fakeStore{}
	hub := NewHub(
		newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}),
		WithMessageStore(store),
	)
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))
	require.NoError(t, hub.groups.Join(ctx, bob, "conv-x"))

	hub.handleAction(ctx, alice, &ClientAction{
		Action:         ActionMarkRead,
		ConversationID: "conv-x",
		MessageID:      "msg-9",
	})

	store.mu.Lock()
	assert.Equal(t, []string{"conv-x/msg-9/alice"}, store.reads)
	store.mu.Unlock()

	evt := recvEvent(t, bob)
	assert.Equal(t, EventRead, evt.Type)
	assert.Equal(t, "msg-9", evt.Data["messageId"])
}

func TestHandleActionMarkReadRejectsForeignMessage(t *testing.T) {
	store := &fakeStore{messages: map[string]string{"msg-9": "conv-other"}}
	hub := NewHub(
		newFakeDirectory(map[string][]string{
			"conv-x":     {"alice", "bob"},
			"conv-other": {"carol"},
		}),
		WithMessageStore(store),
	)
	ctx := context.Background()

	alice := newTestClient(hub, "alice")
	bob := newTestClient(hub, "bob")
	require.NoError(t, hub.groups.Join(ctx, alice, "conv-x"))
	require.NoError(t, hub.groups.Join(ctx, bob, "conv-x"))

	// Alice is a conv-x member, but msg-9 lives in a conversation she is not
	// part of; naming conv-x must not smuggle the receipt through.
	hub.handleAction(ctx, alice, &ClientAction{
		Action:         ActionMarkRead,
		ConversationID: "conv-x",
		MessageID:      "msg-9",
	})

	evt := recvEvent(t, alice)
	assert.Equal(t, EventError, evt.Type)
	assert.Equal(t, CodeInvalidAction, evt.Data["code"])

	store.mu.Lock()
	assert.Empty(t, store.reads)
	store.mu.Unlock()
	noEvent(t, bob)
}

func TestCallStateMemberGated(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice", "bob"}}))
	ctx := context.Background()

	_, _, err := hub.CallState(ctx, "conv-x", "mallory")
	assert.ErrorIs(t, err, ErrNotAMember)

	active, participants, err := hub.CallState(ctx, "conv-x", "alice")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Empty(t, participants)

	require.NoError(t, hub.StartCall(ctx, "conv-x", "alice"))
	active, participants, err = hub.CallState(ctx, "conv-x", "bob")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, []string{"alice"}, participants)
}

func TestDisconnectCleanupLeavesEverything(t *testing.T) {
	hub := NewHub(newFakeDirectory(map[string][]string{"conv-x": {"alice"}}))
	ctx := context.Background()

	c := newTestClient(hub, "alice")
	hub.presence.Connect(c)
	require.NoError(t, hub.groups.Join(ctx, c, "conv-x"))

	hub.unregisterClient(c)

	assert.False(t, hub.presence.IsOnline("alice"))
	assert.Empty(t, hub.groups.Snapshot("conv-x"))
}
