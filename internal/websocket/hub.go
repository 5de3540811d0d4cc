package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Hub coordinates all live connections of one gateway instance: it keeps the
// presence registry, the conversation groups and the call sessions, dispatches
// domain events to the right subscribers and relays call signaling between
// users. Client registration flows through the run loop; every other
// operation runs on the calling connection's goroutine against sharded state,
// so unrelated conversations never serialize on a common lock.
type Hub struct {
	presence *PresenceRegistry
	groups   *GroupManager
	calls    *CallManager

	directory MembershipDirectory
	store     MessageStore
	notifier  OfflineNotifier
	bus       EventBus

	instanceID string

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures optional hub collaborators.
type Option func(*Hub)

// WithPresenceSink wires the consumer of came-online / went-offline signals.
func WithPresenceSink(sink PresenceSink) Option {
	return func(h *Hub) {
		h.presence.onOnline = func(userID string) {
			sink.UserOnline(h.ctx, userID)
		}
		h.presence.onOffline = func(userID string, lastSeen time.Time) {
			sink.UserOffline(h.ctx, userID, lastSeen)
		}
	}
}

// WithMessageStore wires the persistence collaborator behind message.send and
// read actions.
func WithMessageStore(store MessageStore) Option {
	return func(h *Hub) { h.store = store }
}

// WithOfflineNotifier wires the fallback pipeline for mentions of users with
// no live connections.
func WithOfflineNotifier(notifier OfflineNotifier) Option {
	return func(h *Hub) { h.notifier = notifier }
}

// WithEventBus wires cross-instance event fanout.
func WithEventBus(bus EventBus) Option {
	return func(h *Hub) { h.bus = bus }
}

func NewHub(directory MembershipDirectory, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		groups:     NewGroupManager(directory),
		calls:      NewCallManager(),
		directory:  directory,
		instanceID: uuid.New().String(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.presence = NewPresenceRegistry(nil, nil)

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InstanceID identifies this gateway instance on the event bus.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Presence exposes the registry for point-in-time online checks.
func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

// CallState reports whether the conversation has an active call and who is
// in it, gated on the caller's membership like every other call operation.
func (h *Hub) CallState(ctx context.Context, conversationID, userID string) (active bool, participants []string, err error) {
	if err := h.requireMember(ctx, conversationID, userID); err != nil {
		return false, nil, err
	}
	return h.calls.Active(conversationID), h.calls.Participants(conversationID), nil
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) registerClient(c *Client) {
	h.presence.Connect(c)
	slog.Info("Client registered", "clientID", c.id, "userID", c.userID)

	c.Send(NewConnectEvent(c.id, c.userID))

	// Group membership is connection-scoped while conversation membership is
	// durable; converge the fresh connection onto the authoritative list.
	conversations, err := h.directory.ConversationIDs(h.ctx, c.userID)
	if err != nil {
		slog.Warn("Initial resync skipped, conversation list unavailable",
			"clientID", c.id, "userID", c.userID, "error", err)
		return
	}
	if err := h.groups.Resync(h.ctx, c, conversations); err != nil {
		slog.Warn("Initial resync incomplete", "clientID", c.id, "userID", c.userID, "error", err)
	}
}

// unregisterClient runs the mandatory cleanup for every disconnect path:
// leave all groups, drop presence, and issue an implicit call/leave for any
// active call once the user has no live connections left.
func (h *Hub) unregisterClient(c *Client) {
	h.groups.RemoveAll(c)
	h.presence.Disconnect(c)

	if !h.presence.IsOnline(c.userID) {
		for _, conversationID := range h.calls.DropUser(c.userID) {
			evt := NewCallEvent(EventCallLeave, conversationID, c.userID, h.calls.Participants(conversationID))
			h.broadcastCallEvent(h.ctx, conversationID, evt)
		}
	}

	c.close()
	slog.Info("Client unregistered", "clientID", c.id, "userID", c.userID)
}

// =============================================================================
// Event dispatch
// =============================================================================

// Typing broadcasts a typing indicator to the conversation group. Best
// effort: nothing is persisted and nothing is retried.
func (h *Hub) Typing(ctx context.Context, conversationID, userID string, isTyping bool) error {
	if err := h.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	evt := NewTypingEvent(conversationID, userID, isTyping)
	h.publishConversation(ctx, conversationID, evt)
	h.groups.Broadcast(conversationID, evt)
	return nil
}

// Broadcast fans an already-persisted message payload out to every connection
// in the conversation's group, exactly once per connection, in the order this
// dispatcher receives events for the conversation.
func (h *Hub) Broadcast(ctx context.Context, msg *MessagePayload) error {
	if err := h.requireMember(ctx, msg.ConversationID, msg.SenderID); err != nil {
		return err
	}

	evt := NewMessageEvent(msg)
	h.publishConversation(ctx, msg.ConversationID, evt)
	h.groups.Broadcast(msg.ConversationID, evt)
	return nil
}

// BroadcastEvent fans a prepared event (reaction, read) out to the
// conversation's group.
func (h *Hub) BroadcastEvent(ctx context.Context, conversationID string, evt *Event) {
	h.publishConversation(ctx, conversationID, evt)
	h.groups.Broadcast(conversationID, evt)
}

// NotifyMention delivers a message payload directly to every live connection
// of a specific user, independent of group membership. A user with zero live
// connections is handed to the offline notifier instead.
func (h *Hub) NotifyMention(ctx context.Context, userID string, msg *MessagePayload) {
	evt := NewMentionEvent(msg)
	h.publishUser(ctx, userID, evt)

	conns := h.presence.Connections(userID)
	if len(conns) == 0 {
		if h.notifier != nil {
			h.notifier.MentionWhileOffline(ctx, userID, msg)
		}
		return
	}
	for _, c := range conns {
		c.Send(evt)
	}
}

// =============================================================================
// Call signaling
// =============================================================================

// StartCall transitions the conversation's call NoCall -> Active and
// broadcasts call/start to every member, including the caller's own other
// connections. Starting an already-active call is a no-op broadcast.
func (h *Hub) StartCall(ctx context.Context, conversationID, callerID string) error {
	if err := h.requireMember(ctx, conversationID, callerID); err != nil {
		return err
	}

	h.calls.Start(conversationID, callerID)
	evt := NewCallEvent(EventCallStart, conversationID, callerID, h.calls.Participants(conversationID))
	h.broadcastCallEvent(ctx, conversationID, evt)
	return nil
}

// JoinCall adds the user to the call's participant set and broadcasts
// call/join. Receivers of call/join drive peer negotiation toward the new
// joiner; the join itself triggers no signaling.
func (h *Hub) JoinCall(ctx context.Context, conversationID, userID string) error {
	if err := h.requireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	h.calls.Join(conversationID, userID)
	evt := NewCallEvent(EventCallJoin, conversationID, userID, h.calls.Participants(conversationID))
	h.broadcastCallEvent(ctx, conversationID, evt)
	return nil
}

// LeaveCall removes the user from the participant set and broadcasts
// call/leave. Leaving a call the user is not in is a no-op.
func (h *Hub) LeaveCall(ctx context.Context, conversationID, userID string) {
	removed, _ := h.calls.Leave(conversationID, userID)
	if !removed {
		return
	}
	evt := NewCallEvent(EventCallLeave, conversationID, userID, h.calls.Participants(conversationID))
	h.broadcastCallEvent(ctx, conversationID, evt)
}

// EndCall clears the call unconditionally and broadcasts call/end: a hang-up
// for everyone regardless of current participants.
func (h *Hub) EndCall(ctx context.Context, conversationID, callerID string) error {
	if err := h.requireMember(ctx, conversationID, callerID); err != nil {
		return err
	}

	h.calls.End(conversationID)
	evt := NewCallEvent(EventCallEnd, conversationID, callerID, nil)
	h.broadcastCallEvent(ctx, conversationID, evt)
	return nil
}

// ForwardSignal relays an opaque WebRTC payload to exactly one destination
// user, fanned out to all of that user's connections. A target with no live
// connections is a silent drop, not a protocol fault — the caller detects
// call failure through its own answer timeout.
func (h *Hub) ForwardSignal(ctx context.Context, evtType EventType, fromUserID, toUserID string, payload []byte) {
	evt := NewSignalEvent(evtType, fromUserID, payload)
	h.publishUser(ctx, toUserID, evt)

	conns := h.presence.Connections(toUserID)
	if len(conns) == 0 {
		slog.Debug("Dropping signaling payload for offline user",
			"from", fromUserID, "to", toUserID, "type", evtType)
		return
	}
	for _, c := range conns {
		c.Send(evt)
	}
}

// broadcastCallEvent delivers a call lifecycle event to every conversation
// member's live connections, not just the current group subscribers, so
// members who are not viewing the conversation still get rung. Falls back to
// the group snapshot when the directory is unavailable.
func (h *Hub) broadcastCallEvent(ctx context.Context, conversationID string, evt *Event) {
	h.publishConversation(ctx, conversationID, evt)

	members, err := h.directory.MemberIDs(ctx, conversationID)
	if err != nil {
		slog.Warn("Member list unavailable, ringing group subscribers only",
			"conversationID", conversationID, "error", err)
		h.groups.Broadcast(conversationID, evt)
		return
	}

	seen := make(map[string]struct{})
	for _, c := range h.groups.Snapshot(conversationID) {
		seen[c.id] = struct{}{}
		c.Send(evt)
	}
	for _, userID := range members {
		for _, c := range h.presence.Connections(userID) {
			if _, ok := seen[c.id]; ok {
				continue
			}
			seen[c.id] = struct{}{}
			c.Send(evt)
		}
	}
}

// =============================================================================
// Cross-instance delivery
// =============================================================================

// DeliverToConversation hands an event published by another gateway instance
// to this instance's local group subscribers.
func (h *Hub) DeliverToConversation(conversationID string, evt *Event) {
	if evt.Origin == h.instanceID {
		return
	}
	h.groups.Broadcast(conversationID, evt)
}

// DeliverToUser hands a user-targeted event published by another gateway
// instance to the user's local connections.
func (h *Hub) DeliverToUser(userID string, evt *Event) {
	if evt.Origin == h.instanceID {
		return
	}
	for _, c := range h.presence.Connections(userID) {
		c.Send(evt)
	}
}

func (h *Hub) publishConversation(ctx context.Context, conversationID string, evt *Event) {
	if h.bus == nil {
		return
	}
	evt.Origin = h.instanceID
	if err := h.bus.PublishConversation(ctx, conversationID, evt); err != nil {
		slog.Warn("Failed to publish conversation event", "conversationID", conversationID, "error", err)
	}
}

func (h *Hub) publishUser(ctx context.Context, userID string, evt *Event) {
	if h.bus == nil {
		return
	}
	evt.Origin = h.instanceID
	if err := h.bus.PublishUser(ctx, userID, evt); err != nil {
		slog.Warn("Failed to publish user event", "userID", userID, "error", err)
	}
}

// =============================================================================
// Client action routing
// =============================================================================

func (h *Hub) requireMember(ctx context.Context, conversationID, userID string) error {
	ok, err := h.directory.IsMember(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: membership check for %s: %v", ErrTransientDependency, conversationID, err)
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

// handleAction runs a client action on the connection's own goroutine. Domain
// errors are reported back to the acting client only; none of them are fatal
// to the connection.
func (h *Hub) handleAction(ctx context.Context, c *Client, action *ClientAction) {
	var err error

	switch action.Action {
	case ActionJoinConversation:
		err = h.groups.Join(ctx, c, action.ConversationID)

	case ActionLeaveConversation:
		h.groups.Leave(c, action.ConversationID)

	case ActionResync:
		if resyncErr := h.groups.Resync(ctx, c, action.Conversations); resyncErr != nil {
			slog.Warn("Resync incomplete", "clientID", c.id, "userID", c.userID, "error", resyncErr)
		}

	case ActionTyping:
		err = h.Typing(ctx, action.ConversationID, c.userID, action.IsTyping)

	case ActionSendMessage:
		err = h.sendMessage(ctx, c, action)

	case ActionMarkRead:
		err = h.markRead(ctx, c, action)

	case ActionCallStart:
		err = h.StartCall(ctx, action.ConversationID, c.userID)

	case ActionCallJoin:
		err = h.JoinCall(ctx, action.ConversationID, c.userID)

	case ActionCallLeave:
		h.LeaveCall(ctx, action.ConversationID, c.userID)

	case ActionCallEnd:
		err = h.EndCall(ctx, action.ConversationID, c.userID)

	case ActionWebRTCOffer:
		h.ForwardSignal(ctx, EventWebRTCOffer, c.userID, action.ToUserID, action.Payload)

	case ActionWebRTCAnswer:
		h.ForwardSignal(ctx, EventWebRTCAnswer, c.userID, action.ToUserID, action.Payload)

	case ActionWebRTCCandidate:
		h.ForwardSignal(ctx, EventWebRTCCandidate, c.userID, action.ToUserID, action.Payload)

	default:
		c.sendError(CodeInvalidAction, fmt.Sprintf("unknown action %q", action.Action))
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrNotAMember):
		c.sendError(CodeNotAMember, "not a member of conversation "+action.ConversationID)
	case errors.Is(err, ErrTransientDependency):
		slog.Warn("Action failed on transient dependency",
			"clientID", c.id, "userID", c.userID, "action", action.Action, "error", err)
		c.sendError(CodeTransient, "temporarily unavailable, try again")
	default:
		slog.Error("Action failed", "clientID", c.id, "userID", c.userID, "action", action.Action, "error", err)
		c.sendError(CodeInvalidAction, err.Error())
	}
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, action *ClientAction) error {
	if h.store == nil {
		return errors.New("message store not configured")
	}

	msg, mentioned, err := h.store.SaveMessage(ctx, c.userID, SendMessageInput{
		ConversationID:   action.ConversationID,
		Content:          action.Content,
		Type:             action.MessageType,
		ParentMessageID:  action.ParentMessageID,
		EphemeralSeconds: action.EphemeralSeconds,
		Metadata:         action.Metadata,
	})
	if err != nil {
		return err
	}

	if err := h.Broadcast(ctx, msg); err != nil {
		return err
	}
	for _, userID := range mentioned {
		h.NotifyMention(ctx, userID, msg)
	}
	return nil
}

func (h *Hub) markRead(ctx context.Context, c *Client, action *ClientAction) error {
	if h.store == nil {
		return errors.New("message store not configured")
	}
	if err := h.requireMember(ctx, action.ConversationID, c.userID); err != nil {
		return err
	}

	// The store classifies its own failures: transient for dependency
	// trouble, a plain error for a receipt naming the wrong conversation.
	if err := h.store.MarkRead(ctx, action.ConversationID, action.MessageID, c.userID); err != nil {
		return err
	}

	h.BroadcastEvent(ctx, action.ConversationID, NewReadEvent(action.ConversationID, action.MessageID, c.userID))
	return nil
}
