package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chat-gateway/internal/models"
	"chat-gateway/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeMessageRepo struct {
	byID      map[string]*models.Message
	reactions map[string]map[string]struct{} // messageID -> "userID/emoji"
	reads     []string                       // "messageID/userID"
	mentions  map[string][]string
}

func newFakeMessageRepo(msgs ...*models.Message) *fakeMessageRepo {
	r := &fakeMessageRepo{
		byID:      make(map[string]*models.Message),
		reactions: make(map[string]map[string]struct{}),
		mentions:  make(map[string][]string),
	}
	for _, msg := range msgs {
		r.byID[msg.ID] = msg
	}
	return r
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", len(r.byID)+1)
	}
	r.byID[msg.ID] = msg
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, messageID string) (*models.Message, error) {
	msg, ok := r.byID[messageID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return msg, nil
}

func (r *fakeMessageRepo) History(_ context.Context, _, _ string, page, pageSize int) (*models.MessageHistoryResponse, error) {
	return &models.MessageHistoryResponse{Page: page, PageSize: pageSize}, nil
}

func (r *fakeMessageRepo) AddReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	key := userID + "/" + emoji
	set := r.reactions[messageID]
	if set == nil {
		set = make(map[string]struct{})
		r.reactions[messageID] = set
	}
	if _, ok := set[key]; ok {
		return false, nil
	}
	set[key] = struct{}{}
	return true, nil
}

func (r *fakeMessageRepo) RemoveReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	key := userID + "/" + emoji
	if _, ok := r.reactions[messageID][key]; !ok {
		return false, nil
	}
	delete(r.reactions[messageID], key)
	return true, nil
}

func (r *fakeMessageRepo) MarkRead(_ context.Context, messageID, userID string) error {
	r.reads = append(r.reads, messageID+"/"+userID)
	return nil
}

func (r *fakeMessageRepo) AddMentions(_ context.Context, messageID string, userIDs []string) error {
	r.mentions[messageID] = userIDs
	return nil
}

type fakeMembershipReader struct {
	members map[string][]string // conversationID -> user IDs
	failing bool
}

func (d *fakeMembershipReader) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	if d.failing {
		return false, errors.New("directory unavailable")
	}
	for _, id := range d.members[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeMembershipReader) MemberIDs(_ context.Context, conversationID string) ([]string, error) {
	if d.failing {
		return nil, errors.New("directory unavailable")
	}
	return append([]string(nil), d.members[conversationID]...), nil
}

type fakeUserReader struct {
	byID map[string]*models.User
}

func (u *fakeUserReader) GetByID(_ context.Context, userID string) (*models.User, error) {
	user, ok := u.byID[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (u *fakeUserReader) FindByUsernames(_ context.Context, usernames []string) ([]models.User, error) {
	var out []models.User
	for _, user := range u.byID {
		for _, name := range usernames {
			if user.Username == name {
				out = append(out, *user)
			}
		}
	}
	return out, nil
}

// newChatFixture: alice and bob share conv-1 holding msg-1; carol sits alone
// in conv-2 holding msg-2.
func newChatFixture() (*ChatService, *fakeMessageRepo, *fakeMembershipReader) {
	msgs := newFakeMessageRepo(
		&models.Message{ID: "msg-1", ConversationID: "conv-1", SenderID: "alice", Content: "hi"},
		&models.Message{ID: "msg-2", ConversationID: "conv-2", SenderID: "carol", Content: "yo"},
	)
	dir := &fakeMembershipReader{members: map[string][]string{
		"conv-1": {"alice", "bob"},
		"conv-2": {"carol"},
	}}
	users := &fakeUserReader{byID: map[string]*models.User{
		"alice": {ID: "alice", Username: "alice"},
		"bob":   {ID: "bob", Username: "bob"},
		"carol": {ID: "carol", Username: "carol"},
	}}
	return NewChatService(msgs, dir, users), msgs, dir
}

func TestReactRequiresConversationMembership(t *testing.T) {
	svc, msgs, _ := newChatFixture()
	ctx := context.Background()

	_, _, err := svc.React(ctx, "msg-1", "mallory", "👍")
	require.ErrorIs(t, err, websocket.ErrNotAMember)
	assert.Empty(t, msgs.reactions["msg-1"], "non-member reaction must not be persisted")

	conversationID, added, err := svc.React(ctx, "msg-1", "bob", "👍")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "conv-1", conversationID)
}

func TestUnreactRequiresConversationMembership(t *testing.T) {
	svc, msgs, _ := newChatFixture()
	ctx := context.Background()

	_, _, err := svc.React(ctx, "msg-1", "alice", "🎉")
	require.NoError(t, err)

	_, _, err = svc.Unreact(ctx, "msg-1", "mallory", "🎉")
	require.ErrorIs(t, err, websocket.ErrNotAMember)
	assert.Len(t, msgs.reactions["msg-1"], 1, "non-member must not remove reactions")

	_, removed, err := svc.Unreact(ctx, "msg-1", "alice", "🎉")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestReactUnknownMessage(t *testing.T) {
	svc, _, _ := newChatFixture()

	_, _, err := svc.React(context.Background(), "msg-404", "alice", "👍")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestReactMembershipCheckFailureIsTransient(t *testing.T) {
	svc, _, dir := newChatFixture()
	dir.failing = true

	_, _, err := svc.React(context.Background(), "msg-1", "alice", "👍")
	assert.ErrorIs(t, err, websocket.ErrTransientDependency)
}

func TestMarkReadRecordsReceiptForMember(t *testing.T) {
	svc, msgs, _ := newChatFixture()

	require.NoError(t, svc.MarkRead(context.Background(), "conv-1", "msg-1", "bob"))
	assert.Equal(t, []string{"msg-1/bob"}, msgs.reads)
}

func TestMarkReadRejectsNonMember(t *testing.T) {
	svc, msgs, _ := newChatFixture()

	err := svc.MarkRead(context.Background(), "conv-2", "msg-2", "bob")
	require.ErrorIs(t, err, websocket.ErrNotAMember)
	assert.Empty(t, msgs.reads)
}

func TestMarkReadRejectsMessageOutsideConversation(t *testing.T) {
	svc, msgs, dir := newChatFixture()
	// Bob belongs to both conversations but names the wrong one for msg-2.
	dir.members["conv-2"] = append(dir.members["conv-2"], "bob")

	err := svc.MarkRead(context.Background(), "conv-1", "msg-2", "bob")
	require.ErrorIs(t, err, ErrMessageNotFound)
	assert.Empty(t, msgs.reads, "cross-conversation receipt must not be recorded")
}
