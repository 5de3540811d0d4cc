package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDirectory is an in-memory membership directory with injectable
// transient failures.
type fakeDirectory struct {
	mu       sync.Mutex
	members  map[string][]string // conversationID -> user IDs
	failNext int                 // fail this many upcoming calls
	calls    int
}

func newFakeDirectory(members map[string][]string) *fakeDirectory {
	if members == nil {
		members = make(map[string][]string)
	}
	return &fakeDirectory{members: members}
}

func (d *fakeDirectory) maybeFail() error {
	d.calls++
	if d.failNext > 0 {
		d.failNext--
		return errors.New("directory unavailable")
	}
	return nil
}

func (d *fakeDirectory) IsMember(_ context.Context, conversationID, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return false, err
	}
	for _, id := range d.members[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) MemberIDs(_ context.Context, conversationID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.members[conversationID]...), nil
}

func (d *fakeDirectory) ConversationIDs(_ context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.maybeFail(); err != nil {
		return nil, err
	}
	var out []string
	for conversationID, users := range d.members {
		for _, id := range users {
			if id == userID {
				out = append(out, conversationID)
			}
		}
	}
	return out, nil
}

func (d *fakeDirectory) setFailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// newTestClient builds a client without a network connection; events land in
// its send buffer.
func newTestClient(hub *Hub, userID string) *Client {
	return NewClient(hub, nil, userID)
}

// recvEvent pops the next queued event for a client or fails the test.
func recvEvent(t *testing.T, c *Client) *Event {
	t.Helper()
	select {
	case data := <-c.send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return &evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// recvEvents pops n queued events.
func recvEvents(t *testing.T, c *Client, n int) []*Event {
	t.Helper()
	events := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, recvEvent(t, c))
	}
	return events
}

// noEvent asserts that nothing is queued for a client.
func noEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected event queued: %s", data)
	default:
	}
}
