package websocket

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
)

const groupShardCount = 32

// GroupManager keeps the per-conversation broadcast groups: the set of
// connections currently subscribed to each conversation. Groups are sharded
// by conversation ID; each group additionally carries an order mutex that
// serializes fan-out so events for one conversation reach every subscriber in
// dispatch order without blocking unrelated conversations.
type GroupManager struct {
	shards    [groupShardCount]groupShard
	directory MembershipDirectory
}

type groupShard struct {
	mu     sync.RWMutex
	groups map[string]*group
}

type group struct {
	order sync.Mutex
	mu    sync.RWMutex
	conns map[string]*Client
}

func NewGroupManager(directory MembershipDirectory) *GroupManager {
	g := &GroupManager{directory: directory}
	for i := range g.shards {
		g.shards[i].groups = make(map[string]*group)
	}
	return g
}

func (g *GroupManager) shard(conversationID string) *groupShard {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &g.shards[h.Sum32()%groupShardCount]
}

func (g *GroupManager) get(conversationID string) *group {
	s := g.shard(conversationID)
	s.mu.RLock()
	grp := s.groups[conversationID]
	s.mu.RUnlock()
	return grp
}

func (g *GroupManager) getOrCreate(conversationID string) *group {
	s := g.shard(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()

	grp, ok := s.groups[conversationID]
	if !ok {
		grp = &group{conns: make(map[string]*Client)}
		s.groups[conversationID] = grp
	}
	return grp
}

// Join subscribes a connection to a conversation's group after verifying the
// user's membership with the directory. Joining twice is a no-op.
func (g *GroupManager) Join(ctx context.Context, c *Client, conversationID string) error {
	if c.inGroup(conversationID) {
		return nil
	}

	ok, err := g.directory.IsMember(ctx, conversationID, c.userID)
	if err != nil {
		return fmt.Errorf("%w: membership check for %s: %v", ErrTransientDependency, conversationID, err)
	}
	if !ok {
		return ErrNotAMember
	}

	grp := g.getOrCreate(conversationID)
	grp.mu.Lock()
	grp.conns[c.id] = c
	grp.mu.Unlock()

	c.addGroup(conversationID)
	return nil
}

// Leave unsubscribes a connection from a conversation's group. Leaving a
// group the connection is not in is a no-op.
func (g *GroupManager) Leave(c *Client, conversationID string) {
	grp := g.get(conversationID)
	if grp != nil {
		grp.mu.Lock()
		delete(grp.conns, c.id)
		empty := len(grp.conns) == 0
		grp.mu.Unlock()

		if empty {
			g.prune(conversationID)
		}
	}
	c.removeGroup(conversationID)
}

// prune drops a group entry once it has no subscribers left.
func (g *GroupManager) prune(conversationID string) {
	s := g.shard(conversationID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if grp, ok := s.groups[conversationID]; ok {
		grp.mu.RLock()
		empty := len(grp.conns) == 0
		grp.mu.RUnlock()
		if empty {
			delete(s.groups, conversationID)
		}
	}
}

// Resync converges a connection's joined-group set onto the authoritative
// conversation list: missing groups are joined, superfluous ones are left.
// Transient join failures are retried once before being surfaced; the
// returned error is a non-fatal warning, never a reason to drop the
// connection. Resync is idempotent and safe to call after every reconnect.
func (g *GroupManager) Resync(ctx context.Context, c *Client, conversations []string) error {
	want := make(map[string]struct{}, len(conversations))
	for _, id := range conversations {
		want[id] = struct{}{}
	}

	var warnings []error
	for id := range want {
		err := g.Join(ctx, c, id)
		if errors.Is(err, ErrTransientDependency) {
			slog.Warn("Retrying group join after transient failure",
				"clientID", c.id, "conversationID", id, "error", err)
			err = g.Join(ctx, c, id)
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("join %s: %w", id, err))
		}
	}

	for _, id := range c.Groups() {
		if _, ok := want[id]; !ok {
			g.Leave(c, id)
		}
	}

	return errors.Join(warnings...)
}

// RemoveAll unsubscribes a connection from every group it joined and returns
// the conversation IDs it was removed from. Called on every disconnect path.
func (g *GroupManager) RemoveAll(c *Client) []string {
	joined := c.Groups()
	for _, id := range joined {
		g.Leave(c, id)
	}
	return joined
}

// Snapshot returns the current subscribers of a conversation's group without
// holding the group lock during delivery.
func (g *GroupManager) Snapshot(conversationID string) []*Client {
	grp := g.get(conversationID)
	if grp == nil {
		return nil
	}

	grp.mu.RLock()
	defer grp.mu.RUnlock()

	conns := make([]*Client, 0, len(grp.conns))
	for _, c := range grp.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast delivers an event to every subscriber of a conversation, exactly
// once per connection, in dispatch order for that conversation. The
// subscriber set is snapshotted under a read lock and delivery happens into
// each connection's buffered send queue, so no socket I/O runs under any
// membership lock.
func (g *GroupManager) Broadcast(conversationID string, evt *Event) int {
	grp := g.get(conversationID)
	if grp == nil {
		return 0
	}

	grp.order.Lock()
	defer grp.order.Unlock()

	conns := func() []*Client {
		grp.mu.RLock()
		defer grp.mu.RUnlock()
		snapshot := make([]*Client, 0, len(grp.conns))
		for _, c := range grp.conns {
			snapshot = append(snapshot, c)
		}
		return snapshot
	}()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(evt); err != nil {
			slog.Debug("Dropping event for unreachable client",
				"clientID", c.id, "conversationID", conversationID, "type", evt.Type)
			continue
		}
		delivered++
	}
	return delivered
}
