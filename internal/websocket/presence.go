package websocket

import (
	"hash/fnv"
	"sync"
	"time"
)

const presenceShardCount = 32

// PresenceRegistry tracks which live connections belong to which user. A user
// is online iff their connection set is non-empty. State is sharded by user ID
// so unrelated users never contend on the same lock; loss of the registry on
// restart is fine because presence re-derives as connections re-establish.
type PresenceRegistry struct {
	shards [presenceShardCount]presenceShard

	// Fired outside the shard lock on the first connection of a user and
	// after the last one goes away.
	onOnline  func(userID string)
	onOffline func(userID string, lastSeen time.Time)
}

type presenceShard struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client
}

func NewPresenceRegistry(onOnline func(string), onOffline func(string, time.Time)) *PresenceRegistry {
	p := &PresenceRegistry{
		onOnline:  onOnline,
		onOffline: onOffline,
	}
	for i := range p.shards {
		p.shards[i].users = make(map[string]map[string]*Client)
	}
	return p
}

func (p *PresenceRegistry) shard(userID string) *presenceShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &p.shards[h.Sum32()%presenceShardCount]
}

// Connect registers a client's connection under its user. Emits the
// came-online signal when this is the user's first live connection.
func (p *PresenceRegistry) Connect(c *Client) {
	s := p.shard(c.userID)

	s.mu.Lock()
	conns := s.users[c.userID]
	first := len(conns) == 0
	if conns == nil {
		conns = make(map[string]*Client)
		s.users[c.userID] = conns
	}
	conns[c.id] = c
	s.mu.Unlock()

	if first && p.onOnline != nil {
		p.onOnline(c.userID)
	}
}

// Disconnect removes a client's connection. Emits the went-offline signal with
// a timestamp when the user's connection set becomes empty.
func (p *PresenceRegistry) Disconnect(c *Client) {
	s := p.shard(c.userID)

	s.mu.Lock()
	conns, ok := s.users[c.userID]
	if ok {
		delete(conns, c.id)
		if len(conns) == 0 {
			delete(s.users, c.userID)
		} else {
			ok = false
		}
	}
	s.mu.Unlock()

	if ok && p.onOffline != nil {
		p.onOffline(c.userID, time.Now().UTC())
	}
}

// IsOnline reports whether the user has at least one live connection.
func (p *PresenceRegistry) IsOnline(userID string) bool {
	s := p.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

// Connections returns a snapshot of the user's live connections, safe to
// iterate without holding any registry lock.
func (p *PresenceRegistry) Connections(userID string) []*Client {
	s := p.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]*Client, 0, len(s.users[userID]))
	for _, c := range s.users[userID] {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of live connections for a user.
func (p *PresenceRegistry) ConnectionCount(userID string) int {
	s := p.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}
