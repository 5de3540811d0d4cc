package websocket

import (
	"hash/fnv"
	"sort"
	"sync"
)

const callShardCount = 16

// CallManager owns the per-conversation call sessions. A conversation has at
// most one session at a time and moves NoCall -> Active -> NoCall: the first
// start or join creates the session, and it is discarded when the last
// participant leaves or an explicit end fires. Participant sets are mutated
// only through the four lifecycle operations plus the implicit drop on a
// user's last disconnect; nothing here is persisted.
type CallManager struct {
	shards [callShardCount]callShard

	// Reverse index of active call participation, guarded independently of
	// the session shards so DropUser never nests locks.
	indexMu sync.Mutex
	byUser  map[string]map[string]struct{}
}

type callShard struct {
	mu       sync.RWMutex
	sessions map[string]*callSession
}

type callSession struct {
	participants map[string]struct{}
}

func NewCallManager() *CallManager {
	m := &CallManager{byUser: make(map[string]map[string]struct{})}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*callSession)
	}
	return m
}

func (m *CallManager) shard(conversationID string) *callShard {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &m.shards[h.Sum32()%callShardCount]
}

func (m *CallManager) index(userID, conversationID string) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	convs := m.byUser[userID]
	if convs == nil {
		convs = make(map[string]struct{})
		m.byUser[userID] = convs
	}
	convs[conversationID] = struct{}{}
}

func (m *CallManager) unindex(userID, conversationID string) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	if convs := m.byUser[userID]; convs != nil {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(m.byUser, userID)
		}
	}
}

// Start transitions a conversation NoCall -> Active with the caller as first
// participant. Starting an already-active call changes nothing; the caller
// still gets the lifecycle broadcast so duplicate starts stay idempotent at
// the protocol level.
func (m *CallManager) Start(conversationID, callerID string) (started bool) {
	s := m.shard(conversationID)

	s.mu.Lock()
	if _, active := s.sessions[conversationID]; !active {
		s.sessions[conversationID] = &callSession{
			participants: map[string]struct{}{callerID: {}},
		}
		started = true
	}
	s.mu.Unlock()

	if started {
		m.index(callerID, conversationID)
	}
	return started
}

// Join adds a user to the conversation's call, creating the session if the
// call is not active yet. Adding a present participant is a no-op.
func (m *CallManager) Join(conversationID, userID string) {
	s := m.shard(conversationID)

	s.mu.Lock()
	sess, active := s.sessions[conversationID]
	if !active {
		sess = &callSession{participants: make(map[string]struct{})}
		s.sessions[conversationID] = sess
	}
	sess.participants[userID] = struct{}{}
	s.mu.Unlock()

	m.index(userID, conversationID)
}

// Leave removes a user from the conversation's call. When the participant set
// becomes empty the session transitions back to NoCall. Leaving a call the
// user is not in is a no-op.
func (m *CallManager) Leave(conversationID, userID string) (removed, ended bool) {
	s := m.shard(conversationID)

	s.mu.Lock()
	if sess, active := s.sessions[conversationID]; active {
		if _, ok := sess.participants[userID]; ok {
			delete(sess.participants, userID)
			removed = true
			if len(sess.participants) == 0 {
				delete(s.sessions, conversationID)
				ended = true
			}
		}
	}
	s.mu.Unlock()

	if removed {
		m.unindex(userID, conversationID)
	}
	return removed, ended
}

// End clears the conversation's call unconditionally, a hang-up for everyone.
func (m *CallManager) End(conversationID string) {
	s := m.shard(conversationID)

	s.mu.Lock()
	sess, active := s.sessions[conversationID]
	delete(s.sessions, conversationID)
	s.mu.Unlock()

	if active {
		for userID := range sess.participants {
			m.unindex(userID, conversationID)
		}
	}
}

// Active reports whether a call session exists for the conversation.
func (m *CallManager) Active(conversationID string) bool {
	s := m.shard(conversationID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, active := s.sessions[conversationID]
	return active
}

// Participants returns a consistent snapshot of the call's participant set,
// sorted for stable display.
func (m *CallManager) Participants(conversationID string) []string {
	s := m.shard(conversationID)

	s.mu.RLock()
	sess, active := s.sessions[conversationID]
	var out []string
	if active {
		out = make([]string, 0, len(sess.participants))
		for userID := range sess.participants {
			out = append(out, userID)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// DropUser removes a user from every call they participate in, treated as an
// implicit leave when the user's last connection goes away. Returns the
// affected conversation IDs so the hub can broadcast call/leave for each.
func (m *CallManager) DropUser(userID string) []string {
	m.indexMu.Lock()
	convs := make([]string, 0, len(m.byUser[userID]))
	for conversationID := range m.byUser[userID] {
		convs = append(convs, conversationID)
	}
	m.indexMu.Unlock()

	left := convs[:0]
	for _, conversationID := range convs {
		if removed, _ := m.Leave(conversationID, userID); removed {
			left = append(left, conversationID)
		}
	}
	return left
}
