package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiDeviceOnlineSemantics(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))
	p := NewPresenceRegistry(nil, nil)

	c1 := newTestClient(hub, "alice")
	c2 := newTestClient(hub, "alice")

	assert.False(t, p.IsOnline("alice"))

	p.Connect(c1)
	assert.True(t, p.IsOnline("alice"))

	p.Connect(c2)
	assert.True(t, p.IsOnline("alice"))
	assert.Equal(t, 2, p.ConnectionCount("alice"))

	// Disconnecting one device keeps the user online.
	p.Disconnect(c1)
	assert.True(t, p.IsOnline("alice"))

	p.Disconnect(c2)
	assert.False(t, p.IsOnline("alice"))
	assert.Empty(t, p.Connections("alice"))
}

func TestPresenceSignalsFireOnEdgesOnly(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))

	var mu sync.Mutex
	var online, offline []string
	p := NewPresenceRegistry(
		func(userID string) {
			mu.Lock()
			defer mu.Unlock()
			online = append(online, userID)
		},
		func(userID string, lastSeen time.Time) {
			mu.Lock()
			defer mu.Unlock()
			require.False(t, lastSeen.IsZero())
			offline = append(offline, userID)
		},
	)

	c1 := newTestClient(hub, "bob")
	c2 := newTestClient(hub, "bob")

	p.Connect(c1)
	p.Connect(c2)
	p.Disconnect(c1)
	p.Disconnect(c2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bob"}, online, "came-online fires on first connection only")
	assert.Equal(t, []string{"bob"}, offline, "went-offline fires after last disconnect only")
}

func TestPresenceDisconnectUnknownConnectionIsNoOp(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))
	p := NewPresenceRegistry(nil, func(string, time.Time) {
		t.Fatal("went-offline must not fire for unknown connections")
	})

	p.Disconnect(newTestClient(hub, "carol"))
	assert.False(t, p.IsOnline("carol"))
}

func TestPresenceConcurrentConnectDisconnect(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))
	p := NewPresenceRegistry(nil, nil)

	const users = 16
	const connsPerUser = 8

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		for i := 0; i < connsPerUser; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := newTestClient(hub, userID)
				p.Connect(c)
				p.Disconnect(c)
			}()
		}
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		assert.False(t, p.IsOnline(fmt.Sprintf("user-%d", u)))
	}
}
