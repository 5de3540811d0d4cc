package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAfterCloseReportsDisconnected(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))
	c := newTestClient(hub, "alice")

	require.NoError(t, c.Send(NewTypingEvent("conv-1", "alice", true)))

	c.close()
	assert.ErrorIs(t, c.Send(NewTypingEvent("conv-1", "alice", false)), ErrClientDisconnected)
}

func TestSendRacingDisconnectNeverPanics(t *testing.T) {
	hub := NewHub(newFakeDirectory(nil))

	// Broadcasters race the disconnect path; a delivery that loses the race
	// is dropped, never a panic.
	for i := 0; i < 500; i++ {
		c := newTestClient(hub, "alice")
		evt := NewTypingEvent("conv-1", "alice", true)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 16; j++ {
					c.Send(evt)
				}
			}()
		}
		c.close()
		wg.Wait()

		assert.ErrorIs(t, c.Send(evt), ErrClientDisconnected)
	}
}
