package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubOrderingAndReplay(t *testing.T) {
	hub := NewEventHub()

	hub.Emit("s1", EventPlayerJoined, PlayerEventData{Player: "alice"})
	hub.Emit("s1", EventPlayerJoined, PlayerEventData{Player: "bob"})

	// A late subscriber replays the full history in order.
	history, live, cancel := hub.Subscribe("s1")
	defer cancel()
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, int64(2), history[1].Seq)

	hub.Emit("s1", EventGameStarted, GameStartedData{StartingPlayer: "alice"})
	ev := <-live
	assert.Equal(t, EventGameStarted, ev.Type)
	assert.Equal(t, int64(3), ev.Seq)
}

func TestEventHubIsolatesSessions(t *testing.T) {
	hub := NewEventHub()

	hub.Emit("s1", EventPlayerJoined, PlayerEventData{Player: "alice"})
	hub.Emit("s2", EventPlayerJoined, PlayerEventData{Player: "carol"})

	assert.Len(t, hub.History("s1"), 1)
	assert.Len(t, hub.History("s2"), 1)
	assert.Equal(t, int64(1), hub.History("s2")[0].Seq)
}

func TestEventHubDrop(t *testing.T) {
	hub := NewEventHub()
	hub.Emit("s1", EventPlayerJoined, PlayerEventData{Player: "alice"})
	hub.Drop("s1")
	assert.Empty(t, hub.History("s1"))
}
