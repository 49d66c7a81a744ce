package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// EventType tags every message on a session's event stream.
type EventType string

const (
	EventSessionState      EventType = "session_state"
	EventPlayerJoined      EventType = "player_joined"
	EventBoardSubmitted    EventType = "board_submitted"
	EventGameStarted       EventType = "game_started"
	EventShotFired         EventType = "shot_fired"
	EventShotResult        EventType = "shot_result"
	EventTurnTimeout       EventType = "turn_timeout"
	EventGameEndProcessing EventType = "game_end_processing"
	EventGameEndCompleted  EventType = "game_end_completed"
	EventDrawRematch       EventType = "draw_rematch"
	EventRematchReady      EventType = "rematch_ready"
	EventPointsAwarded     EventType = "points_awarded"
	EventPointsSummary     EventType = "points_summary"
	EventError             EventType = "error"

	// transport-level
	EventPing    EventType = "ping"
	EventPong    EventType = "pong"
	EventMessage EventType = "message"
)

// Event is one entry on a session's ordered stream. Seq is assigned at
// emit time under the stream lock, so delivery order always matches
// the order the state transitions committed.
type Event struct {
	Seq       int64       `json:"seq"`
	SessionID string      `json:"session_id"`
	Type      EventType   `json:"type"`
	At        time.Time   `json:"at"`
	Data      interface{} `json:"data,omitempty"`
}

// sessionStream buffers the full event history of one session and
// fans out to live subscribers in order.
type sessionStream struct {
	mu     sync.Mutex
	seq    int64
	events []Event
	subs   map[int]chan Event
	nextID int
}

// EventHub owns one ordered stream per session.
type EventHub struct {
	mu      sync.Mutex
	streams map[string]*sessionStream
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{streams: make(map[string]*sessionStream)}
}

func (h *EventHub) stream(sessionID string) *sessionStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[sessionID]
	if !ok {
		st = &sessionStream{subs: make(map[int]chan Event)}
		h.streams[sessionID] = st
	}
	return st
}

// Emit appends an event to the session stream and delivers it to every
// live subscriber. A subscriber that cannot keep up is dropped rather
// than allowed to stall or reorder the stream.
func (h *EventHub) Emit(sessionID string, typ EventType, data interface{}) Event {
	st := h.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	ev := Event{
		Seq:       st.seq,
		SessionID: sessionID,
		Type:      typ,
		At:        time.Now(),
		Data:      data,
	}
	st.events = append(st.events, ev)
	for id, ch := range st.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[Events] Dropping slow subscriber %d on session %s", id, sessionID)
			close(ch)
			delete(st.subs, id)
		}
	}
	return ev
}

// Subscribe returns the session's event history so far plus a channel
// for everything after it, and a cancel func the caller must invoke.
func (h *EventHub) Subscribe(sessionID string) ([]Event, <-chan Event, func()) {
	st := h.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	history := make([]Event, len(st.events))
	copy(history, st.events)
	ch := make(chan Event, 256)
	id := st.nextID
	st.nextID++
	st.subs[id] = ch
	cancel := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if c, ok := st.subs[id]; ok {
			close(c)
			delete(st.subs, id)
		}
	}
	return history, ch, cancel
}

// History returns a copy of everything emitted on the session so far.
func (h *EventHub) History(sessionID string) []Event {
	st := h.stream(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Event, len(st.events))
	copy(out, st.events)
	return out
}

// Drop closes every subscriber and forgets the stream. Called by the
// registry when it destroys a session.
func (h *EventHub) Drop(sessionID string) {
	h.mu.Lock()
	st, ok := h.streams[sessionID]
	if ok {
		delete(h.streams, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, ch := range st.subs {
		close(ch)
		delete(st.subs, id)
	}
}

// StreamSessionEvents streams a session's events over SSE: full history
// first (ordering guarantee for late subscribers), then live events,
// with periodic pings so intermediaries keep the connection open.
func (h *EventHub) StreamSessionEvents(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	history, live, cancel := h.Subscribe(sessionID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		writeEvent := func(ev Event) bool {
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[Events] Marshal error on session %s: %v", sessionID, err)
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			return w.Flush() == nil
		}

		for _, ev := range history {
			if !writeEvent(ev) {
				return
			}
		}

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				if !writeEvent(ev) {
					return
				}
			case <-ticker.C:
				fmt.Fprintf(w, "event: %s\ndata: {}\n\n", EventPing)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
