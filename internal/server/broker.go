package server

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is the payload streamed to a player's SSE and WebSocket clients.
type Event struct {
	Type          string     `json:"type"`
	LocationID    string     `json:"locationId,omitempty"`
	Stage         string     `json:"stage,omitempty"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`
	Completed     int        `json:"completed,omitempty"`
	HuntComplete  bool       `json:"huntComplete,omitempty"`
}

// Broker is an in-process pub/sub for progression events, keyed by
// player ID so that every open tab and device of a player stays in sync.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

func (b *Broker) Subscribe(playerID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[playerID] == nil {
		b.subs[playerID] = make(map[chan []byte]struct{})
	}
	b.subs[playerID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(playerID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[playerID], ch)
	if len(b.subs[playerID]) == 0 {
		delete(b.subs, playerID)
	}
	b.mu.Unlock()
}

// Publish never blocks; a slow subscriber misses the event and picks up
// the state on its next read.
func (b *Broker) Publish(playerID string, event Event) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs[playerID] {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
}
