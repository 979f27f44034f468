package api

import (
	"sync"
)

// SolveEvent is a progress or terminal notification for one solve.
type SolveEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans solve events out to SSE and WebSocket subscribers.
type EventBroker interface {
	Subscribe(solveID string) chan SolveEvent
	Unsubscribe(solveID string, ch chan SolveEvent)
	Publish(solveID string, evt SolveEvent)
}

// Broker is the in-process EventBroker used when no REDIS_URL is set.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SolveEvent]struct{} // solveId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SolveEvent]struct{}{}}
}

func (b *Broker) Subscribe(solveID string) chan SolveEvent {
	ch := make(chan SolveEvent, 8)
	b.mu.Lock()
	if b.subs[solveID] == nil {
		b.subs[solveID] = map[chan SolveEvent]struct{}{}
	}
	b.subs[solveID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(solveID string, ch chan SolveEvent) {
	b.mu.Lock()
	if m := b.subs[solveID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, solveID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(solveID string, evt SolveEvent) {
	b.mu.Lock()
	m := b.subs[solveID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
