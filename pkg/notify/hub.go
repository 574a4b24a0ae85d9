// Package notify fans state snapshots out to subscribers keyed by session.
package notify

import "sync"

// Hub delivers the latest snapshot to every subscriber of a key. A slow subscriber
// only ever misses intermediate snapshots, never the most recent one.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan T
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[string]map[int]chan T)}
}

// Subscribe returns a channel of snapshots for key and a cancel func that closes it.
func (h *Hub[T]) Subscribe(key string) (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan T, 1)
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]chan T)
	}
	h.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish never blocks: a pending undelivered snapshot is replaced by v.
func (h *Hub[T]) Publish(key string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[key] {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (h *Hub[T]) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}
