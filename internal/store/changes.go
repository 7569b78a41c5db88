package store

import "sync"

type subscription struct {
	tables map[string]struct{}
	ch     chan struct{}
}

// changeHub fans table-change signals out to watchers. Signals coalesce: a watcher
// that has not drained its channel sees one pending signal however many commits happened.
type changeHub struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]*subscription)}
}

func (h *changeHub) subscribe(tables []string) (<-chan struct{}, func()) {
	sub := &subscription{
		tables: make(map[string]struct{}, len(tables)),
		ch:     make(chan struct{}, 1),
	}
	for _, t := range tables {
		sub.tables[t] = struct{}{}
	}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *changeHub) publish(tables ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if !sub.matches(tables) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func (s *subscription) matches(tables []string) bool {
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}
