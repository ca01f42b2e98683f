package analysis

import "sync"

// Watch holds a value and hands the latest one to every subscriber. Slow
// subscribers skip intermediate values but always see the most recent.
type Watch[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]chan T
	next  int
	equal func(a, b T) bool
}

// NewWatch creates a watch holding initial. If equal is non-nil, Set ignores
// values equal to the current one.
func NewWatch[T any](initial T, equal func(a, b T) bool) *Watch[T] {
	return &Watch[T]{value: initial, subs: make(map[int]chan T), equal: equal}
}

// Get returns the current value.
func (w *Watch[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Set stores v and notifies subscribers. It reports whether v was stored.
func (w *Watch[T]) Set(v T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.equal != nil && w.equal(w.value, v) {
		return false
	}
	w.value = v
	for _, ch := range w.subs {
		offer(ch, v)
	}
	return true
}

// Subscribe returns a channel that receives the current value immediately
// and then every change. Call cancel to unsubscribe; it closes the channel.
func (w *Watch[T]) Subscribe() (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	ch := make(chan T, 1)
	ch <- w.value
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.subs, id)
			close(ch)
		})
	}
}

// offer replaces any unread value in ch with v. Callers hold the watch lock,
// so ch has a single writer.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
