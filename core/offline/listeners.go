package offline

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Listener is called with the fresh status after every cache mutation.
type Listener func(status SyncStatus)

type listenerRegistry struct {
	mu       sync.Mutex
	nextID   int
	order    []int
	handlers map[int]Listener
}

func (r *listenerRegistry) add(l Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers == nil {
		r.handlers = make(map[int]Listener)
	}
	r.nextID++
	id := r.nextID
	r.order = append(r.order, id)
	r.handlers[id] = l

	var once sync.Once
	return func() { once.Do(func() { r.remove(id) }) }
}

func (r *listenerRegistry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; !ok {
		return
	}
	delete(r.handlers, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// snapshot returns the handlers in registration order.
func (r *listenerRegistry) snapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls := make([]Listener, 0, len(r.order))
	for _, id := range r.order {
		ls = append(ls, r.handlers[id])
	}
	return ls
}

func (r *listenerRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *listenerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.handlers = nil
}

// OnSyncStatusChange registers l and returns the function removing it.
// Removing twice is a no-op.
func (s *Service) OnSyncStatusChange(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	return s.listeners.add(l)
}

// ListenerCount returns the number of registered listeners.
func (s *Service) ListenerCount() int {
	return s.listeners.len()
}

// notify calls every listener once, in order. A panicking listener is logged and skipped.
func (s *Service) notify() {
	ls := s.listeners.snapshot()
	if len(ls) == 0 {
		return
	}
	status := s.GetSyncStatus()
	for _, l := range ls {
		s.invoke(l, status)
	}
}

func (s *Service) invoke(l Listener, status SyncStatus) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			s.logger.Error("sync status listener failed", errors.Wrap(err, "listener panic"))
		}
	}()
	l(status)
}
