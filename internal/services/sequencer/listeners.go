package sequencer

import (
	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/lucsky/cuid"
)

// Listener receives every emitted RenderFrame, in emission order. A
// listener must not call back into the Sequencer synchronously — doing so
// would re-enter the lock held during notification (spec §5: inbound
// commands are marshalled onto the same logical executor, never invoked
// directly from within a frame callback).
type Listener func(model.RenderFrame)

// Unsubscribe removes a previously registered listener.
type Unsubscribe func()

// Subscribe registers listener and returns a handle to remove it. Replaces
// the teacher's channel-based pubsub (internal/services/pubsub), which
// silently dropped messages on a full buffer — here delivery is a plain
// ordered, synchronous callback slice, so every frame reaches every
// listener in emission order with no drops (spec §5).
func (s *Sequencer) Subscribe(listener Listener) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := cuid.New()
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: listener})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

type listenerEntry struct {
	id string
	fn Listener
}

// notifyLocked invokes every listener in registration order. Must be
// called while s.mu is held, so concurrent emitters can never interleave.
func (s *Sequencer) notifyLocked(frame model.RenderFrame) {
	for _, e := range s.listeners {
		e.fn(frame)
	}
}
