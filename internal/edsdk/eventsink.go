package edsdk

import "sync"

// eventSink moves object events off the SDK thread.  Handlers call back into
// the SDK, which would deadlock if they ran inside the callback itself.
type eventSink struct {
	mu      sync.Mutex
	closed  bool
	events  chan rawEvent
	done    chan struct{}
	release func(Ref)
	onClose func()
}

type rawEvent struct {
	event ObjectEvent
	ref   Ref
}

func newEventSink(h ObjectEventHandler, release func(Ref)) *eventSink {
	sink := &eventSink{
		events:  make(chan rawEvent, 32),
		done:    make(chan struct{}),
		release: release,
	}
	go func() {
		for {
			select {
			case ev := <-sink.events:
				_ = h(ev.event, ev.ref)
			case <-sink.done:
				return
			}
		}
	}()
	return sink
}

// push queues ev for the handler.  It reports false when the sink is closed
// or full; the caller then still owns ev.ref.
func (s *eventSink) push(ev rawEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// close stops dispatching and releases the refs of events nobody will see.
// It must not be called on the SDK thread.
func (s *eventSink) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
	for {
		select {
		case ev := <-s.events:
			if ev.ref != NilRef {
				s.release(ev.ref)
			}
		default:
			return
		}
	}
}
