package engine

import "sync"

// Subscribe registers a snapshot listener. The latest snapshot, if any, is
// delivered immediately. Slow consumers never block the engine: the channel
// holds one entry and the oldest snapshot is dropped to make room.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	sub := newSubscriber()

	e.mu.Lock()
	e.subscribers[sub] = struct{}{}
	snapshot, ok := e.latest, e.hasLatest
	e.mu.Unlock()

	if ok {
		sub.send(snapshot)
	}

	unsubscribe := func() {
		e.mu.Lock()
		delete(e.subscribers, sub)
		e.mu.Unlock()
		sub.close()
	}
	return sub.channel(), unsubscribe
}

type subscriber struct {
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Snapshot, 1)}
}

func (s *subscriber) channel() <-chan Snapshot {
	return s.ch
}

func (s *subscriber) send(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snapshot:
		return
	default:
		// Drop oldest to make room for the new snapshot.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snapshot:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
