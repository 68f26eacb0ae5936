package hub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultQueueSize bounds how many undelivered events a single viewer may
// hold before further events are dropped for it.
const DefaultQueueSize = 64

// Viewer is a live dashboard connection.
type Viewer interface {
	Write(message []byte) error
	Close() error
	// Done is closed once the transport has gone away.
	Done() <-chan struct{}
}

// Subscription is one viewer's membership. Viewers scoped to an owner only
// receive that owner's events; an empty owner receives everything.
type Subscription struct {
	viewer Viewer
	owner  string
	queue  chan []byte
	stop   chan struct{}
	once   sync.Once
}

func (s *Subscription) closed() bool {
	select {
	case <-s.stop:
		return true
	case <-s.viewer.Done():
		return true
	default:
		return false
	}
}

func (s *Subscription) pump(h *Hub) {
	defer h.Unsubscribe(s)
	for {
		select {
		case <-s.stop:
			return
		case <-s.viewer.Done():
			return
		case msg := <-s.queue:
			if err := s.viewer.Write(msg); err != nil {
				log.Debug().Err(err).Str("component", "hub").Msg("viewer write failed")
				_ = s.viewer.Close()
				return
			}
		}
	}
}

type Hub struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	queueSize int
}

func New() *Hub {
	return NewWithQueueSize(DefaultQueueSize)
}

func NewWithQueueSize(size int) *Hub {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Hub{subs: make(map[*Subscription]struct{}), queueSize: size}
}

func (h *Hub) Subscribe(v Viewer, owner string) *Subscription {
	sub := &Subscription{
		viewer: v,
		owner:  owner,
		queue:  make(chan []byte, h.queueSize),
		stop:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go sub.pump(h)
	return sub
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.stop) })
}

// Broadcast queues message for every viewer interested in owner and returns
// how many accepted it. Closed viewers and viewers with a full queue are
// skipped for this message. It never waits on a viewer.
func (h *Hub) Broadcast(owner string, message []byte) int {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		if s.owner == "" || s.owner == owner {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.closed() {
			continue
		}
		select {
		case s.queue <- message:
			delivered++
		default:
			log.Warn().Str("component", "hub").Msg("viewer queue full, dropping event")
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
