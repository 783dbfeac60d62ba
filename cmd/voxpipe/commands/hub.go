package commands

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// subscriberDepth is the number of blocks buffered per stream subscriber.
const subscriberDepth = 8

// hub fans recognizer blocks out to stream subscribers. A subscriber that
// falls behind loses blocks.
type hub struct {
	clients prometheus.Gauge

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch      chan []byte
	dropped uint64
}

func newHub(clients prometheus.Gauge) *hub {
	return &hub{clients: clients, subs: make(map[*subscriber]struct{})}
}

// subscribe registers a subscriber. It returns nil once the hub is closed.
func (h *hub) subscribe() *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	s := &subscriber{ch: make(chan []byte, subscriberDepth)}
	h.subs[s] = struct{}{}
	h.clients.Set(float64(len(h.subs)))
	return s
}

// unsubscribe removes s and returns the number of blocks it lost.
func (h *hub) unsubscribe(s *subscriber) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
		h.clients.Set(float64(len(h.subs)))
	}
	return s.dropped
}

// publish sends block as little-endian PCM to every subscriber.
func (h *hub) publish(block []int16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	msg := make([]byte, 2*len(block))
	pcm.PutInt16s(msg, block)
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			s.dropped++
		}
	}
}

// len returns the number of subscribers.
func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// close ends every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
	h.clients.Set(0)
}
