// Package chat provides the in-process message bus that decouples front
// doors (WhatsApp, …) from whatever consumes inbound messages and produces
// outbound ones.
package chat

import (
	"context"
	"sync"
	"time"
)

// Inbound is a message received by a front door and handed to the hub.
type Inbound struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// Outbound is a message to be dispatched back out through whichever front
// door owns Channel/ChatID.
type Outbound struct {
	Channel string
	ChatID  string
	Content string
}

// Hub is the shared bus: front doors push received messages onto In and
// read their own outbound queue (obtained via Subscribe); anything that
// wants to reply pushes onto Out, and the router fans each Outbound out to
// the subscriber registered for its Channel.
type Hub struct {
	In  chan Inbound
	Out chan Outbound

	mu          sync.Mutex
	subscribers map[string]chan Outbound
	bufSize     int
}

// NewHub creates a Hub whose In/Out channels and per-channel subscriber
// queues are all buffered to bufSize.
func NewHub(bufSize int) *Hub {
	return &Hub{
		In:          make(chan Inbound, bufSize),
		Out:         make(chan Outbound, bufSize),
		subscribers: make(map[string]chan Outbound),
		bufSize:     bufSize,
	}
}

// Subscribe registers name (a channel identifier such as "whatsapp") and
// returns the queue the router will deliver its Outbound messages to. The
// router looks subscribers up per message, so a subscription made after
// StartRouter is seen from then on; earlier messages for it were dropped.
func (h *Hub) Subscribe(name string) <-chan Outbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[name]; ok {
		return ch
	}
	ch := make(chan Outbound, h.bufSize)
	h.subscribers[name] = ch
	return ch
}

// StartRouter launches the background goroutine that fans Out onto each
// subscriber's queue by Outbound.Channel. Messages addressed to a channel
// with no subscriber are dropped. Stops when ctx is done.
func (h *Hub) StartRouter(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-h.Out:
				h.mu.Lock()
				sub, ok := h.subscribers[msg.Channel]
				h.mu.Unlock()
				if !ok {
					continue
				}
				select {
				case sub <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}
