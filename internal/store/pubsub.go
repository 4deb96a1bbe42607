package store

import (
	"context"
	"sync"
)

// Message is one payload received on a subscribed channel.
type Message struct {
	Channel string
	Payload string
}

// memSubscription is the in-memory counterpart of a redis.PubSub.
type memSubscription struct {
	channels map[string]bool
	msgChan  chan Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemSubscription(channels []string) *memSubscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}
	return &memSubscription{
		channels: channelMap,
		msgChan:  make(chan Message, 100),
		closeCh:  make(chan struct{}),
	}
}

func (s *memSubscription) Channel() <-chan Message {
	return s.msgChan
}

func (s *memSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.closeCh)
		close(s.msgChan)
	}
	return nil
}

// send delivers msg without blocking; a full buffer drops it.
func (s *memSubscription) send(msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || !s.channels[msg.Channel] {
		return
	}
	select {
	case s.msgChan <- msg:
	default:
	}
}

// PubSubHub fans messages out to in-memory subscriptions when Redis is not
// available.
type PubSubHub struct {
	subscribers map[string][]*memSubscription
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*memSubscription),
	}
}

// Subscribe registers a subscription that lives until ctx is done or it is
// closed.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) *memSubscription {
	sub := newMemSubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}
		h.remove(sub, channels)
	}()

	return sub
}

func (h *PubSubHub) remove(sub *memSubscription, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range channels {
		subs := h.subscribers[channel]
		for i, s := range subs {
			if s == sub {
				h.subscribers[channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[channel]) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

// Publish sends payload to all subscribers of channel and returns how many
// there were.
func (h *PubSubHub) Publish(channel, payload string) int {
	h.mu.RLock()
	subs := make([]*memSubscription, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.send(msg)
	}
	return len(subs)
}

// Subscribers returns the number of live subscriptions on channel.
func (h *PubSubHub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
