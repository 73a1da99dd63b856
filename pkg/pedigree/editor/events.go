// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package editor

import "sync"

// Event names broadcast to the host.
type Event string

const (
	EventLoadStart  Event = "pedigree:load:start"
	EventLoadFinish Event = "pedigree:load:finish"
	EventGraphClear Event = "pedigree:graph:clear"
	EventNodeRemove Event = "pedigree:node:remove"
)

// Message is a broadcast event. NodeID is set for EventNodeRemove.
type Message struct {
	Event  Event
	NodeID int
}

type subscription struct {
	id int
	fn func(Message)
}

// Bus delivers messages to subscribers synchronously, in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Message)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers m to every current subscriber. Subscribers may subscribe
// or unsubscribe from within their callback.
func (b *Bus) Publish(m Message) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(m)
	}
}
