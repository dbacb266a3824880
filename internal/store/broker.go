package store

import (
	"log"
	"sync"

	"drinkLogAPI/internal/drink"
)

const subscriptionBuffer = 256

// Subscription delivers confirmed changes for one owner. The channel is
// closed when the subscription is closed or falls too far behind; the
// consumer should then re-fetch and subscribe again.
type Subscription struct {
	OwnerID string

	events chan drink.Event
	broker *Broker
	once   sync.Once
}

func (s *Subscription) Events() <-chan drink.Event {
	return s.events
}

func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Broker fans events out to per-owner subscribers without blocking the
// publisher.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

func (b *Broker) Subscribe(ownerID string) *Subscription {
	sub := &Subscription{
		OwnerID: ownerID,
		events:  make(chan drink.Event, subscriptionBuffer),
		broker:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[*Subscription]struct{})
	}
	b.subs[ownerID][sub] = struct{}{}
	return sub
}

func (b *Broker) Publish(ev drink.Event) {
	var slow []*Subscription

	b.mu.RLock()
	for sub := range b.subs[ev.UserID] {
		select {
		case sub.events <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		log.Printf("Broker: subscriber for %s is full, dropping it", ev.UserID)
		b.remove(sub)
	}
}

func (b *Broker) PublishAll(evs []drink.Event) {
	for _, ev := range evs {
		b.Publish(ev)
	}
}

// Subscribers reports how many live subscriptions ownerID has.
func (b *Broker) Subscribers(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ownerID])
}

// CloseAll ends every subscription.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	all := b.subs
	b.subs = make(map[string]map[*Subscription]struct{})
	b.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			sub.once.Do(func() { close(sub.events) })
		}
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[sub.OwnerID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.OwnerID)
		}
	}
	b.mu.Unlock()

	sub.once.Do(func() { close(sub.events) })
}
