// Package notify turns inbound realtime events into operator notifications.
//
// A Store keeps a bounded, newest-first list. Bind subscribes a Store to a
// realtime dispatcher using Rules to render each event type.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lantern-c2/lantern/internal/realtime"
)

// Notification is one rendered event.
type Notification struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Level      Level     `json:"level"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"receivedAt"`
	Read       bool      `json:"read"`
}

// Store holds notifications newest first, dropping the oldest past its limit.
type Store struct {
	mu       sync.Mutex
	limit    int
	items    []Notification
	watchers map[int]func(Notification)
	nextID   int
}

// NewStore creates a store holding at most limit notifications. A limit
// below one keeps a single notification.
func NewStore(limit int) *Store {
	if limit < 1 {
		limit = 1
	}

	return &Store{
		limit:    limit,
		watchers: make(map[int]func(Notification)),
	}
}

// Add records n and notifies watchers. Watchers run on the caller's
// goroutine after the store lock is released.
func (s *Store) Add(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	s.mu.Lock()

	s.items = append([]Notification{n}, s.items...)
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}

	watchers := make([]func(Notification), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}

	s.mu.Unlock()

	for _, fn := range watchers {
		fn(n)
	}
}

// List returns a copy of the notifications, newest first.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.items))
	copy(out, s.items)

	return out
}

// Unread counts notifications not yet marked read.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, item := range s.items {
		if !item.Read {
			n++
		}
	}

	return n
}

// MarkAllRead marks every stored notification read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].Read = true
	}
}

// Clear removes every notification.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}

// Watch registers fn for each added notification. The returned function
// removes it and is safe to call more than once.
func (s *Store) Watch(fn func(Notification)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.watchers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.watchers, id)
	}
}

// Render builds the notification for env. It reports false when no
// enabled rule covers the event type.
func (r Rules) Render(env realtime.Envelope, now time.Time) (Notification, bool) {
	rule, ok := r[env.Type]
	if !ok || rule.Disabled {
		return Notification{}, false
	}

	fields := payloadFields(env.Payload)

	return Notification{
		ID:         uuid.NewString(),
		Type:       env.Type,
		Level:      rule.Level,
		Title:      render(rule.Title, fields),
		Message:    render(rule.Message, fields),
		ReceivedAt: now,
	}, true
}

// Bind subscribes store to every enabled rule's event type. The returned
// function removes all of those subscriptions.
func Bind(sub realtime.Subscriber, store *Store, rules Rules, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}

	var unsubs []realtime.Unsubscribe

	for _, msgType := range rules.Types() {
		unsubs = append(unsubs, sub.Subscribe(msgType, func(env realtime.Envelope) error {
			if n, ok := rules.Render(env, now()); ok {
				store.Add(n)
			}

			return nil
		}))
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
