package realtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives one published envelope. A returned error is logged and
// does not affect delivery to other handlers.
type Handler func(Envelope) error

// Unsubscribe removes one registration. Calling it again is a no-op.
type Unsubscribe func()

type registration struct {
	id      uint64
	handler Handler
}

// Dispatcher routes envelopes to subscribers by type. It is safe for
// concurrent use and independent of any connection.
type Dispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]registration
	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger uses slog.Default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		subs:   make(map[string][]registration),
		logger: logger,
	}
}

// Subscribe registers handler for msgType, or for every type when msgType is
// Wildcard. Each call creates a distinct registration.
func (d *Dispatcher) Subscribe(msgType string, handler Handler) Unsubscribe {
	if handler == nil {
		return func() {}
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[msgType] = append(d.subs[msgType], registration{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			d.remove(msgType, id)
		})
	}
}

func (d *Dispatcher) remove(msgType string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.subs[msgType]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}

		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)

		if len(next) == 0 {
			delete(d.subs, msgType)
		} else {
			d.subs[msgType] = next
		}

		return
	}
}

// Count returns the number of registrations for msgType.
func (d *Dispatcher) Count(msgType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.subs[msgType])
}

// Publish delivers env synchronously to the handlers registered for its type
// and then to the wildcard handlers, in registration order. Handlers run
// outside the registry lock and may subscribe or unsubscribe.
func (d *Dispatcher) Publish(env Envelope) {
	d.mu.RLock()
	typed := d.subs[env.Type]
	wild := d.subs[Wildcard]
	targets := make([]registration, 0, len(typed)+len(wild))
	targets = append(targets, typed...)

	if env.Type != Wildcard {
		targets = append(targets, wild...)
	}
	d.mu.RUnlock()

	for _, reg := range targets {
		if err := d.invoke(reg.handler, env); err != nil {
			d.logger.Warn("subscriber failed",
				slog.String("type", env.Type),
				slog.Uint64("subscription", reg.id),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Dispatcher) invoke(handler Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return handler(env)
}
