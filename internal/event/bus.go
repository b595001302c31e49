package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/horizon/internal/logging"
)

// Handler receives an update published on a Bus.
type Handler func(Update)

type subscription struct {
	id      string
	types   []UpdateType // empty matches every type
	handler Handler
}

func (s subscription) matches(t UpdateType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Bus fans updates out to subscribers synchronously, in registration order.
// It lets observers such as metrics and loggers watch several concurrent
// runs without holding their streams.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
	logger *logging.Logger
}

// NewBus creates an empty bus. A nil logger discards handler panics' reports.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{logger: logger}
}

// Subscribe registers handler for the given update types, or for every type
// when none are given. It returns an ID for Unsubscribe.
func (b *Bus) Subscribe(handler Handler, updateTypes ...UpdateType) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subs = append(b.subs, subscription{
		id:      id,
		types:   slices.Clone(updateTypes),
		handler: handler,
	})
	return id
}

// Unsubscribe removes a subscription. It reports whether id was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish calls every matching handler. A panicking handler is logged and
// skipped; the remaining handlers still run.
func (b *Bus) Publish(u Update) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.matches(u.Type) {
			b.safeCall(s, u)
		}
	}
}

func (b *Bus) safeCall(s subscription, u Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscription", s.id,
				"type", string(u.Type),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.handler(u)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
