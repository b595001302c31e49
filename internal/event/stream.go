package event

import (
	"context"
	"sync"

	"github.com/Iron-Ham/horizon/internal/engine/types"
)

// Stream is the consumer half of a run's update queue. Updates arrive in
// emission order and the channel is closed after the terminal update.
type Stream struct {
	updates chan Update
	done    chan struct{}

	mu     sync.Mutex
	result *types.Result
}

// Emitter is the producer half of a Stream. It must be used from a single
// goroutine.
type Emitter struct {
	ctx    context.Context
	stream *Stream
	bus    *Bus
	once   sync.Once
}

// NewStream creates a connected Stream and Emitter. Sends block until the
// consumer reads or ctx is done, so a producer never outlives an abandoned
// consumer. buffer is the channel capacity.
func NewStream(ctx context.Context, buffer int, bus *Bus) (*Stream, *Emitter) {
	if buffer < 0 {
		buffer = 0
	}
	s := &Stream{
		updates: make(chan Update, buffer),
		done:    make(chan struct{}),
	}
	return s, &Emitter{ctx: ctx, stream: s, bus: bus}
}

// Updates returns the receive-only update channel.
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// Done is closed once the producer has finished.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Result returns the run result. It is nil until the producer finishes.
func (s *Stream) Result() *types.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Drain consumes the remaining updates and returns the final result.
func (s *Stream) Drain() *types.Result {
	for range s.updates {
	}
	<-s.done
	return s.Result()
}

// Emit publishes u to the bus and queues it for the consumer. It returns
// false if the consumer's context ended first.
func (e *Emitter) Emit(u Update) bool {
	if e.bus != nil {
		e.bus.Publish(u)
	}
	select {
	case e.stream.updates <- u:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Close records the result, emits the terminal update carrying it, and
// closes the stream. Calls after the first are no-ops.
func (e *Emitter) Close(terminal Update) {
	e.once.Do(func() {
		e.stream.mu.Lock()
		e.stream.result = terminal.Result
		e.stream.mu.Unlock()

		e.Emit(terminal)
		close(e.stream.updates)
		close(e.stream.done)
	})
}
