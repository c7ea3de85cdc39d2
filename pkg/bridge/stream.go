package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/itinera/pkg/domain"
)

// ErrStreamClosed is returned by Next after the terminal event was consumed.
var ErrStreamClosed = errors.New("stream closed")

// Stream is the consumer side of a submit-and-stream unit.
// It is meant for a single consumer.
type Stream struct {
	events *Queue[domain.Event]
}

// Stream schedules fn on the backend. Every message fn emits becomes a message
// event; when fn returns, a done event (or an error event carrying its error)
// ends the stream.
func (b *Backend) Stream(fn func(ctx context.Context, emit func(domain.Message)) error) *Stream {
	s := &Stream{events: NewQueue[domain.Event]()}

	accepted := b.enqueue(func(ctx context.Context) {
		var err error
		defer func() {
			if p := recover(); p != nil {
				b.logger.Error("streamed work panicked", "panic", p)
				err = fmt.Errorf("%w: %v", ErrPanic, p)
			}
			if err != nil {
				s.events.Push(domain.ErrorEvent(err))
			} else {
				s.events.Push(domain.DoneEvent())
			}
			s.events.Close()
		}()

		err = fn(ctx, func(m domain.Message) {
			s.events.Push(domain.MessageEvent(m))
		})
	})
	if !accepted {
		s.events.Push(domain.ErrorEvent(ErrBackendClosed))
		s.events.Close()
	}
	return s
}

// Next returns the next event in production order, waiting if none is ready.
// Abandoning the stream (ctx ending) does not stop the producer.
func (s *Stream) Next(ctx context.Context) (domain.Event, error) {
	ev, err := s.events.Pop(ctx)
	if errors.Is(err, errQueueClosed) {
		return domain.Event{}, ErrStreamClosed
	}
	return ev, err
}

// Collect drains the stream. It returns every message and, if the stream
// ended with an error event, that error.
func (s *Stream) Collect(ctx context.Context) ([]domain.Message, error) {
	var msgs []domain.Message
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			return msgs, err
		}
		switch ev.Kind {
		case domain.EventMessage:
			msgs = append(msgs, *ev.Message)
		case domain.EventDone:
			return msgs, nil
		case domain.EventError:
			return msgs, ev.Err
		}
	}
}
