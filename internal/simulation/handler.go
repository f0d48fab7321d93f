package simulation

import (
	"fmt"

	"github.com/cxd309/railsim/internal/logging"
)

// Handler reacts to simulation events. A returned error or panic is logged
// and does not stop other handlers or the tick.
type Handler interface {
	Handle(e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(e Event) error

func (f HandlerFunc) Handle(e Event) error { return f(e) }

// dispatch delivers every event to every handler in registration order.
func (s *Simulation) dispatch(events []Event) {
	for _, e := range events {
		for i, h := range s.handlers {
			if err := safeHandle(h, e); err != nil {
				s.logger.Error("event handler failed",
					logging.Int("handler", i),
					logging.String("event", e.Kind()),
					logging.Tick(e.Meta().Tick),
					logging.Error(err))
			}
		}
	}
}

func safeHandle(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailure, r)
		}
	}()
	if herr := h.Handle(e); herr != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFailure, herr)
	}
	return nil
}
