package element

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrPanicked wraps a value recovered from a pad function.
var ErrPanicked = errors.New("pad function panicked")

// catchPanic resolves parent into the owning element and runs fn on it. A
// panic inside fn is recovered, reported on the element and replaced by the
// fallback result. Every pad function the element installs goes through it.
func catchPanic[T any](parent Object, site string, fallback func() T, fn func(e *Element) T) (ret T) {
	e, ok := parent.(*Element)
	if !ok || e == nil {
		return fallback()
	}
	defer func() {
		if r := recover(); r != nil {
			e.recovered(site, r)
			ret = fallback()
		}
	}()
	return fn(e)
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, ErrPanicked.Error())
	}
	return errors.WithStack(fmt.Errorf("%w: %v", ErrPanicked, r))
}

func setPadFunctions(sinkpad, srcpad *Pad) error {
	return multierr.Combine(
		sinkpad.SetChainFunction(func(pad *Pad, parent Object, buf *Buffer) FlowReturn {
			return catchPanic(parent, "sink-chain",
				func() FlowReturn { return FlowError },
				func(e *Element) FlowReturn { return e.sinkChain(pad, buf) },
			)
		}),
		sinkpad.SetEventFunction(func(pad *Pad, parent Object, ev *Event) bool {
			return catchPanic(parent, "sink-event",
				func() bool { return false },
				func(e *Element) bool { return e.sinkEvent(pad, ev) },
			)
		}),
		sinkpad.SetQueryFunction(func(pad *Pad, parent Object, q *Query) bool {
			return catchPanic(parent, "sink-query",
				func() bool { return false },
				func(e *Element) bool { return e.sinkQuery(pad, q) },
			)
		}),
		srcpad.SetEventFunction(func(pad *Pad, parent Object, ev *Event) bool {
			return catchPanic(parent, "src-event",
				func() bool { return false },
				func(e *Element) bool { return e.srcEvent(pad, ev) },
			)
		}),
		srcpad.SetQueryFunction(func(pad *Pad, parent Object, q *Query) bool {
			return catchPanic(parent, "src-query",
				func() bool { return false },
				func(e *Element) bool { return e.srcQuery(pad, q) },
			)
		}),
	)
}
