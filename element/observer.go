package element

// Observer receives a callback for every signal the element handles. It is
// how hosts attach metrics without the element knowing about them.
type Observer interface {
	BufferHandled(element string, ret FlowReturn)
	EventHandled(element string, from PadDirection, ev *Event, ok bool)
	QueryHandled(element string, from PadDirection, q *Query, ok bool)
	PanicRecovered(element, site string)
	StateChanged(element string, transition StateChange, err error)
}

type nopObserver struct{}

func (nopObserver) BufferHandled(string, FlowReturn)                {}
func (nopObserver) EventHandled(string, PadDirection, *Event, bool) {}
func (nopObserver) QueryHandled(string, PadDirection, *Query, bool) {}
func (nopObserver) PanicRecovered(string, string)                   {}
func (nopObserver) StateChanged(string, StateChange, error)         {}
