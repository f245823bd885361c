package element

import (
	"sync"

	"go.uber.org/multierr"
)

// Harness plays the neighbours of a single element: a source pad linked to
// the element's sink and a sink pad linked to the element's src. Everything
// the element emits is recorded; queries reaching the harness are answered
// by the configured functions.
type Harness struct {
	Element *Element

	srcpad  *Pad
	sinkpad *Pad

	mu              sync.Mutex
	buffers         []*Buffer
	events          []*Event
	upstreamEvents  []*Event
	chainReturn     FlowReturn
	upstreamQuery   func(q *Query) bool
	downstreamQuery func(q *Query) bool
}

var _ Object = (*Harness)(nil)

// NewHarness links a new harness around e.
func NewHarness(e *Element) (h *Harness, err error) {
	h = &Harness{Element: e, chainReturn: FlowOK}
	h.srcpad = NewPadFromTemplate(NewPadTemplate("src", PadDirectionSrc, PadPresenceAlways, e.SinkPad().Caps()), "harness-src")
	h.sinkpad = NewPadFromTemplate(NewPadTemplate("sink", PadDirectionSink, PadPresenceAlways, e.SrcPad().Caps()), "harness-sink")

	err = multierr.Combine(
		h.sinkpad.SetChainFunction(func(_ *Pad, _ Object, buf *Buffer) FlowReturn {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.chainReturn.IsSuccess() {
				h.buffers = append(h.buffers, buf)
			}
			return h.chainReturn
		}),
		h.sinkpad.SetEventFunction(func(_ *Pad, _ Object, ev *Event) bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, ev)
			return true
		}),
		h.sinkpad.SetQueryFunction(func(_ *Pad, _ Object, q *Query) bool {
			h.mu.Lock()
			fn := h.downstreamQuery
			h.mu.Unlock()
			return fn != nil && fn(q)
		}),
		h.srcpad.SetEventFunction(func(_ *Pad, _ Object, ev *Event) bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.upstreamEvents = append(h.upstreamEvents, ev)
			return true
		}),
		h.srcpad.SetQueryFunction(func(_ *Pad, _ Object, q *Query) bool {
			h.mu.Lock()
			fn := h.upstreamQuery
			h.mu.Unlock()
			return fn != nil && fn(q)
		}),
	)
	if err != nil {
		return nil, err
	}
	if err = multierr.Combine(h.srcpad.setParent(h), h.sinkpad.setParent(h)); err != nil {
		return nil, err
	}
	if err = multierr.Combine(h.srcpad.Link(e.SinkPad()), e.SrcPad().Link(h.sinkpad)); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Harness) Name() string {
	return "harness:" + h.Element.Name()
}

// Play activates the harness pads and brings the element to Playing.
func (h *Harness) Play() error {
	h.srcpad.SetActive(true)
	h.sinkpad.SetActive(true)
	return h.Element.SetState(StatePlaying)
}

// Teardown brings the element back to Null and unlinks the harness.
func (h *Harness) Teardown() error {
	err := h.Element.SetState(StateNull)
	h.srcpad.SetActive(false)
	h.sinkpad.SetActive(false)
	h.srcpad.Unlink()
	h.Element.SrcPad().Unlink()
	return err
}

// Push sends buf into the element's sink pad.
func (h *Harness) Push(buf *Buffer) FlowReturn {
	return h.srcpad.Push(buf)
}

// PushEvent sends a downstream event into the element's sink pad.
func (h *Harness) PushEvent(ev *Event) bool {
	return h.srcpad.PushEvent(ev)
}

// PushUpstreamEvent sends an upstream event into the element's src pad.
func (h *Harness) PushUpstreamEvent(ev *Event) bool {
	return h.sinkpad.PushEvent(ev)
}

// QueryUpstream sends q into the element's src pad, as a downstream element
// would.
func (h *Harness) QueryUpstream(q *Query) bool {
	return h.sinkpad.PeerQuery(q)
}

// QueryDownstream sends q into the element's sink pad, as an upstream
// element would.
func (h *Harness) QueryDownstream(q *Query) bool {
	return h.srcpad.PeerQuery(q)
}

// SetUpstreamQuery answers queries the element forwards upstream.
func (h *Harness) SetUpstreamQuery(fn func(q *Query) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upstreamQuery = fn
}

// SetDownstreamQuery answers queries the element forwards downstream.
func (h *Harness) SetDownstreamQuery(fn func(q *Query) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downstreamQuery = fn
}

// SetChainReturn makes the harness sink return ret for every buffer, to
// simulate downstream backpressure or errors.
func (h *Harness) SetChainReturn(ret FlowReturn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chainReturn = ret
}

// Buffers returns the buffers the element pushed so far.
func (h *Harness) Buffers() []*Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Buffer(nil), h.buffers...)
}

// Events returns the downstream events the element pushed so far.
func (h *Harness) Events() []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Event(nil), h.events...)
}

// UpstreamEvents returns the upstream events the element pushed so far.
func (h *Harness) UpstreamEvents() []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Event(nil), h.upstreamEvents...)
}
