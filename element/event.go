package element

import (
	"fmt"
	"sync/atomic"
)

// EventType identifies an event and fixes the directions it may travel in.
type EventType int

const (
	EventStreamStart EventType = iota + 1
	EventCaps
	EventSegment
	EventTag
	EventFlushStart
	EventFlushStop
	EventEOS
	EventSeek
	EventQoS
	EventLatency
	EventReconfigure
	EventCustomDownstream
	EventCustomUpstream
)

type eventFlags uint8

const (
	flagUpstream eventFlags = 1 << iota
	flagDownstream
	flagSerialized
)

var eventTypes = map[EventType]struct {
	name  string
	flags eventFlags
}{
	EventStreamStart:      {"stream-start", flagDownstream | flagSerialized},
	EventCaps:             {"caps", flagDownstream | flagSerialized},
	EventSegment:          {"segment", flagDownstream | flagSerialized},
	EventTag:              {"tag", flagDownstream | flagSerialized},
	EventFlushStart:       {"flush-start", flagUpstream | flagDownstream},
	EventFlushStop:        {"flush-stop", flagUpstream | flagDownstream | flagSerialized},
	EventEOS:              {"eos", flagDownstream | flagSerialized},
	EventSeek:             {"seek", flagUpstream},
	EventQoS:              {"qos", flagUpstream},
	EventLatency:          {"latency", flagUpstream},
	EventReconfigure:      {"reconfigure", flagUpstream},
	EventCustomDownstream: {"custom-downstream", flagDownstream | flagSerialized},
	EventCustomUpstream:   {"custom-upstream", flagUpstream},
}

func (t EventType) String() string {
	if info, ok := eventTypes[t]; ok {
		return info.name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// IsUpstream reports whether the event may travel from sink to source side.
func (t EventType) IsUpstream() bool {
	return eventTypes[t].flags&flagUpstream != 0
}

// IsDownstream reports whether the event may travel with the data flow.
func (t EventType) IsDownstream() bool {
	return eventTypes[t].flags&flagDownstream != 0
}

// IsSerialized reports whether the event is ordered with buffers.
func (t EventType) IsSerialized() bool {
	return eventTypes[t].flags&flagSerialized != 0
}

var eventSeqnum atomic.Uint32

// Event is a one-way control signal. The element forwards the same *Event
// it received.
type Event struct {
	Type   EventType
	Seqnum uint32

	StreamID string
	Caps     *Caps
	Fields   map[string]interface{}
}

// NewEvent creates an event of the given type with a fresh sequence number.
func NewEvent(t EventType) *Event {
	return &Event{Type: t, Seqnum: eventSeqnum.Add(1)}
}

func NewStreamStartEvent(streamID string) *Event {
	ev := NewEvent(EventStreamStart)
	ev.StreamID = streamID
	return ev
}

func NewCapsEvent(caps *Caps) *Event {
	ev := NewEvent(EventCaps)
	ev.Caps = caps
	return ev
}

func NewEOSEvent() *Event {
	return NewEvent(EventEOS)
}

func NewFlushStartEvent() *Event {
	return NewEvent(EventFlushStart)
}

func NewFlushStopEvent() *Event {
	return NewEvent(EventFlushStop)
}

func NewSeekEvent(fields map[string]interface{}) *Event {
	ev := NewEvent(EventSeek)
	ev.Fields = fields
	return ev
}

func (e *Event) String() string {
	return fmt.Sprintf("Event(%s, seqnum=%d)", e.Type, e.Seqnum)
}
