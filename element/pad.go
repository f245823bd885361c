package element

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// PadDirection is the direction data flows through a pad.
type PadDirection int

const (
	PadDirectionSrc PadDirection = iota + 1
	PadDirectionSink
)

func (d PadDirection) String() string {
	switch d {
	case PadDirectionSrc:
		return "src"
	case PadDirectionSink:
		return "sink"
	}
	return "unknown"
}

// PadPresence tells when pads of a template exist.
type PadPresence int

const (
	PadPresenceAlways PadPresence = iota + 1
	PadPresenceSometimes
	PadPresenceRequest
)

// PadTemplate describes the pads an element class can create.
type PadTemplate struct {
	Name      string
	Direction PadDirection
	Presence  PadPresence
	Caps      *Caps
}

// NewPadTemplate creates a template; nil caps means any.
func NewPadTemplate(name string, direction PadDirection, presence PadPresence, caps *Caps) *PadTemplate {
	if caps == nil {
		caps = NewAnyCaps()
	}
	return &PadTemplate{Name: name, Direction: direction, Presence: presence, Caps: caps}
}

// Object is anything that can own pads.
type Object interface {
	Name() string
}

type (
	ChainFunc func(pad *Pad, parent Object, buf *Buffer) FlowReturn
	EventFunc func(pad *Pad, parent Object, ev *Event) bool
	QueryFunc func(pad *Pad, parent Object, q *Query) bool
)

var (
	ErrPadFunctionSet = errors.New("pad function already set")
	ErrPadHasParent   = errors.New("pad already has a parent")
	ErrWrongDirection = errors.New("wrong pad direction")
	ErrPadLinked      = errors.New("pad already linked")
	ErrNoFormat       = errors.New("pads have no common format")
)

// Pad is a directional endpoint of an element. Its functions are set once,
// before the pad is added to its parent, and never change afterwards.
type Pad struct {
	name      string
	direction PadDirection
	template  *PadTemplate

	mu      sync.RWMutex
	parent  Object
	peer    *Pad
	chainFn ChainFunc
	eventFn EventFunc
	queryFn QueryFunc

	active atomic.Bool
	// stream serializes buffers and serialized events on sink pads.
	stream sync.Mutex
}

// NewPad creates a pad accepting any caps.
func NewPad(name string, direction PadDirection) *Pad {
	return NewPadFromTemplate(NewPadTemplate(name, direction, PadPresenceAlways, nil), name)
}

// NewPadFromTemplate creates a pad named name from templ.
func NewPadFromTemplate(templ *PadTemplate, name string) *Pad {
	if name == "" {
		name = templ.Name
	}
	return &Pad{name: name, direction: templ.Direction, template: templ}
}

func (p *Pad) Name() string {
	return p.name
}

func (p *Pad) Direction() PadDirection {
	return p.direction
}

func (p *Pad) Template() *PadTemplate {
	return p.template
}

// Caps returns the template caps of the pad.
func (p *Pad) Caps() *Caps {
	return p.template.Caps
}

func (p *Pad) Parent() Object {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent
}

func (p *Pad) Peer() *Pad {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peer
}

func (p *Pad) IsLinked() bool {
	return p.Peer() != nil
}

func (p *Pad) IsActive() bool {
	return p.active.Load()
}

// SetActive starts or stops the pad accepting data.
func (p *Pad) SetActive(active bool) {
	p.active.Store(active)
}

func (p *Pad) setFunction(set func() bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent != nil {
		return errors.Wrapf(ErrPadHasParent, "pad %s", p.name)
	}
	if !set() {
		return errors.Wrapf(ErrPadFunctionSet, "pad %s", p.name)
	}
	return nil
}

// SetChainFunction sets the buffer handler of a sink pad.
func (p *Pad) SetChainFunction(fn ChainFunc) error {
	if p.direction != PadDirectionSink {
		return errors.Wrapf(ErrWrongDirection, "chain function on %s pad %s", p.direction, p.name)
	}
	return p.setFunction(func() bool {
		if p.chainFn != nil {
			return false
		}
		p.chainFn = fn
		return true
	})
}

// SetEventFunction sets the event handler.
func (p *Pad) SetEventFunction(fn EventFunc) error {
	return p.setFunction(func() bool {
		if p.eventFn != nil {
			return false
		}
		p.eventFn = fn
		return true
	})
}

// SetQueryFunction sets the query handler.
func (p *Pad) SetQueryFunction(fn QueryFunc) error {
	return p.setFunction(func() bool {
		if p.queryFn != nil {
			return false
		}
		p.queryFn = fn
		return true
	})
}

func (p *Pad) setParent(parent Object) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parent != nil {
		return errors.Wrapf(ErrPadHasParent, "pad %s", p.name)
	}
	p.parent = parent
	return nil
}

// Link connects src pad p to sink pad sink.
func (p *Pad) Link(sink *Pad) error {
	if p.direction != PadDirectionSrc || sink.direction != PadDirectionSink {
		return errors.Wrapf(ErrWrongDirection, "linking %s to %s", p.name, sink.name)
	}
	if !p.Caps().CanIntersect(sink.Caps()) {
		return errors.Wrapf(ErrNoFormat, "linking %s (%s) to %s (%s)", p.name, p.Caps(), sink.name, sink.Caps())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if p.peer != nil || sink.peer != nil {
		return errors.Wrapf(ErrPadLinked, "linking %s to %s", p.name, sink.name)
	}
	p.peer = sink
	sink.peer = p
	return nil
}

// Unlink disconnects src pad p from its peer.
func (p *Pad) Unlink() {
	p.mu.Lock()
	peer := p.peer
	p.peer = nil
	p.mu.Unlock()
	if peer != nil {
		peer.mu.Lock()
		peer.peer = nil
		peer.mu.Unlock()
	}
}

func (p *Pad) functions() (Object, ChainFunc, EventFunc, QueryFunc) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.parent, p.chainFn, p.eventFn, p.queryFn
}

// Chain delivers a buffer to this sink pad's chain function.
func (p *Pad) Chain(buf *Buffer) FlowReturn {
	if p.direction != PadDirectionSink {
		return FlowNotSupported
	}
	if !p.IsActive() {
		return FlowFlushing
	}
	parent, chainFn, _, _ := p.functions()
	if chainFn == nil {
		return FlowNotSupported
	}
	p.stream.Lock()
	defer p.stream.Unlock()
	return chainFn(p, parent, buf)
}

// Push sends a buffer from this src pad to its peer.
func (p *Pad) Push(buf *Buffer) FlowReturn {
	if p.direction != PadDirectionSrc {
		return FlowNotSupported
	}
	if !p.IsActive() {
		return FlowFlushing
	}
	peer := p.Peer()
	if peer == nil {
		return FlowNotLinked
	}
	return peer.Chain(buf)
}

// SendEvent delivers an event to this pad's event function. Sink pads take
// downstream events, src pads upstream ones.
func (p *Pad) SendEvent(ev *Event) bool {
	downstream := p.direction == PadDirectionSink
	if downstream && !ev.Type.IsDownstream() || !downstream && !ev.Type.IsUpstream() {
		return false
	}
	if !p.IsActive() && ev.Type != EventFlushStop {
		return false
	}
	parent, _, eventFn, _ := p.functions()
	if eventFn == nil {
		return false
	}
	if downstream && ev.Type.IsSerialized() {
		p.stream.Lock()
		defer p.stream.Unlock()
	}
	return eventFn(p, parent, ev)
}

// PushEvent sends an event to the peer of this pad.
func (p *Pad) PushEvent(ev *Event) bool {
	if p.direction == PadDirectionSrc && !ev.Type.IsDownstream() ||
		p.direction == PadDirectionSink && !ev.Type.IsUpstream() {
		return false
	}
	peer := p.Peer()
	if peer == nil {
		return false
	}
	return peer.SendEvent(ev)
}

// Query runs this pad's query function on q. Inactive pads answer nothing.
func (p *Pad) Query(q *Query) bool {
	if !p.IsActive() {
		return false
	}
	parent, _, _, queryFn := p.functions()
	if queryFn == nil {
		return false
	}
	return queryFn(p, parent, q)
}

// PeerQuery runs q on the peer of this pad. The peer answers a deep copy
// that is written back into q only when it succeeds, so a failed query
// leaves q and everything it references as passed in.
func (p *Pad) PeerQuery(q *Query) bool {
	peer := p.Peer()
	if peer == nil {
		return false
	}
	answer := q.copy()
	if !peer.Query(answer) {
		return false
	}
	*q = *answer
	return true
}

func (p *Pad) String() string {
	parent := "<none>"
	if obj := p.Parent(); obj != nil {
		parent = obj.Name()
	}
	return fmt.Sprintf("%s:%s", parent, p.name)
}
