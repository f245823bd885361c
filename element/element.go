package element

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SinkTemplateName = "sink"
	SrcTemplateName  = "src"

	// DefaultStageTimeout bounds Stage.Start inside the Null->Ready hook.
	DefaultStageTimeout = 30 * time.Second
)

var (
	ErrMissingTemplate = errors.New("missing pad template")
	ErrStageNotStarted = errors.New("stage not started")
	ErrStageNilBuffer  = errors.New("stage returned no buffer")
)

type Params struct {
	// Name of the instance; defaults to the class debug category plus a
	// short unique suffix.
	Name string
	// Stage runs on every buffer before it is pushed; nil relays buffers
	// unmodified.
	Stage Stage
	// Bus receives error and state-changed messages; one is created if nil.
	Bus *Bus
	// Observer is notified of every handled signal.
	Observer Observer
	// StageTimeout bounds Stage.Start; DefaultStageTimeout when zero.
	StageTimeout time.Duration
}

// Element relays buffers from its sink pad to its src pad, optionally through
// a Stage, and relays events and queries in both directions.
type Element struct {
	name     string
	class    *Class
	logger   zerolog.Logger
	bus      *Bus
	observer Observer

	sinkpad *Pad
	srcpad  *Pad
	pads    []*Pad

	stage        Stage
	stageTimeout time.Duration
	stageMu      sync.Mutex
	stageStarted bool

	stateMu sync.Mutex
	state   atomic.Int32
}

var _ Object = (*Element)(nil)

// New creates an element of class. Both pads are created from the class
// templates, get their functions and are added before New returns, so the
// element can receive signals as soon as it is linked.
func New(class *Class, params Params) (e *Element, err error) {
	sinkTempl := class.PadTemplate(SinkTemplateName)
	srcTempl := class.PadTemplate(SrcTemplateName)
	if sinkTempl == nil || srcTempl == nil {
		return nil, errors.Wrapf(ErrMissingTemplate, "class %s", class.TypeName)
	}

	e = new(Element)
	e.class = class
	e.name = params.Name
	if e.name == "" {
		e.name = fmt.Sprintf("%s-%s", class.DebugCategory, uuid.New().String()[:8])
	}
	e.logger = log.With().
		Str("category", class.DebugCategory).
		Str("element", e.name).
		Logger()
	e.bus = params.Bus
	if e.bus == nil {
		e.bus = NewBus()
	}
	e.observer = params.Observer
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	e.stage = params.Stage
	e.stageTimeout = params.StageTimeout
	if e.stageTimeout <= 0 {
		e.stageTimeout = DefaultStageTimeout
	}
	e.state.Store(int32(StateNull))

	e.sinkpad = NewPadFromTemplate(sinkTempl, SinkTemplateName)
	e.srcpad = NewPadFromTemplate(srcTempl, SrcTemplateName)
	if err = setPadFunctions(e.sinkpad, e.srcpad); err != nil {
		return nil, err
	}
	if err = e.constructed(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Element) constructed() error {
	for _, pad := range []*Pad{e.sinkpad, e.srcpad} {
		if err := e.addPad(pad); err != nil {
			return err
		}
	}
	return nil
}

func (e *Element) addPad(pad *Pad) error {
	if err := pad.setParent(e); err != nil {
		return err
	}
	e.pads = append(e.pads, pad)
	return nil
}

func (e *Element) Name() string {
	return e.name
}

func (e *Element) Class() *Class {
	return e.class
}

func (e *Element) Bus() *Bus {
	return e.bus
}

func (e *Element) SinkPad() *Pad {
	return e.sinkpad
}

func (e *Element) SrcPad() *Pad {
	return e.srcpad
}

func (e *Element) Pads() []*Pad {
	return append([]*Pad(nil), e.pads...)
}

// StaticPad returns the pad called name, or nil.
func (e *Element) StaticPad(name string) *Pad {
	for _, p := range e.pads {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (e *Element) State() State {
	return State(e.state.Load())
}

// StageActive reports whether the stage currently holds its resources.
func (e *Element) StageActive() bool {
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	return e.stageStarted
}

func (e *Element) sinkChain(pad *Pad, buf *Buffer) FlowReturn {
	e.logger.Trace().Stringer("pad", pad).Stringer("buffer", buf).Msg("Handling buffer")
	out, err := e.process(buf)
	if err != nil {
		e.logger.Error().Stack().Err(err).Stringer("buffer", buf).Msg("Stage failed to process buffer")
		e.postError(err)
		e.observer.BufferHandled(e.name, FlowError)
		return FlowError
	}
	ret := e.srcpad.Push(out)
	e.observer.BufferHandled(e.name, ret)
	return ret
}

func (e *Element) process(buf *Buffer) (*Buffer, error) {
	if e.stage == nil {
		return buf, nil
	}
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	if !e.stageStarted {
		return nil, ErrStageNotStarted
	}
	out, err := e.stage.Process(buf)
	if err != nil {
		return nil, errors.Wrap(err, "processing buffer")
	}
	if out == nil {
		return nil, ErrStageNilBuffer
	}
	return out, nil
}

func (e *Element) sinkEvent(pad *Pad, ev *Event) bool {
	e.logger.Trace().Stringer("pad", pad).Stringer("event", ev).Msg("Handling event")
	ok := e.srcpad.PushEvent(ev)
	e.observer.EventHandled(e.name, PadDirectionSink, ev, ok)
	return ok
}

func (e *Element) sinkQuery(pad *Pad, q *Query) bool {
	e.logger.Trace().Stringer("pad", pad).Stringer("query", q).Msg("Handling query")
	ok := e.srcpad.PeerQuery(q)
	e.observer.QueryHandled(e.name, PadDirectionSink, q, ok)
	return ok
}

func (e *Element) srcEvent(pad *Pad, ev *Event) bool {
	e.logger.Trace().Stringer("pad", pad).Stringer("event", ev).Msg("Handling event")
	ok := e.sinkpad.PushEvent(ev)
	e.observer.EventHandled(e.name, PadDirectionSrc, ev, ok)
	return ok
}

func (e *Element) srcQuery(pad *Pad, q *Query) bool {
	e.logger.Trace().Stringer("pad", pad).Stringer("query", q).Msg("Handling query")
	ok := e.sinkpad.PeerQuery(q)
	e.observer.QueryHandled(e.name, PadDirectionSrc, q, ok)
	return ok
}

func (e *Element) recovered(site string, r interface{}) {
	err := panicError(r)
	e.logger.Error().Stack().Err(err).Str("site", site).Msg("Recovered from panic in pad function")
	e.observer.PanicRecovered(e.name, site)
	e.postError(err)
}

func (e *Element) postError(err error) {
	e.bus.Post(&Message{Type: MessageError, Source: e.name, Err: err})
}

// SetState walks the element one transition at a time from its current
// state to target, stopping at the first failure.
func (e *Element) SetState(target State) error {
	if !target.valid() {
		return errors.Wrapf(ErrInvalidTransition, "target %s", target)
	}
	for _, t := range Transitions(e.State(), target) {
		if err := e.ChangeState(t); err != nil {
			return err
		}
	}
	return nil
}

// ChangeState performs a single transition. Changes that skip a state or do
// not start from the current state are rejected before any hook runs; a
// failing hook leaves the element in its previous state.
func (e *Element) ChangeState(t StateChange) error {
	err := e.applyStateChange(t)
	// Observers and bus watches run unlocked so they may drive the state.
	e.observer.StateChanged(e.name, t, err)
	if err != nil {
		return err
	}
	e.bus.Post(&Message{Type: MessageStateChanged, Source: e.name, Transition: t})
	return nil
}

func (e *Element) applyStateChange(t StateChange) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	current := e.State()
	if !t.Valid() || t.From != current {
		return &StateChangeError{Transition: t, Err: errors.Wrapf(ErrInvalidTransition, "element is %s", current)}
	}

	e.logger.Debug().Stringer("transition", t).Msg("Changing state")
	if err := e.changeState(t); err != nil {
		e.logger.Error().Stack().Err(err).Stringer("transition", t).Msg("State change failed")
		return &StateChangeError{Transition: t, Err: err}
	}
	e.state.Store(int32(t.To))
	return nil
}

func (e *Element) changeState(t StateChange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			e.observer.PanicRecovered(e.name, "change-state")
		}
	}()
	if t == NullToReady {
		if err := e.startStage(); err != nil {
			return err
		}
	}
	if err := e.parentChangeState(t); err != nil {
		if t == NullToReady {
			e.stopStage()
		}
		return err
	}
	if t == ReadyToNull {
		e.stopStage()
	}
	return nil
}

// parentChangeState is the default handling shared by all elements: pads
// accept data from Paused upwards.
func (e *Element) parentChangeState(t StateChange) error {
	switch t {
	case ReadyToPaused:
		e.activatePads(true)
	case PausedToReady:
		e.activatePads(false)
	}
	return nil
}

func (e *Element) activatePads(active bool) {
	for _, p := range e.pads {
		p.SetActive(active)
	}
}

func (e *Element) startStage() error {
	if e.stage == nil {
		return nil
	}
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	if e.stageStarted {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.stageTimeout)
	defer cancel()
	if err := e.stage.Start(ctx); err != nil {
		return errors.Wrap(err, "starting stage")
	}
	e.stageStarted = true
	e.logger.Debug().Msg("Stage started")
	return nil
}

// stopStage releases the stage resources. A failing Stop is reported as a
// warning; the resources are considered gone either way.
func (e *Element) stopStage() {
	if e.stage == nil {
		return
	}
	e.stageMu.Lock()
	defer e.stageMu.Unlock()
	if !e.stageStarted {
		return
	}
	e.stageStarted = false
	if err := e.stage.Stop(); err != nil {
		e.logger.Warn().Err(err).Msg("Stage did not stop cleanly")
		e.bus.Post(&Message{Type: MessageWarning, Source: e.name, Err: errors.Wrap(err, "stopping stage")})
		return
	}
	e.logger.Debug().Msg("Stage stopped")
}

func (e *Element) String() string {
	return fmt.Sprintf("%s(%s)", e.class.TypeName, e.name)
}
