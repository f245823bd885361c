package element

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClass() *Class {
	return RegisterClass("TestRelay", func(c *Class) {
		c.DebugCategory = "testrelay"
		c.SetMetadata("TestRelay", "Generic", "Relays everything", "test")
		c.AddPadTemplate(NewPadTemplate(SrcTemplateName, PadDirectionSrc, PadPresenceAlways, NewAnyCaps()))
		c.AddPadTemplate(NewPadTemplate(SinkTemplateName, PadDirectionSink, PadPresenceAlways, NewAnyCaps()))
	})
}

type fakeStage struct {
	mu       sync.Mutex
	started  bool
	starts   int
	stops    int
	startErr error
	process  func(buf *Buffer) (*Buffer, error)
}

func (s *fakeStage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStage) Process(buf *Buffer) (*Buffer, error) {
	if s.process != nil {
		return s.process(buf)
	}
	return buf, nil
}

func (s *fakeStage) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.started = false
	return nil
}

func (s *fakeStage) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func newHarness(t *testing.T, stage Stage) *Harness {
	t.Helper()
	params := Params{Name: "relay"}
	if stage != nil {
		params.Stage = stage
	}
	e, err := New(testClass(), params)
	require.Nil(t, err)
	h, err := NewHarness(e)
	require.Nil(t, err)
	return h
}

func TestNewElement(t *testing.T) {
	e, err := New(testClass(), Params{})
	assert.Nil(t, err)
	assert.Equal(t, StateNull, e.State())
	assert.Len(t, e.Pads(), 2)
	assert.Equal(t, PadDirectionSink, e.SinkPad().Direction())
	assert.Equal(t, PadDirectionSrc, e.SrcPad().Direction())
	assert.Equal(t, e, e.SinkPad().Parent())
	assert.Equal(t, e.SrcPad(), e.StaticPad("src"))
	assert.Contains(t, e.Name(), "testrelay-")
}

func TestNewElementMissingTemplate(t *testing.T) {
	class := RegisterClass("TestNoTemplates", nil)
	_, err := New(class, Params{})
	assert.True(t, errors.Is(err, ErrMissingTemplate))
}

func TestPadFunctionsAreFixed(t *testing.T) {
	e, err := New(testClass(), Params{})
	require.Nil(t, err)
	err = e.SinkPad().SetChainFunction(func(*Pad, Object, *Buffer) FlowReturn { return FlowOK })
	assert.True(t, errors.Is(err, ErrPadHasParent))
	err = e.SrcPad().SetEventFunction(func(*Pad, Object, *Event) bool { return true })
	assert.True(t, errors.Is(err, ErrPadHasParent))
}

func TestPassThroughBuffer(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())

	buf := NewBuffer([]byte("X"))
	assert.Equal(t, FlowOK, h.Push(buf))

	out := h.Buffers()
	require.Len(t, out, 1)
	assert.Same(t, buf, out[0])
	assert.Equal(t, []byte("X"), out[0].Bytes())
}

func TestStageTransformsBuffer(t *testing.T) {
	stage := &fakeStage{process: func(buf *Buffer) (*Buffer, error) {
		return NewDerivedBuffer(buf, append([]byte("detected:"), buf.Bytes()...)), nil
	}}
	h := newHarness(t, stage)
	require.Nil(t, h.Play())

	assert.Equal(t, FlowOK, h.Push(NewBuffer([]byte("X"))))
	out := h.Buffers()
	require.Len(t, out, 1)
	assert.Equal(t, "detected:X", string(out[0].Bytes()))
}

func TestDownstreamFlowReturnIsPropagated(t *testing.T) {
	tests := []FlowReturn{FlowOK, FlowEOS, FlowFlushing, FlowNotNegotiated, FlowError}
	for _, ret := range tests {
		t.Run(ret.String(), func(t *testing.T) {
			h := newHarness(t, nil)
			require.Nil(t, h.Play())
			h.SetChainReturn(ret)
			assert.Equal(t, ret, h.Push(NewBuffer([]byte("X"))))
		})
	}
}

func TestNotLinkedSource(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.Element.SrcPad().Unlink()
	assert.Equal(t, FlowNotLinked, h.Push(NewBuffer([]byte("X"))))
}

func TestStageErrorYieldsFlowError(t *testing.T) {
	fail := true
	stage := &fakeStage{process: func(buf *Buffer) (*Buffer, error) {
		if fail {
			return nil, errors.New("malformed frame")
		}
		return buf, nil
	}}
	h := newHarness(t, stage)
	require.Nil(t, h.Play())

	var msgs []*Message
	h.Element.Bus().AddWatch(func(msg *Message) bool {
		msgs = append(msgs, msg)
		return true
	})

	assert.Equal(t, FlowError, h.Push(NewBuffer([]byte("bad"))))
	assert.Len(t, h.Buffers(), 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageError, msgs[0].Type)

	fail = false
	assert.Equal(t, FlowOK, h.Push(NewBuffer([]byte("good"))))
	assert.Len(t, h.Buffers(), 1)
}

func TestStageReturningNilBuffer(t *testing.T) {
	stage := &fakeStage{process: func(*Buffer) (*Buffer, error) { return nil, nil }}
	h := newHarness(t, stage)
	require.Nil(t, h.Play())
	assert.Equal(t, FlowError, h.Push(NewBuffer([]byte("X"))))
	assert.Len(t, h.Buffers(), 0)
}

func TestEventsAreForwardedInOrder(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())

	sent := []*Event{
		NewStreamStartEvent("stream"),
		NewCapsEvent(NewAnyCaps()),
		NewEvent(EventSegment),
		NewEOSEvent(),
	}
	for _, ev := range sent {
		assert.True(t, h.PushEvent(ev))
	}
	assert.Equal(t, sent, h.Events())
}

func TestEOSWhilePlaying(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	eos := NewEOSEvent()
	assert.True(t, h.PushEvent(eos))
	events := h.Events()
	require.Len(t, events, 1)
	assert.Same(t, eos, events[0])
	assert.Equal(t, EventEOS, events[0].Type)
}

func TestUpstreamEventsAreForwarded(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	seek := NewSeekEvent(map[string]interface{}{"position": 0})
	reconfigure := NewEvent(EventReconfigure)
	assert.True(t, h.PushUpstreamEvent(seek))
	assert.True(t, h.PushUpstreamEvent(reconfigure))
	assert.Equal(t, []*Event{seek, reconfigure}, h.UpstreamEvents())
}

func TestEventWrongDirectionIsRefused(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	assert.False(t, h.PushUpstreamEvent(NewEOSEvent()))
	assert.False(t, h.PushEvent(NewSeekEvent(nil)))
}

func TestQueriesAreForwarded(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.SetUpstreamQuery(func(q *Query) bool {
		if q.Type != QueryPosition {
			return false
		}
		q.Position = 42
		return true
	})
	h.SetDownstreamQuery(func(q *Query) bool {
		q.Live = true
		q.MinLatency = 10
		return true
	})

	pos := NewPositionQuery(FormatTime)
	assert.True(t, h.QueryUpstream(pos))
	assert.Equal(t, int64(42), pos.Position)

	lat := NewLatencyQuery()
	assert.True(t, h.QueryDownstream(lat))
	assert.True(t, lat.Live)

	dur := NewDurationQuery(FormatTime)
	assert.False(t, h.QueryUpstream(dur))
	assert.Equal(t, int64(-1), dur.Duration)
}

func TestQueryWithoutUpstreamPeer(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.srcpad.Unlink()

	q := NewPositionQuery(FormatTime)
	before := *q
	assert.False(t, h.QueryUpstream(q))
	assert.Equal(t, before, *q)
}

func TestFailedQueryLeavesAnswerUntouched(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.SetUpstreamQuery(func(q *Query) bool {
		q.Position = 99
		q.Seekable = true
		return false
	})
	q := NewPositionQuery(FormatTime)
	assert.False(t, h.QueryUpstream(q))
	assert.Equal(t, int64(-1), q.Position)
	assert.False(t, q.Seekable)
}

func TestFailedQueryLeavesFieldsUntouched(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.SetUpstreamQuery(func(q *Query) bool {
		q.Fields["answer"] = 42
		q.ResultCaps = rawVideo("RGB")
		return false
	})
	q := NewPositionQuery(FormatTime)
	q.Fields = map[string]interface{}{"ask": "position"}
	fields := q.Fields

	assert.False(t, h.QueryUpstream(q))
	assert.Equal(t, map[string]interface{}{"ask": "position"}, q.Fields)
	assert.NotContains(t, q.Fields, "answer")
	assert.Nil(t, q.ResultCaps)
	// the caller's own map is not handed to the peer
	assert.NotContains(t, fields, "answer")
}

func TestStateWatchMayChangeState(t *testing.T) {
	h := newHarness(t, nil)
	var once sync.Once
	watchErr := make(chan error, 1)
	h.Element.Bus().AddWatch(func(msg *Message) bool {
		if msg.Type == MessageStateChanged && msg.Transition == ReadyToPaused {
			once.Do(func() { watchErr <- h.Element.SetState(StateReady) })
		}
		return true
	})

	done := make(chan error, 1)
	go func() { done <- h.Element.SetState(StatePaused) }()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("SetState deadlocked while a bus watch changed state")
	}
	assert.Nil(t, <-watchErr)
	assert.Equal(t, StateReady, h.Element.State())
}

func TestPanickingStageIsContained(t *testing.T) {
	explode := true
	stage := &fakeStage{process: func(buf *Buffer) (*Buffer, error) {
		if explode {
			panic("model exploded")
		}
		return buf, nil
	}}
	h := newHarness(t, stage)
	require.Nil(t, h.Play())

	var errs []error
	h.Element.Bus().AddWatch(func(msg *Message) bool {
		if msg.Type == MessageError {
			errs = append(errs, msg.Err)
		}
		return true
	})

	assert.NotPanics(t, func() {
		assert.Equal(t, FlowError, h.Push(NewBuffer([]byte("X"))))
	})
	assert.Len(t, h.Buffers(), 0)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrPanicked))

	explode = false
	assert.Equal(t, FlowOK, h.Push(NewBuffer([]byte("Y"))))
	out := h.Buffers()
	require.Len(t, out, 1)
	assert.Equal(t, "Y", string(out[0].Bytes()))
}

func TestPanickingPeerIsContained(t *testing.T) {
	h := newHarness(t, nil)
	require.Nil(t, h.Play())
	h.SetUpstreamQuery(func(q *Query) bool { panic(errors.New("peer bug")) })
	assert.NotPanics(t, func() {
		assert.False(t, h.QueryUpstream(NewPositionQuery(FormatTime)))
	})
	assert.True(t, h.PushEvent(NewEOSEvent()))
}

func TestCatchPanicWithForeignParent(t *testing.T) {
	ret := catchPanic(foreignParent{}, "sink-chain",
		func() FlowReturn { return FlowError },
		func(*Element) FlowReturn { return FlowOK },
	)
	assert.Equal(t, FlowError, ret)
}

type foreignParent struct{}

func (foreignParent) Name() string { return "foreign" }

func TestLifecycle(t *testing.T) {
	stage := &fakeStage{}
	e, err := New(testClass(), Params{Stage: stage})
	require.Nil(t, err)

	assert.False(t, stage.isStarted())
	assert.Nil(t, e.ChangeState(NullToReady))
	assert.True(t, stage.isStarted())
	assert.True(t, e.StageActive())
	assert.False(t, e.SinkPad().IsActive())

	assert.Nil(t, e.ChangeState(ReadyToPaused))
	assert.True(t, e.SinkPad().IsActive())
	assert.Nil(t, e.ChangeState(PausedToPlaying))
	assert.Equal(t, StatePlaying, e.State())

	assert.Nil(t, e.ChangeState(PlayingToPaused))
	assert.Nil(t, e.ChangeState(PausedToReady))
	assert.False(t, e.SrcPad().IsActive())
	assert.True(t, stage.isStarted())
	assert.Nil(t, e.ChangeState(ReadyToNull))
	assert.False(t, stage.isStarted())
	assert.False(t, e.StageActive())
	assert.Equal(t, 1, stage.starts)
	assert.Equal(t, 1, stage.stops)
}

func TestSkippingStatesIsRejected(t *testing.T) {
	stage := &fakeStage{}
	e, err := New(testClass(), Params{Stage: stage})
	require.Nil(t, err)

	tests := []StateChange{
		{StateNull, StatePaused},
		{StateNull, StatePlaying},
		{StateReady, StatePaused},
		{StateNull, StateNull},
	}
	for _, tc := range tests {
		t.Run(tc.String(), func(t *testing.T) {
			err := e.ChangeState(tc)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.True(t, errors.Is(err, ErrStateChangeFailed))
			assert.Equal(t, StateNull, e.State())
			assert.Equal(t, 0, stage.starts)
		})
	}
}

func TestFailingStageStartHaltsTransition(t *testing.T) {
	stage := &fakeStage{startErr: errors.New("no model file")}
	e, err := New(testClass(), Params{Stage: stage})
	require.Nil(t, err)

	err = e.SetState(StatePlaying)
	var sErr *StateChangeError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, NullToReady, sErr.Transition)
	assert.Equal(t, StateNull, e.State())
	assert.False(t, e.StageActive())
}

func TestSetStateWalksTransitions(t *testing.T) {
	e, err := New(testClass(), Params{})
	require.Nil(t, err)
	var seen []StateChange
	e.Bus().AddWatch(func(msg *Message) bool {
		if msg.Type == MessageStateChanged {
			seen = append(seen, msg.Transition)
		}
		return true
	})
	assert.Nil(t, e.SetState(StatePlaying))
	assert.Nil(t, e.SetState(StateNull))
	assert.Equal(t, []StateChange{
		NullToReady, ReadyToPaused, PausedToPlaying,
		PlayingToPaused, PausedToReady, ReadyToNull,
	}, seen)
}

func TestNoDispatchAfterNull(t *testing.T) {
	h := newHarness(t, &fakeStage{})
	require.Nil(t, h.Play())
	assert.Nil(t, h.Element.SetState(StateNull))

	assert.Equal(t, FlowFlushing, h.Push(NewBuffer([]byte("late"))))
	assert.False(t, h.PushEvent(NewEOSEvent()))
	assert.False(t, h.QueryUpstream(NewPositionQuery(FormatTime)))
	assert.Len(t, h.Buffers(), 0)
	assert.Len(t, h.Events(), 0)
}

func TestConcurrentChainIsSerialized(t *testing.T) {
	var inside, maxInside int
	var mu sync.Mutex
	stage := &fakeStage{process: func(buf *Buffer) (*Buffer, error) {
		mu.Lock()
		inside++
		if inside > maxInside {
			maxInside = inside
		}
		mu.Unlock()
		mu.Lock()
		inside--
		mu.Unlock()
		return buf, nil
	}}
	h := newHarness(t, stage)
	require.Nil(t, h.Play())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Push(NewBuffer([]byte{byte(j)}))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, h.Buffers(), 16*50)
	assert.Equal(t, 1, maxInside)
}
