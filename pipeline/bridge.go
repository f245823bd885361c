package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/will7200/ssdtf/element"
)

type BridgeParams struct {
	Element *element.Element
	// Sink hands decoded frames to the element
	Sink *app.Sink
	// Src receives what the element pushes
	Src *app.Source
	// OnBuffer sees every buffer the element pushes, before it is handed to
	// Src
	OnBuffer func(buf *element.Buffer)
}

// Bridge plays the element's neighbours inside a gst pipeline: samples
// pulled from the appsink are pushed into the element sink pad and buffers
// coming out of the element src pad are pushed into the appsrc.
type Bridge struct {
	params  BridgeParams
	srcpad  *element.Pad
	sinkpad *element.Pad
	logger  zerolog.Logger

	started atomic.Bool
	in      atomic.Uint64
	out     atomic.Uint64
}

func NewBridge(params BridgeParams) (b *Bridge, err error) {
	b = &Bridge{
		params: params,
		logger: log.With().Str("bridge", params.Element.Name()).Logger(),
	}
	b.srcpad = element.NewPad("host-src", element.PadDirectionSrc)
	b.sinkpad = element.NewPad("host-sink", element.PadDirectionSink)

	err = multierr.Combine(
		b.sinkpad.SetChainFunction(func(_ *element.Pad, _ element.Object, buf *element.Buffer) element.FlowReturn {
			return b.chain(buf)
		}),
		b.sinkpad.SetEventFunction(func(_ *element.Pad, _ element.Object, ev *element.Event) bool {
			return b.event(ev)
		}),
		b.srcpad.SetEventFunction(func(_ *element.Pad, _ element.Object, ev *element.Event) bool {
			b.logger.Debug().Stringer("event", ev).Msg("Upstream event reached the host")
			return true
		}),
	)
	if err != nil {
		return nil, err
	}
	if err = multierr.Combine(
		b.srcpad.Link(params.Element.SinkPad()),
		params.Element.SrcPad().Link(b.sinkpad),
	); err != nil {
		return nil, errors.Wrap(err, "linking bridge")
	}

	params.Sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: b.onSample,
		EOSFunc:       b.onEOS,
	})
	return b, nil
}

// SetActive starts or stops the bridge pads accepting data.
func (b *Bridge) SetActive(active bool) {
	b.srcpad.SetActive(active)
	b.sinkpad.SetActive(active)
}

// Counts returns how many buffers went into and came out of the element.
func (b *Bridge) Counts() (in, out uint64) {
	return b.in.Load(), b.out.Load()
}

// Close unlinks the bridge from the element.
func (b *Bridge) Close() {
	b.SetActive(false)
	b.srcpad.Unlink()
	b.params.Element.SrcPad().Unlink()
}

func (b *Bridge) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	if b.started.CompareAndSwap(false, true) {
		b.srcpad.PushEvent(element.NewStreamStartEvent(uuid.New().String()))
		if caps := sample.GetCaps(); caps != nil {
			b.srcpad.PushEvent(element.NewCapsEvent(capsFromGst(caps)))
		}
	}

	// the mapping is only valid until Unmap, the element gets its own copy
	data := append([]byte(nil), buffer.Map(gst.MapRead).Bytes()...)
	buffer.Unmap()

	buf := element.NewBuffer(data)
	buf.PTS = fromClockTime(buffer.PresentationTimestamp())
	buf.Duration = fromClockTime(buffer.Duration())
	b.in.Add(1)
	return toGstFlow(b.srcpad.Push(buf))
}

func (b *Bridge) onEOS(sink *app.Sink) {
	b.logger.Debug().Msg("Upstream reached end of stream")
	if !b.srcpad.PushEvent(element.NewEOSEvent()) {
		// the element refused the event, still let the host finish
		b.params.Src.EndStream()
	}
}

func (b *Bridge) chain(buf *element.Buffer) element.FlowReturn {
	b.out.Add(1)
	if b.params.OnBuffer != nil {
		b.params.OnBuffer(buf)
	}
	buffer := gst.NewBufferFromBytes(buf.Bytes())
	buffer.SetPresentationTimestamp(toClockTime(buf.PTS))
	buffer.SetDuration(toClockTime(buf.Duration))
	return fromGstFlow(b.params.Src.PushBuffer(buffer))
}

func (b *Bridge) event(ev *element.Event) bool {
	b.logger.Trace().Stringer("event", ev).Msg("Event reached the host")
	if ev.Type == element.EventEOS {
		return b.params.Src.EndStream() == gst.FlowOK
	}
	return true
}

func capsFromGst(caps *gst.Caps) *element.Caps {
	if caps.IsAny() {
		return element.NewAnyCaps()
	}
	if caps.GetSize() == 0 {
		return element.NewEmptyCaps()
	}
	s := caps.GetStructureAt(0)
	fields := map[string]interface{}{}
	for _, key := range []string{"format", "width", "height"} {
		if v, err := s.GetValue(key); err == nil {
			fields[key] = v
		}
	}
	return element.NewCaps(element.NewStructure(s.Name(), fields))
}

func fromClockTime(t gst.ClockTime) time.Duration {
	if t == gst.ClockTimeNone {
		return element.ClockTimeNone
	}
	return time.Duration(t)
}

func toClockTime(d time.Duration) gst.ClockTime {
	if d < 0 {
		return gst.ClockTimeNone
	}
	return gst.ClockTime(d)
}

var flowToGst = map[element.FlowReturn]gst.FlowReturn{
	element.FlowOK:            gst.FlowOK,
	element.FlowNotLinked:     gst.FlowNotLinked,
	element.FlowFlushing:      gst.FlowFlushing,
	element.FlowEOS:           gst.FlowEOS,
	element.FlowNotNegotiated: gst.FlowNotNegotiated,
	element.FlowError:         gst.FlowError,
	element.FlowNotSupported:  gst.FlowNotSupported,
}

func toGstFlow(ret element.FlowReturn) gst.FlowReturn {
	if r, ok := flowToGst[ret]; ok {
		return r
	}
	return gst.FlowError
}

func fromGstFlow(ret gst.FlowReturn) element.FlowReturn {
	for k, v := range flowToGst {
		if v == ret {
			return k
		}
	}
	return element.FlowError
}
