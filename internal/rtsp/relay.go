package rtsp

import (
	"sync"

	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/will7200/ssdtf/element"
)

const mediaMetaAPI = "rtsp-media-meta"

// mediaMeta remembers which media a packet was published on.
type mediaMeta struct {
	media *description.Media
}

func (mediaMeta) API() string {
	return mediaMetaAPI
}

type writePacketFunc func(medi *description.Media, pkt *rtp.Packet) error

// relay passes published RTP packets through an element on their way to the
// stream readers.
type relay struct {
	element *element.Element
	srcpad  *element.Pad
	sinkpad *element.Pad
	write   writePacketFunc
	logger  zerolog.Logger

	mutex     sync.Mutex
	lastMedia *description.Media
}

func newRelay(e *element.Element, write writePacketFunc, logger zerolog.Logger) (r *relay, err error) {
	r = &relay{
		element: e,
		write:   write,
		logger:  logger.With().Str("element", e.Name()).Logger(),
		srcpad:  element.NewPad("rtsp-publisher", element.PadDirectionSrc),
		sinkpad: element.NewPad("rtsp-readers", element.PadDirectionSink),
	}
	err = multierr.Combine(
		r.sinkpad.SetChainFunction(func(_ *element.Pad, _ element.Object, buf *element.Buffer) element.FlowReturn {
			return r.chain(buf)
		}),
		r.sinkpad.SetEventFunction(func(_ *element.Pad, _ element.Object, ev *element.Event) bool {
			r.logger.Trace().Stringer("event", ev).Msg("Event reached readers")
			return true
		}),
	)
	if err != nil {
		return nil, err
	}
	if err = multierr.Combine(r.srcpad.Link(e.SinkPad()), e.SrcPad().Link(r.sinkpad)); err != nil {
		return nil, errors.Wrap(err, "linking relay")
	}
	return r, nil
}

// start brings the element to playing and opens the relay pads.
func (r *relay) start() error {
	if err := r.element.SetState(element.StatePlaying); err != nil {
		return err
	}
	r.srcpad.SetActive(true)
	r.sinkpad.SetActive(true)
	r.srcpad.PushEvent(element.NewStreamStartEvent(r.element.Name()))
	return nil
}

// stop sends end of stream through the element and brings it to null.
func (r *relay) stop() error {
	r.srcpad.PushEvent(element.NewEOSEvent())
	err := r.element.SetState(element.StateNull)
	r.srcpad.SetActive(false)
	r.sinkpad.SetActive(false)
	r.srcpad.Unlink()
	r.element.SrcPad().Unlink()
	return err
}

func (r *relay) push(medi *description.Media, pkt *rtp.Packet) element.FlowReturn {
	data, err := pkt.Marshal()
	if err != nil {
		r.logger.Warn().Err(err).Msg("Unable to marshal packet")
		return element.FlowError
	}
	buf := element.NewBuffer(data)
	buf.Offset = uint64(pkt.SequenceNumber)
	buf.AddMeta(mediaMeta{media: medi})

	r.mutex.Lock()
	r.lastMedia = medi
	r.mutex.Unlock()

	ret := r.srcpad.Push(buf)
	if !ret.IsSuccess() {
		r.logger.Warn().Stringer("flow", ret).Msg("Element did not accept packet")
	}
	return ret
}

func (r *relay) chain(buf *element.Buffer) element.FlowReturn {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf.Bytes()); err != nil {
		r.logger.Debug().Err(err).Stringer("buffer", buf).Msg("Element pushed a buffer that is not RTP")
		return element.FlowNotNegotiated
	}
	medi := r.media(buf)
	if medi == nil {
		return element.FlowNotNegotiated
	}
	if err := r.write(medi, &pkt); err != nil {
		r.logger.Warn().Err(err).Msg("Unable to write packet to readers")
		return element.FlowError
	}
	return element.FlowOK
}

func (r *relay) media(buf *element.Buffer) *description.Media {
	if m, ok := buf.Meta(mediaMetaAPI).(mediaMeta); ok {
		return m.media
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastMedia
}
