package rtsp

import (
	"testing"

	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/will7200/ssdtf/detect"
	"github.com/will7200/ssdtf/element"
	"github.com/will7200/ssdtf/plugin"
)

func TestReader(t *testing.T) {
	server := NewServerHandler(ServerHandlerParams{})
	assert.NotNil(t, server)
	assert.False(t, server.HasStream())
}

type written struct {
	media *description.Media
	pkt   *rtp.Packet
}

func newTestRelay(t *testing.T) (*relay, *[]written) {
	return newTestRelayFor(t, plugin.RelayFactory, plugin.Options{})
}

func newTestRelayFor(t *testing.T, factory string, opts plugin.Options) (*relay, *[]written) {
	t.Helper()
	r := element.NewRegistry()
	require.Nil(t, plugin.Register(r, opts))
	e, err := r.Make(factory, "")
	require.Nil(t, err)

	var out []written
	rel, err := newRelay(e, func(medi *description.Media, pkt *rtp.Packet) error {
		out = append(out, written{medi, pkt})
		return nil
	}, log.Logger)
	require.Nil(t, err)
	return rel, &out
}

func TestRelayPassesPacketsThroughElement(t *testing.T) {
	rel, out := newTestRelay(t)
	require.Nil(t, rel.start())
	assert.Equal(t, element.StatePlaying, rel.element.State())

	medi := &description.Media{Type: description.MediaTypeVideo}
	for i := uint16(0); i < 3; i++ {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 100 + i, Timestamp: 9000},
			Payload: []byte{0x01, 0x02, byte(i)},
		}
		assert.Equal(t, element.FlowOK, rel.push(medi, pkt))
	}

	require.Len(t, *out, 3)
	for i, w := range *out {
		assert.Same(t, medi, w.media)
		assert.Equal(t, uint16(100+i), w.pkt.SequenceNumber)
		assert.Equal(t, []byte{0x01, 0x02, byte(i)}, w.pkt.Payload)
	}

	assert.Nil(t, rel.stop())
	assert.Equal(t, element.StateNull, rel.element.State())
}

func TestRelayRefusesPacketsBeforeStart(t *testing.T) {
	rel, out := newTestRelay(t)
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2}, Payload: []byte{1}}
	assert.Equal(t, element.FlowFlushing, rel.push(&description.Media{}, pkt))
	assert.Empty(t, *out)
}

func TestRelayRejectsNonRTPOutput(t *testing.T) {
	rel, out := newTestRelay(t)
	require.Nil(t, rel.start())
	assert.Equal(t, element.FlowNotNegotiated, rel.chain(element.NewBuffer([]byte{0x00})))
	assert.Empty(t, *out)
	assert.Nil(t, rel.stop())
}

func TestRelayPassesPacketsThroughDetector(t *testing.T) {
	opts := plugin.Options{Detector: detect.Params{
		Loader:      detect.NopLoader,
		Width:       300,
		Height:      300,
		Postprocess: detect.DefaultPostprocess,
	}}
	rel, out := newTestRelayFor(t, plugin.DetectorFactory, opts.ForPackets())
	require.Nil(t, rel.start())

	medi := &description.Media{Type: description.MediaTypeVideo}
	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 7},
		Payload: []byte{0x65, 0x88, 0x84},
	}
	assert.Equal(t, element.FlowOK, rel.push(medi, pkt))
	require.Len(t, *out, 1)
	assert.Equal(t, uint16(7), (*out)[0].pkt.SequenceNumber)
	assert.Equal(t, pkt.Payload, (*out)[0].pkt.Payload)
	assert.Nil(t, rel.stop())
}

func TestDetectorWithFrameSizeRejectsPackets(t *testing.T) {
	opts := plugin.Options{Detector: detect.Params{Loader: detect.NopLoader, Width: 300, Height: 300}}
	rel, out := newTestRelayFor(t, plugin.DetectorFactory, opts)
	require.Nil(t, rel.start())

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 1}, Payload: []byte{1}}
	assert.Equal(t, element.FlowError, rel.push(&description.Media{}, pkt))
	assert.Empty(t, *out)
	assert.Nil(t, rel.stop())
}
