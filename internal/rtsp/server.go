package rtsp

import (
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/will7200/ssdtf/element"
)

// ServerHandler is an RTSP server with a single path: one publisher records
// a stream that readers can play. With an element factory configured, every
// published packet goes through a fresh element before readers get it.
type ServerHandler struct {
	*gortsplib.Server
	mutex     sync.Mutex
	stream    *gortsplib.ServerStream
	publisher *gortsplib.ServerSession
	relay     *relay
	params    ServerHandlerParams
	logger    zerolog.Logger
}

func (sh *ServerHandler) OnRequest(conn *gortsplib.ServerConn, request *base.Request) {
	sh.logger.Trace().Str("request", request.String()).Msg("Received request")
}

func (sh *ServerHandler) OnResponse(conn *gortsplib.ServerConn, response *base.Response) {
	sh.logger.Trace().Str("response", response.String()).Msg("Sent response")
}

// OnConnOpen called when a connection is opened.
func (sh *ServerHandler) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	sh.logger.Debug().Msg("conn opened")
}

// OnConnClose called when a connection is closed.
func (sh *ServerHandler) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	sh.logger.Debug().Msgf("conn closed (%v)", ctx.Error)
}

// OnSessionOpen called when a session is opened.
func (sh *ServerHandler) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	sh.logger.Debug().Msg("session opened")
}

// OnSessionClose called when a session is closed.
func (sh *ServerHandler) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	sh.logger.Debug().Msg("session closed")

	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	// the publisher left: stop its element and disconnect every reader
	if sh.stream != nil && ctx.Session == sh.publisher {
		sh.closeStream()
	}
}

// closeStream must be called with the mutex held.
func (sh *ServerHandler) closeStream() {
	if sh.relay != nil {
		if err := sh.relay.stop(); err != nil {
			sh.logger.Err(err).Msg("Unable to stop element")
		}
		sh.relay = nil
	}
	sh.stream.Close()
	sh.stream = nil
}

// OnDescribe called when receiving a DESCRIBE request.
func (sh *ServerHandler) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	// no one is publishing yet
	if sh.stream == nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, sh.stream, nil
}

// OnAnnounce called when receiving an ANNOUNCE request.
func (sh *ServerHandler) OnAnnounce(ctx *gortsplib.ServerHandlerOnAnnounceCtx) (*base.Response, error) {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	// disconnect existing publisher
	if sh.stream != nil {
		sh.closeStream()
		sh.publisher.Close()
	}

	stream := gortsplib.NewServerStream(sh.Server, ctx.Description)
	if sh.params.NewElement != nil {
		e, err := sh.params.NewElement()
		if err != nil {
			stream.Close()
			sh.logger.Err(err).Msg("Unable to create element for publisher")
			return &base.Response{StatusCode: base.StatusInternalServerError}, err
		}
		r, err := newRelay(e, stream.WritePacketRTP, sh.logger)
		if err == nil {
			err = r.start()
		}
		if err != nil {
			stream.Close()
			sh.logger.Err(err).Msg("Unable to start element for publisher")
			return &base.Response{StatusCode: base.StatusInternalServerError}, err
		}
		sh.relay = r
	}

	sh.stream = stream
	sh.publisher = ctx.Session

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// OnSetup called when receiving a SETUP request.
func (sh *ServerHandler) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	// no one is publishing yet
	if sh.stream == nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, sh.stream, nil
}

// OnPlay called when receiving a PLAY request.
func (sh *ServerHandler) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// OnRecord called when receiving a RECORD request.
func (sh *ServerHandler) OnRecord(ctx *gortsplib.ServerHandlerOnRecordCtx) (*base.Response, error) {
	sh.mutex.Lock()
	stream, r := sh.stream, sh.relay
	sh.mutex.Unlock()

	ctx.Session.OnPacketRTPAny(func(medi *description.Media, forma format.Format, pkt *rtp.Packet) {
		if r != nil {
			r.push(medi, pkt)
			return
		}
		// route the RTP packet to all readers
		if err := stream.WritePacketRTP(medi, pkt); err != nil {
			sh.logger.Warn().Err(err).Msg("Unable to write packet to readers")
		}
	})

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

func (sh *ServerHandler) OnGetParameter(ctx *gortsplib.ServerHandlerOnGetParameterCtx) (*base.Response, error) {
	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

func (sh *ServerHandler) OnSetParameter(ctx *gortsplib.ServerHandlerOnSetParameterCtx) (*base.Response, error) {
	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

func (sh *ServerHandler) HasStream() bool {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	return sh.stream != nil
}

func (sh *ServerHandler) StreamDescription() *description.Session {
	sh.mutex.Lock()
	defer sh.mutex.Unlock()

	return sh.stream.Description()
}

type ServerHandlerParams struct {
	// the RTSP address of the server, to accept connections and send and receive
	// packets with the TCP transport.
	RTSPAddress string
	// NewElement creates the element published packets pass through; packets
	// are relayed untouched when nil
	NewElement func() (*element.Element, error)
}

func NewServerHandler(params ServerHandlerParams) *ServerHandler {
	h := &ServerHandler{
		params: params,
		logger: log.With().Str("rtsp", params.RTSPAddress).Logger(),
	}
	h.Server = &gortsplib.Server{
		Handler:     h,
		RTSPAddress: params.RTSPAddress,
	}
	return h
}
