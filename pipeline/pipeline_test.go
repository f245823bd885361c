package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/will7200/ssdtf/internal/rtsp"
)

func init() {
	// Initialize GStreamer
	gst.Init(nil)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func setupFakeRTSP(ctx context.Context, listen string) *rtsp.ServerHandler {
	server := rtsp.NewServerHandler(rtsp.ServerHandlerParams{
		RTSPAddress: listen,
	})

	go func() {
		log.Info().Str("address", listen).Msg("Starting RTSP server")
		server.StartAndWait()
	}()

	go func() {
		<-ctx.Done()
		server.Close()
	}()
	return server
}

func runGSTPipeline(loop *glib.MainLoop, pipeline *gst.Pipeline) error {
	pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		switch msg.Type() {
		case gst.MessageEOS, gst.MessageError:
			loop.Quit()
		}
		return true
	})
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return err
	}
	err := loop.RunError()
	pipeline.BlockSetState(gst.StateNull)
	return err
}

func streamToRTSP(ctx context.Context, encoding string, location string) *glib.MainLoop {
	pipeline, err := gst.NewPipelineFromString(fmt.Sprintf(`videotestsrc
! videoconvert ! videoscale ! video/x-raw,width=640,height=480
! %s
! rtspclientsink protocols=GST_RTSP_LOWER_TRANS_TCP location=%s`, encoding, location))
	if err != nil {
		panic(err)
	}

	loop := glib.NewMainLoop(glib.MainContextDefault(), false)
	go func() {
		if err := runGSTPipeline(loop, pipeline); err != nil {
			log.Err(err).Msg("rtsp client pipeline failed")
		}
	}()

	go func() {
		<-ctx.Done()
		loop.Quit()
	}()
	return loop
}
