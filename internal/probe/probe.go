// Package probe reads the video parameters of a media location with ffprobe.
package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/vansante/go-ffprobe.v2"

	"github.com/will7200/ssdtf/element"
)

var ErrNoVideoStream = errors.New("no video stream")

// VideoInfo describes the first video stream of a location.
type VideoInfo struct {
	Codec       string
	PixelFormat string
	Width       int
	Height      int
	FrameRate   string
	Duration    time.Duration
}

// Video probes location and returns its first video stream.
func Video(ctx context.Context, location string) (*VideoInfo, error) {
	data, err := ffprobe.ProbeURL(ctx, location)
	if err != nil {
		return nil, errors.Wrapf(err, "probing %s", location)
	}
	info, err := videoInfo(data)
	if err != nil {
		return nil, errors.Wrapf(err, "probing %s", location)
	}
	log.Debug().
		Str("location", location).
		Str("codec", info.Codec).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("Probed video stream")
	return info, nil
}

func videoInfo(data *ffprobe.ProbeData) (*VideoInfo, error) {
	stream := data.FirstVideoStream()
	if stream == nil {
		return nil, ErrNoVideoStream
	}
	info := &VideoInfo{
		Codec:       stream.CodecName,
		PixelFormat: stream.PixFmt,
		Width:       stream.Width,
		Height:      stream.Height,
		FrameRate:   stream.AvgFrameRate,
	}
	if data.Format != nil {
		info.Duration = data.Format.Duration()
	}
	return info, nil
}

// RawCaps are the caps of the stream once decoded to format.
func (v *VideoInfo) RawCaps(format string) *element.Caps {
	return element.NewCaps(element.NewStructure("video/x-raw", map[string]interface{}{
		"format": format,
		"width":  v.Width,
		"height": v.Height,
	}))
}
