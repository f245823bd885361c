package probe

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"
)

func TestVideoInfo(t *testing.T) {
	data := &ffprobe.ProbeData{
		Streams: []*ffprobe.Stream{
			{CodecType: "audio", CodecName: "aac"},
			{CodecType: "video", CodecName: "h264", PixFmt: "yuv420p", Width: 1920, Height: 1080, AvgFrameRate: "30/1"},
		},
		Format: &ffprobe.Format{DurationSeconds: 10},
	}
	info, err := videoInfo(data)
	require.Nil(t, err)
	assert.Equal(t, "h264", info.Codec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, 10*time.Second, info.Duration)

	caps := info.RawCaps("RGB")
	w, ok := caps.StructureAt(0).Int("width")
	assert.True(t, ok)
	assert.Equal(t, 1920, w)
	f, _ := caps.StructureAt(0).Str("format")
	assert.Equal(t, "RGB", f)
}

func TestVideoInfoWithoutVideo(t *testing.T) {
	_, err := videoInfo(&ffprobe.ProbeData{Streams: []*ffprobe.Stream{{CodecType: "audio"}}})
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func TestVideoMissingFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Video(ctx, "./does-not-exist.mp4")
	assert.NotNil(t, err)
}
