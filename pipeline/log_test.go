package pipeline

import (
	"testing"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromGST(t *testing.T) {
	tests := []struct {
		level gst.DebugLevel
		want  zerolog.Level
	}{
		{gst.LevelError, zerolog.ErrorLevel},
		{gst.LevelWarning, zerolog.WarnLevel},
		{gst.LevelFixMe, zerolog.WarnLevel},
		{gst.LevelInfo, zerolog.InfoLevel},
		{gst.LevelDebug, zerolog.DebugLevel},
		{gst.LevelLog, zerolog.TraceLevel},
		{gst.LevelTrace, zerolog.TraceLevel},
		{gst.LevelNone, zerolog.Disabled},
	}
	for _, test := range tests {
		t.Run(test.want.String(), func(t *testing.T) {
			assert.Equal(t, test.want, levelFromGST(test.level))
		})
	}
}
