package pipeline

import (
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var gstLogger = log.With().Str("category", "gstreamer").Logger()

// GSTLogFunction routes GStreamer debug output into zerolog. Install it with
// gst.SetLogFunction.
func GSTLogFunction(
	level gst.DebugLevel,
	file string,
	function string,
	line int,
	object *glib.Object,
	message string,
) {
	lLevel := levelFromGST(level)
	if lLevel == zerolog.Disabled {
		return
	}
	gstLogger.WithLevel(lLevel).
		Str("file", file).
		Str("function", function).
		Int("line", line).
		Msg(message)
}

func levelFromGST(level gst.DebugLevel) zerolog.Level {
	switch level {
	case gst.LevelTrace, gst.LevelMemDump, gst.LevelLog:
		return zerolog.TraceLevel
	case gst.LevelDebug:
		return zerolog.DebugLevel
	case gst.LevelInfo:
		return zerolog.InfoLevel
	case gst.LevelWarning, gst.LevelFixMe:
		return zerolog.WarnLevel
	case gst.LevelError:
		return zerolog.ErrorLevel
	}
	return zerolog.Disabled
}
