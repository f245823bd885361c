package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog/log"
)

var _ PartialPipeline = (*SourcePipeline)(nil)

const (
	// SinkName is the appsink frames leave the gst pipeline through.
	SinkName = "ssd_sink"
	// DefaultFormat is the raw format the detector reads.
	DefaultFormat = "RGB"
)

type SourcePipelineElements struct {
	src       *Element
	converter *Element
	scaler    *Element
	sink      *Element
}

type SourcePipelineParams struct {
	// URI to decode; a test pattern is used when empty
	URI string
	// NumBuffers limits the test pattern when positive
	NumBuffers int
	// Format, Width and Height fix the raw frames handed to the element
	Format string
	Width  int
	Height int
}

// Caps is the raw video format frames are converted to.
func (p SourcePipelineParams) Caps() string {
	format := p.Format
	if format == "" {
		format = DefaultFormat
	}
	caps := fmt.Sprintf("video/x-raw,format=%s", format)
	if p.Width > 0 && p.Height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", p.Width, p.Height)
	}
	return caps
}

// SourcePipeline decodes the input and converts it into raw frames for the
// element
type SourcePipeline struct {
	Elements SourcePipelineElements
	Sink     *app.Sink

	params SourcePipelineParams
}

func NewSourcePipeline(params SourcePipelineParams) (sp *SourcePipeline, err error) {
	sp = new(SourcePipeline)
	sp.params = params

	if params.URI != "" {
		sp.Elements.src = NewURIDecodeElement("src", params.URI)
	} else {
		sp.Elements.src = NewTestSrcElement("src", params.NumBuffers)
	}
	sp.Elements.converter = NewConvertElement("src_converter")
	sp.Elements.scaler = NewScaleElement("src_scaler")
	sp.Elements.sink = &Element{
		Factory: "appsink",
		Name:    SinkName,
		Properties: map[string]interface{}{
			"sync": false,
		},
	}
	return
}

func (s *SourcePipeline) Prepare(pipeline *Pipeline) error {
	pipeline.AddElements(
		s.Elements.src,
		s.Elements.converter,
		s.Elements.scaler,
		s.Elements.sink,
	)
	return nil
}

func (s *SourcePipeline) Build(pipeline *Pipeline) error {
	links := []LinkWithCaps{
		{s.Elements.converter, s.Elements.scaler, nil},
		{s.Elements.scaler, s.Elements.sink, gst.NewCapsFromString(s.params.Caps())},
	}
	if s.params.URI == "" {
		links = append([]LinkWithCaps{{s.Elements.src, s.Elements.converter, nil}}, links...)
	} else if _, err := s.Elements.src.el.Connect("pad-added", s.onPadAdded); err != nil {
		return err
	}
	for _, link := range links {
		if err := link.Link(); err != nil {
			return err
		}
	}
	s.Sink = app.SinkFromElement(s.Elements.sink.el)
	return nil
}

// onPadAdded links the decoded video pad of uridecodebin to the converter.
func (s *SourcePipeline) onPadAdded(src *gst.Element, pad *gst.Pad) {
	caps := pad.GetCurrentCaps()
	if caps == nil {
		log.Warn().Str("pad", pad.GetName()).Msg("Pad has no caps")
		return
	}
	name := caps.GetStructureAt(0).Name()
	log.Debug().Str("pad", pad.GetName()).Str("caps", caps.String()).Msg("Pad added")
	if !strings.HasPrefix(name, "video/") {
		return
	}
	if pad.IsLinked() {
		log.Debug().Str("pad", pad.GetName()).Msg("Pad is already linked")
		return
	}
	sinkPad := s.Elements.converter.el.GetStaticPad("sink")
	if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
		log.Error().Str("pad", pad.GetName()).Int("result", int(ret)).Msg("Unable to link decoded pad")
	}
}
