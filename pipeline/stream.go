package pipeline

import (
	"strings"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var _ PartialPipeline = (*StreamPipeline)(nil)

// SrcName is the appsrc processed buffers re-enter the gst pipeline through.
const SrcName = "ssd_src"

type StreamPipelineElements struct {
	appsrc    *Element
	converter *Element
	sink      *Element
}

type StreamPipelineParams struct {
	// Caps of the buffers pushed by the element
	Caps string
	// SinkFactory consumes the processed stream, fakesink by default
	SinkFactory    string
	SinkProperties map[string]interface{}
}

// StreamPipeline takes the buffers the element pushes and hands them to the
// configured sink
type StreamPipeline struct {
	Elements StreamPipelineElements
	Src      *app.Source

	params StreamPipelineParams
}

func NewStreamPipeline(params StreamPipelineParams) (sp *StreamPipeline, err error) {
	sp = new(StreamPipeline)
	sp.params = params
	if sp.params.SinkFactory == "" {
		sp.params.SinkFactory = "fakesink"
	}

	sp.Elements.appsrc = &Element{
		Factory: "appsrc",
		Name:    SrcName,
		Properties: map[string]interface{}{
			"is-live": true,
			"format":  int(gst.FormatTime),
		},
	}
	if strings.HasPrefix(params.Caps, "video/x-raw") {
		sp.Elements.converter = NewConvertElement("stream_converter")
	}
	sp.Elements.sink = &Element{
		Factory:    sp.params.SinkFactory,
		Name:       "stream_sink",
		Properties: sp.params.SinkProperties,
	}
	return
}

func (s *StreamPipeline) Prepare(pipeline *Pipeline) error {
	pipeline.AddElements(s.Elements.appsrc, s.Elements.sink)
	if s.Elements.converter != nil {
		pipeline.AddElements(s.Elements.converter)
	}
	return nil
}

func (s *StreamPipeline) Build(pipeline *Pipeline) error {
	links := []LinkWithCaps{{s.Elements.appsrc, s.Elements.sink, nil}}
	if s.Elements.converter != nil {
		links = []LinkWithCaps{
			{s.Elements.appsrc, s.Elements.converter, nil},
			{s.Elements.converter, s.Elements.sink, nil},
		}
	}
	for _, link := range links {
		if err := link.Link(); err != nil {
			return err
		}
	}
	s.Src = app.SrcFromElement(s.Elements.appsrc.el)
	if s.params.Caps != "" {
		s.Src.SetCaps(gst.NewCapsFromString(s.params.Caps))
	}
	return nil
}
