package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gst/go-glib/glib"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/will7200/ssdtf/element"
)

type DetectionPipelineParams struct {
	// Name of the gst pipeline
	Name string
	// Element sits between the source and the stream side
	Element *element.Element
	Source  SourcePipelineParams
	Stream  StreamPipelineParams
	// OnBuffer sees every buffer the element pushes
	OnBuffer func(buf *element.Buffer)
}

type InternalError struct {
	error  error
	target *Pipeline
}

func (i InternalError) Error() string {
	return fmt.Sprintf("Error occurred in pipeline %s: %s", i.target.name, i.error)
}

func (i InternalError) Unwrap() error {
	return i.error
}

// DetectionPipeline runs a gst pipeline whose decoded frames pass through an
// element before reaching the configured sink.
type DetectionPipeline struct {
	source  *SourcePipeline
	stream  *StreamPipeline
	bridge  *Bridge
	element *element.Element

	basePipeline *Pipeline

	wg     *sync.WaitGroup
	errors chan InternalError
	once   sync.Once
}

func NewDetectionPipeline(params DetectionPipelineParams) (_ *DetectionPipeline, err error) {
	if params.Element == nil {
		return nil, errors.New("detection pipeline needs an element")
	}
	if params.Name == "" {
		params.Name = "ssd-pipeline"
	}
	dp := new(DetectionPipeline)
	dp.element = params.Element
	dp.source, err = NewSourcePipeline(params.Source)
	if err != nil {
		return
	}
	dp.stream, err = NewStreamPipeline(params.Stream)
	if err != nil {
		return
	}

	pipeline := NewPipeline(params.Name)
	pipeline.AddPartialPipeline(dp.source)
	pipeline.AddPartialPipeline(dp.stream)
	if err = pipeline.Build(); err != nil {
		return
	}

	dp.bridge, err = NewBridge(BridgeParams{
		Element:  params.Element,
		Sink:     dp.source.Sink,
		Src:      dp.stream.Src,
		OnBuffer: params.OnBuffer,
	})
	if err != nil {
		return
	}

	dp.wg = &sync.WaitGroup{}
	dp.basePipeline = pipeline
	dp.errors = make(chan InternalError, 1)
	return dp, nil
}

// Start brings the element to playing and runs the gst pipeline in the
// background until end of stream, an error or ctx is done.
func (dp *DetectionPipeline) Start(ctx context.Context) error {
	if err := dp.element.SetState(element.StatePlaying); err != nil {
		return err
	}
	dp.bridge.SetActive(true)

	dp.wg.Add(1)
	go func(pipeline *Pipeline) {
		defer dp.wg.Done()
		pipeline.pipeline.Ref()
		defer pipeline.pipeline.Unref()

		loop := glib.NewMainLoop(glib.MainContextDefault(), false)
		err := pipeline.Start(ctx, loop)
		if fErr := pipeline.Finish(ctx); fErr != nil {
			err = multierr.Append(err, fErr)
		}
		if err != nil {
			dp.errors <- InternalError{error: err, target: pipeline}
		}
	}(dp.basePipeline)

	go func() {
		dp.wg.Wait()
		dp.once.Do(func() { close(dp.errors) })
	}()
	return nil
}

// Run until the pipeline finishes, returning its error if any
func (dp *DetectionPipeline) Run() error {
	for err := range dp.errors {
		return err
	}
	return nil
}

// Wait for the pipeline to stop running
func (dp *DetectionPipeline) Wait() {
	dp.wg.Wait()
}

// Counts returns how many buffers went into and came out of the element.
func (dp *DetectionPipeline) Counts() (in, out uint64) {
	return dp.bridge.Counts()
}

// Stop the pipeline and bring the element back to null
func (dp *DetectionPipeline) Stop() error {
	var errs []error
	if !dp.basePipeline.Quit() {
		log.Debug().Str("pipeline", dp.basePipeline.name).Msg("Pipeline was never started")
	}
	dp.Wait()
	dp.once.Do(func() { close(dp.errors) })
	dp.bridge.Close()
	if err := dp.element.SetState(element.StateNull); err != nil {
		errs = append(errs, err)
	}
	for err := range dp.errors {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}
