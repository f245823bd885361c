package pipeline

import (
	"context"
	"sync"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Pipeline wrapper around go-gst
type Pipeline struct {
	name     string
	elements []*Element
	partials []PartialPipeline
	pipeline *gst.Pipeline
	logger   zerolog.Logger

	mutex sync.Mutex
	loop  *glib.MainLoop
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:   name,
		logger: log.With().Str("pipeline", name).Logger(),
	}
}

func (p *Pipeline) AddElements(elements ...*Element) {
	p.elements = append(p.elements, elements...)
}

func (p *Pipeline) AddPartialPipeline(partial PartialPipeline) {
	p.partials = append(p.partials, partial)
}

// Build prepares every partial pipeline, creates the gst elements, adds them
// to a new gst pipeline and lets the partials link them.
func (p *Pipeline) Build() error {
	var err error
	for _, partial := range p.partials {
		if err = partial.Prepare(p); err != nil {
			return err
		}
	}
	p.pipeline, err = gst.NewPipeline(p.name)
	if err != nil {
		return errors.Wrapf(err, "creating pipeline %s", p.name)
	}
	for _, element := range p.elements {
		if err = element.Build(); err != nil {
			return err
		}
		if err = p.pipeline.Add(element.el); err != nil {
			return errors.Wrapf(err, "adding %s to %s", element.Name, p.name)
		}
	}
	for _, partial := range p.partials {
		if err = partial.Build(p); err != nil {
			return err
		}
	}
	return nil
}

// Start sets the pipeline playing and blocks on mainLoop until end of
// stream, an error message or ctx is done.
func (p *Pipeline) Start(ctx context.Context, mainLoop *glib.MainLoop) error {
	var runErr error
	pipeline := p.pipeline

	p.mutex.Lock()
	p.loop = mainLoop
	p.mutex.Unlock()

	pipeline.GetPipelineBus().AddWatch(func(msg *gst.Message) bool {
		switch msg.Type() {
		case gst.MessageEOS:
			p.logger.Info().Msg("End of Stream")
			mainLoop.Quit()
		case gst.MessageError:
			gErr := msg.ParseError()
			p.logger.Error().
				Str("source", msg.Source()).
				Str("debug", gErr.DebugString()).
				Msg(gErr.Error())
			runErr = errors.Errorf("%s: %s", msg.Source(), gErr.Error())
			mainLoop.Quit()
		case gst.MessageWarning:
			gErr := msg.ParseWarning()
			p.logger.Warn().Str("source", msg.Source()).Msg(gErr.Error())
		case gst.MessageStateChanged:
			if p.logger.GetLevel() <= zerolog.TraceLevel {
				p.logger.Trace().Msg(msg.String())
			}
		}
		return true
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return errors.Wrapf(err, "playing %s", p.name)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mainLoop.Quit()
		case <-done:
		}
	}()

	if err := mainLoop.RunError(); err != nil {
		return err
	}
	return runErr
}

// Quit stops the main loop Start is blocked on.
func (p *Pipeline) Quit() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.loop == nil {
		return false
	}
	p.loop.Quit()
	return true
}

// Finish brings the gst pipeline back to null.
func (p *Pipeline) Finish(ctx context.Context) error {
	if err := p.pipeline.BlockSetState(gst.StateNull); err != nil {
		return errors.Wrapf(err, "stopping %s", p.name)
	}
	p.logger.Debug().Msg("Pipeline stopped")
	return nil
}
