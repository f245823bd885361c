package detect

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/will7200/ssdtf/element"
)

var (
	ErrNoLoader   = errors.New("detector has no model loader")
	ErrEmptyFrame = errors.New("empty frame")
	ErrFrameSize  = errors.New("frame size does not match configured dimensions")
	ErrNotLoaded  = errors.New("model not loaded")
)

var _ element.Stage = (*Detector)(nil)

type Params struct {
	// Loader loads the model on Null->Ready.
	Loader Loader
	// Mode selects what is pushed downstream.
	Mode Mode
	// Width, Height and Format describe the raw frames the model consumes.
	// When Width and Height are set, frames of another size are rejected.
	Width  int
	Height int
	Format string
	// BytesPerPixel is used with Width and Height to validate frame sizes;
	// 3 when zero.
	BytesPerPixel int
	Labels        Labels
	Postprocess   PostprocessParams
	// CacheSize is the number of frame results kept; zero disables caching.
	CacheSize int64
}

// DefaultPostprocess matches the defaults of the TensorFlow object
// detection API SSD models.
var DefaultPostprocess = PostprocessParams{
	ScoreThreshold: 0.5,
	IoUThreshold:   0.6,
	MaxDetections:  100,
}

// Detector is an element stage running a single shot multibox detector on
// every buffer. Creating one is cheap; the model is only loaded by Start.
type Detector struct {
	params Params
	logger zerolog.Logger

	model Model
	cache *resultCache
}

// New validates params and returns an idle detector.
func New(params Params) (*Detector, error) {
	if params.Loader == nil {
		return nil, ErrNoLoader
	}
	if params.BytesPerPixel <= 0 {
		params.BytesPerPixel = 3
	}
	if params.Labels == nil {
		params.Labels = Labels{}
	}
	if _, err := ParseMode(params.Mode.String()); err != nil {
		return nil, err
	}
	return &Detector{
		params: params,
		logger: log.With().Str("stage", "ssd").Str("mode", params.Mode.String()).Logger(),
	}, nil
}

// Start loads the model and creates the result cache.
func (d *Detector) Start(ctx context.Context) error {
	start := time.Now()
	model, err := d.params.Loader(ctx)
	if err != nil {
		return errors.Wrap(err, "loading model")
	}
	if d.params.CacheSize > 0 {
		cache, err := newResultCache(d.params.CacheSize)
		if err != nil {
			_ = model.Close()
			return err
		}
		d.cache = cache
	}
	d.model = model
	d.logger.Info().Dur("took", time.Since(start)).Msg("Model loaded")
	return nil
}

// Stop releases the model and the cache.
func (d *Detector) Stop() error {
	if d.cache != nil {
		d.cache.close()
		d.cache = nil
	}
	if d.model == nil {
		return nil
	}
	err := d.model.Close()
	d.model = nil
	return errors.Wrap(err, "closing model")
}

// Loaded reports whether the model is held.
func (d *Detector) Loaded() bool {
	return d.model != nil
}

// Process detects objects in buf and returns the buffer to push.
func (d *Detector) Process(buf *element.Buffer) (*element.Buffer, error) {
	if d.model == nil {
		return nil, ErrNotLoaded
	}
	frame, err := d.frame(buf)
	if err != nil {
		return nil, err
	}
	dets, err := d.detect(frame)
	if err != nil {
		return nil, err
	}
	d.logger.Trace().Int("detections", len(dets)).Stringer("buffer", buf).Msg("Processed frame")
	return d.output(buf, dets)
}

func (d *Detector) frame(buf *element.Buffer) (Frame, error) {
	if buf.Size() == 0 {
		return Frame{}, ErrEmptyFrame
	}
	frame := Frame{
		Data:   buf.Bytes(),
		Width:  d.params.Width,
		Height: d.params.Height,
		Format: d.params.Format,
	}
	if frame.Width > 0 && frame.Height > 0 {
		if want := frame.Width * frame.Height * d.params.BytesPerPixel; want != buf.Size() {
			return Frame{}, errors.Wrapf(ErrFrameSize, "got %d bytes, want %d", buf.Size(), want)
		}
	}
	return frame, nil
}

func (d *Detector) detect(frame Frame) ([]Detection, error) {
	var key uint64
	if d.cache != nil {
		key = frameKey(frame)
		if dets, ok := d.cache.get(key); ok {
			return dets, nil
		}
	}
	raw, err := d.model.Infer(frame)
	if err != nil {
		return nil, errors.Wrap(err, "running inference")
	}
	if raw == nil {
		raw = &RawDetections{}
	}
	if err := raw.validate(); err != nil {
		return nil, err
	}
	dets := Postprocess(raw, d.params.Labels, d.params.Postprocess)
	if d.cache != nil {
		d.cache.set(key, dets)
	}
	return dets, nil
}

type derivedPayload struct {
	PTS        int64       `json:"pts"`
	Detections []Detection `json:"detections"`
}

func (d *Detector) output(buf *element.Buffer, dets []Detection) (*element.Buffer, error) {
	switch d.params.Mode {
	case ModeCopy:
		out := buf.Copy()
		out.AddMeta(Meta{Detections: dets})
		return out, nil
	case ModeDerive:
		payload, err := json.Marshal(derivedPayload{PTS: int64(buf.PTS), Detections: dets})
		if err != nil {
			return nil, errors.Wrap(err, "encoding detections")
		}
		return element.NewDerivedBuffer(buf, payload), nil
	default:
		out := buf.MakeWritable()
		out.AddMeta(Meta{Detections: dets})
		return out, nil
	}
}

// DetectionsOf returns the detections attached to buf, if any.
func DetectionsOf(buf *element.Buffer) ([]Detection, bool) {
	m, ok := buf.Meta(MetaAPI).(Meta)
	if !ok {
		return nil, false
	}
	return m.Detections, true
}
