package detect

import (
	"context"

	"github.com/pkg/errors"
)

// Frame is the input handed to a model.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// RawDetections is the output of a single shot multibox detector head:
// boxes as [ymin, xmin, ymax, xmax] normalized coordinates, with one score
// and class per box.
type RawDetections struct {
	Boxes   [][4]float32
	Scores  []float32
	Classes []int
}

// Len is the number of candidate boxes.
func (r *RawDetections) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Boxes)
}

func (r *RawDetections) validate() error {
	if len(r.Scores) != len(r.Boxes) || len(r.Classes) != len(r.Boxes) {
		return errors.Errorf("model output mismatch: %d boxes, %d scores, %d classes",
			len(r.Boxes), len(r.Scores), len(r.Classes))
	}
	return nil
}

// Model runs inference on one frame.
type Model interface {
	Infer(frame Frame) (*RawDetections, error)
	Close() error
}

// Loader loads a model; it is only called on the Null->Ready transition.
type Loader func(ctx context.Context) (Model, error)

// ModelFunc adapts a function to a Model with nothing to release.
type ModelFunc func(frame Frame) (*RawDetections, error)

func (f ModelFunc) Infer(frame Frame) (*RawDetections, error) {
	return f(frame)
}

func (f ModelFunc) Close() error {
	return nil
}

// NopLoader loads a model that never finds anything.
func NopLoader(context.Context) (Model, error) {
	return ModelFunc(func(Frame) (*RawDetections, error) {
		return &RawDetections{}, nil
	}), nil
}
