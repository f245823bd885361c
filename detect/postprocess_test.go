package detect

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxIoU(t *testing.T) {
	a := Box{XMin: 0, YMin: 0, XMax: 0.5, YMax: 0.5}
	assert.InDelta(t, 1.0, a.IoU(a), 1e-6)
	assert.InDelta(t, 0.0, a.IoU(Box{XMin: 0.6, YMin: 0.6, XMax: 1, YMax: 1}), 1e-6)
	half := Box{XMin: 0.25, YMin: 0, XMax: 0.75, YMax: 0.5}
	assert.InDelta(t, 1.0/3.0, a.IoU(half), 1e-6)
	assert.Equal(t, float32(0), Box{XMin: 1, XMax: 0}.Area())
}

func TestPostprocess(t *testing.T) {
	raw := &RawDetections{
		Boxes: [][4]float32{
			{0, 0, 0.5, 0.5},
			{0.01, 0.01, 0.51, 0.51},
			{0.5, 0.5, 1, 1},
			{0, 0, 0.5, 0.5},
			{0.2, 0.2, 0.3, 1.4},
		},
		Scores:  []float32{0.9, 0.8, 0.7, 0.6, 0.3},
		Classes: []int{1, 1, 1, 2, 1},
	}
	labels := Labels{1: "person", 2: "dog"}

	dets := Postprocess(raw, labels, PostprocessParams{ScoreThreshold: 0.5, IoUThreshold: 0.5})
	require.Len(t, dets, 3)
	assert.Equal(t, "person", dets[0].Label)
	assert.Equal(t, float32(0.9), dets[0].Score)
	assert.Equal(t, float32(0.7), dets[1].Score)
	assert.Equal(t, "dog", dets[2].Label)
	assert.Equal(t, Box{XMin: 0, YMin: 0, XMax: 0.5, YMax: 0.5}, dets[0].Box)

	dets = Postprocess(raw, labels, PostprocessParams{ScoreThreshold: 0.5, IoUThreshold: 0.5, MaxDetections: 1})
	assert.Len(t, dets, 1)

	dets = Postprocess(raw, labels, PostprocessParams{ScoreThreshold: 0.2, IoUThreshold: 0.5})
	require.Len(t, dets, 4)
	assert.Equal(t, float32(1), dets[3].Box.YMax)
}

func TestPostprocessEmpty(t *testing.T) {
	assert.Empty(t, Postprocess(nil, nil, DefaultPostprocess))
	assert.Empty(t, Postprocess(&RawDetections{}, nil, DefaultPostprocess))
}

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(strings.NewReader(`
# coco subset
background
person
bicycle
`))
	require.Nil(t, err)
	assert.Equal(t, "background", labels.Name(0))
	assert.Equal(t, "person", labels.Name(1))
	assert.Equal(t, "class_7", labels.Name(7))

	labels, err = ReadLabels(strings.NewReader("1 person\n18 dog\n"))
	require.Nil(t, err)
	assert.Equal(t, "dog", labels.Name(18))
	assert.Len(t, labels, 2)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeAnnotate, ModeCopy, ModeDerive} {
		parsed, err := ParseMode(m.String())
		assert.Nil(t, err)
		assert.Equal(t, m, parsed)
	}
	mode, err := ParseMode("")
	assert.Nil(t, err)
	assert.Equal(t, ModeAnnotate, mode)
	_, err = ParseMode("sideband")
	require.NotNil(t, err)
	_, traced := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, traced, "parse errors carry a stack for the zerolog marshaler")
}
