package detect

import (
	"fmt"
)

// MetaAPI names the buffer meta carrying detections.
const MetaAPI = "ssd-detection-meta"

// Box is a bounding box in normalized [0,1] image coordinates.
type Box struct {
	XMin float32 `json:"xmin"`
	YMin float32 `json:"ymin"`
	XMax float32 `json:"xmax"`
	YMax float32 `json:"ymax"`
}

func (b Box) Area() float32 {
	w, h := b.XMax-b.XMin, b.YMax-b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns the intersection over union of two boxes.
func (b Box) IoU(other Box) float32 {
	inter := Box{
		XMin: max32(b.XMin, other.XMin),
		YMin: max32(b.YMin, other.YMin),
		XMax: min32(b.XMax, other.XMax),
		YMax: min32(b.YMax, other.YMax),
	}.Area()
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one object found in a frame.
type Detection struct {
	ClassID int     `json:"class_id"`
	Label   string  `json:"label"`
	Score   float32 `json:"score"`
	Box     Box     `json:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s(%.2f)@[%.2f,%.2f,%.2f,%.2f]", d.Label, d.Score, d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
}

// Meta is attached to buffers in annotate and copy mode.
type Meta struct {
	Detections []Detection
}

func (Meta) API() string {
	return MetaAPI
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
