package detect

import (
	"sort"
)

// PostprocessParams tunes the filtering of raw model output.
type PostprocessParams struct {
	ScoreThreshold float32
	IoUThreshold   float32
	MaxDetections  int
}

// Postprocess turns raw model output into labelled detections: candidates
// under the score threshold are dropped, overlapping boxes of the same class
// are suppressed and at most MaxDetections are kept, best first.
func Postprocess(raw *RawDetections, labels Labels, params PostprocessParams) []Detection {
	candidates := make([]Detection, 0, raw.Len())
	for i := 0; i < raw.Len(); i++ {
		if raw.Scores[i] < params.ScoreThreshold {
			continue
		}
		b := raw.Boxes[i]
		candidates = append(candidates, Detection{
			ClassID: raw.Classes[i],
			Label:   labels.Name(raw.Classes[i]),
			Score:   raw.Scores[i],
			Box:     Box{YMin: clamp(b[0]), XMin: clamp(b[1]), YMax: clamp(b[2]), XMax: clamp(b[3])},
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	kept := make([]Detection, 0, len(candidates))
	for _, c := range candidates {
		if params.MaxDetections > 0 && len(kept) >= params.MaxDetections {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.ClassID == c.ClassID && k.Box.IoU(c.Box) > params.IoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func clamp(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
