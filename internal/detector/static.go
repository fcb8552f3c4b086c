package detector

import (
	"context"
	"image"
)

// StaticDetector returns the same results for every frame. It backs dry runs
// of the console without an inference server.
type StaticDetector struct {
	Results []RawDetection
	Err     error
}

// Detect returns a copy of the configured results.
func (s *StaticDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]RawDetection, len(s.Results))
	copy(out, s.Results)
	return out, nil
}

// DemoResults places one box per class name across the frame, for dry runs.
func DemoResults(names []string, bounds image.Rectangle) []RawDetection {
	if len(names) == 0 || bounds.Empty() {
		return nil
	}
	w := bounds.Dx() / len(names)
	h := bounds.Dy()
	out := make([]RawDetection, 0, len(names))
	for i := range names {
		x := float64(bounds.Min.X + i*w)
		out = append(out, RawDetection{
			ClassID:    i,
			Confidence: 0.5 + 0.4*float64(i+1)/float64(len(names)+1),
			Box:        [4]float64{x + 8, float64(bounds.Min.Y) + float64(h)/4, x + float64(w) - 8, float64(bounds.Min.Y) + float64(h)*3/4},
		})
	}
	return out
}
