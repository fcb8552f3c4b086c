package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

var log = logger.Module("Detector")

// ErrModelInference marks failures of the detection capability.
var ErrModelInference = errors.New("model inference failed")

// InferenceError wraps the cause of a failed detection call.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrModelInference) match any InferenceError.
func (e *InferenceError) Is(target error) bool {
	return target == ErrModelInference
}

// RawDetection is one result as emitted by the detection capability.
type RawDetection struct {
	ClassID    int        `json:"class_id"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in pixels
}

// Detector is the opaque detection capability.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]RawDetection, error)
}

// AdapterConfig tunes normalization of raw results.
type AdapterConfig struct {
	Names         []string // class vocabulary, used when a result carries no label
	MinConfidence float64  // results below are dropped; 0 keeps everything
	Metrics       *metrics.Metrics
}

// Adapter normalizes raw capability output into Detection records.
type Adapter struct {
	det Detector
	cfg AdapterConfig
}

// NewAdapter wraps det.
func NewAdapter(det Detector, cfg AdapterConfig) *Adapter {
	return &Adapter{det: det, cfg: cfg}
}

// Run detects objects in frame. Result order is the capability's emission order.
func (a *Adapter) Run(ctx context.Context, frame types.Frame) ([]types.Detection, error) {
	if frame.Empty() {
		return nil, &InferenceError{Err: errors.New("empty frame")}
	}
	if a.det == nil {
		return nil, &InferenceError{Err: errors.New("no detector configured")}
	}

	start := time.Now()
	raw, err := a.det.Detect(ctx, frame.Image)
	a.cfg.Metrics.ObserveInference(time.Since(start))
	if err != nil {
		a.cfg.Metrics.Inc(metrics.InferenceErrors)
		return nil, &InferenceError{Err: err}
	}

	return a.normalize(raw, frame.Bounds()), nil
}

func (a *Adapter) normalize(raw []RawDetection, bounds image.Rectangle) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for i, r := range raw {
		label := a.label(r)
		if label == "" {
			log.Debug("dropping result %d: no label for class %d", i, r.ClassID)
			continue
		}

		conf := clampUnit(r.Confidence)
		if conf < a.cfg.MinConfidence {
			continue
		}

		box, ok := types.BoundingBox{
			X1: roundCoord(r.Box[0]),
			Y1: roundCoord(r.Box[1]),
			X2: roundCoord(r.Box[2]),
			Y2: roundCoord(r.Box[3]),
		}.Clip(bounds)
		if !ok {
			log.Debug("dropping result %d (%s): box %v outside frame %v", i, label, r.Box, bounds)
			continue
		}

		out = append(out, types.Detection{
			ClassLabel: label,
			Confidence: conf,
			Box:        box,
		})
	}
	return out
}

func (a *Adapter) label(r RawDetection) string {
	if r.Label != "" {
		return r.Label
	}
	if r.ClassID >= 0 && r.ClassID < len(a.cfg.Names) {
		return a.cfg.Names[r.ClassID]
	}
	return ""
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundCoord(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
