package detector

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

func testFrame(w, h int) types.Frame {
	return types.Frame{Image: image.NewRGBA(image.Rect(0, 0, w, h)), Number: 1}
}

func TestAdapterPreservesEmissionOrder(t *testing.T) {
	det := &StaticDetector{Results: []RawDetection{
		{Label: "can", Confidence: 0.91, Box: [4]float64{50, 50, 90, 90}},
		{Label: "bottle", Confidence: 0.87, Box: [4]float64{10, 10, 40, 40}},
		{Label: "can", Confidence: 0.30, Box: [4]float64{0, 0, 5, 5}},
	}}
	a := NewAdapter(det, AdapterConfig{})

	got, err := a.Run(context.Background(), testFrame(100, 100))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"can 0.91", "bottle 0.87", "can 0.30"}
	if len(got) != len(want) {
		t.Fatalf("got %d detections, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Label() != want[i] {
			t.Errorf("detection %d = %q, want %q", i, d.Label(), want[i])
		}
	}
}

func TestAdapterNormalizesResults(t *testing.T) {
	det := &StaticDetector{Results: []RawDetection{
		{ClassID: 1, Confidence: 1.4, Box: [4]float64{-5.4, 2.6, 120, 30}},   // label from names, clamped, clipped
		{ClassID: 7, Confidence: 0.5, Box: [4]float64{0, 0, 10, 10}},         // unknown class
		{Label: "cup", Confidence: 0.5, Box: [4]float64{200, 200, 300, 300}}, // outside frame
		{Label: "cup", Confidence: 0.5, Box: [4]float64{30, 30, 30, 60}},     // zero width
		{Label: "lid", Confidence: -0.2, Box: [4]float64{1, 1, 9, 9}},
	}}
	a := NewAdapter(det, AdapterConfig{Names: []string{"bottle", "can"}})

	got, err := a.Run(context.Background(), testFrame(100, 80))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(got), got)
	}

	first := got[0]
	if first.ClassLabel != "can" || first.Confidence != 1 {
		t.Errorf("first = %+v", first)
	}
	wantBox := types.BoundingBox{X1: 0, Y1: 3, X2: 100, Y2: 30}
	if first.Box != wantBox {
		t.Errorf("box = %+v, want %+v", first.Box, wantBox)
	}
	if got[1].ClassLabel != "lid" || got[1].Confidence != 0 {
		t.Errorf("second = %+v", got[1])
	}
	for _, d := range got {
		if !d.Box.Valid() {
			t.Errorf("invalid box %+v", d.Box)
		}
	}
}

func TestAdapterMinConfidence(t *testing.T) {
	det := &StaticDetector{Results: []RawDetection{
		{Label: "bottle", Confidence: 0.2, Box: [4]float64{0, 0, 10, 10}},
		{Label: "can", Confidence: 0.6, Box: [4]float64{0, 0, 10, 10}},
	}}
	a := NewAdapter(det, AdapterConfig{MinConfidence: 0.5})

	got, err := a.Run(context.Background(), testFrame(20, 20))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 1 || got[0].ClassLabel != "can" {
		t.Fatalf("got %+v", got)
	}
}

func TestAdapterWrapsFailures(t *testing.T) {
	m := metrics.New()
	cause := errors.New("server gone")
	a := NewAdapter(&StaticDetector{Err: cause}, AdapterConfig{Metrics: m})

	_, err := a.Run(context.Background(), testFrame(10, 10))
	if !errors.Is(err, ErrModelInference) {
		t.Fatalf("expected ErrModelInference, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped: %v", err)
	}
	if n := m.InferenceErrors.Load(); n != 1 {
		t.Fatalf("inference errors = %d, want 1", n)
	}

	_, err = a.Run(context.Background(), types.Frame{})
	if !errors.Is(err, ErrModelInference) {
		t.Fatalf("empty frame: expected ErrModelInference, got %v", err)
	}

	_, err = NewAdapter(nil, AdapterConfig{}).Run(context.Background(), testFrame(10, 10))
	if !errors.Is(err, ErrModelInference) {
		t.Fatalf("nil detector: expected ErrModelInference, got %v", err)
	}
}

func TestDemoResultsFitFrame(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)
	raw := DemoResults([]string{"bottle", "can", "paper"}, bounds)
	a := NewAdapter(&StaticDetector{Results: raw}, AdapterConfig{Names: []string{"bottle", "can", "paper"}})

	got, err := a.Run(context.Background(), testFrame(640, 480))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d detections, want 3", len(got))
	}
}
