package chart

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/dj-oyu/waste-detector/internal/summary"
)

func TestRenderBarChartEmpty(t *testing.T) {
	data, err := RenderBarChart(nil)
	if err != nil || data != nil {
		t.Fatalf("data=%d bytes err=%v, want nothing", len(data), err)
	}
}

func TestRenderBarChartPNG(t *testing.T) {
	entries := summary.Sorted(map[string]int{"bottle": 4, "can": 2, "aluminium-foil": 1})
	data, err := RenderBarChart(entries)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantWidth := 2*margin + len(entries)*(barWidth+barGap)
	if img.Bounds().Dx() != wantWidth {
		t.Fatalf("width = %d, want %d", img.Bounds().Dx(), wantWidth)
	}

	// Tallest bar reaches the top of the plot area.
	x := margin + barGap/2 + barWidth/2
	r, g, b, _ := img.At(x, baseline-plotHeight+1).RGBA()
	if r>>8 == 255 && g>>8 == 255 && b>>8 == 255 {
		t.Fatal("tallest bar not drawn to full height")
	}
}

func TestFitLabel(t *testing.T) {
	if got := fitLabel("aluminium-foil", 6); got != "alumi." {
		t.Fatalf("got %q", got)
	}
	if got := fitLabel("can", 6); got != "can" {
		t.Fatalf("got %q", got)
	}
	if got := fitLabel("cartón-corrugado", 6); got != "cartó." {
		t.Fatalf("got %q", got)
	}
	if got := fitLabel("cartón", 6); got != "cartón" {
		t.Fatalf("got %q", got)
	}
}

func TestTallestCountClearsAxisTitle(t *testing.T) {
	titleBottom := margin + textHeight
	if top := countY(plotHeight); top < titleBottom {
		t.Fatalf("count over the tallest bar starts at y=%d, inside the axis title ending at y=%d", top, titleBottom)
	}
}
