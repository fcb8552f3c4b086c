// Package chart renders the per-class capture summary as a PNG bar chart.
package chart

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/waste-detector/internal/summary"
)

const (
	barWidth   = 48
	barGap     = 24
	margin     = 32
	plotHeight = 200
	textHeight = 13

	// The axis title takes the first text row; bar counts get the second.
	plotTop  = margin + 2*textHeight + 4
	baseline = plotTop + plotHeight
)

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	axisColor  = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	textColor  = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	palette    = []color.RGBA{
		{R: 31, G: 119, B: 180, A: 255},
		{R: 255, G: 127, B: 14, A: 255},
		{R: 44, G: 160, B: 44, A: 255},
		{R: 214, G: 39, B: 40, A: 255},
		{R: 148, G: 103, B: 189, A: 255},
		{R: 140, G: 86, B: 75, A: 255},
	}
)

// RenderBarChart draws one bar per entry, "Clase" on the x axis and
// "Cantidad" on the y axis. It returns nil for no entries.
func RenderBarChart(entries []summary.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	maxCount := 0
	for _, e := range entries {
		maxCount = max(maxCount, e.Count)
	}
	if maxCount == 0 {
		return nil, nil
	}

	width := 2*margin + len(entries)*(barWidth+barGap)
	width = max(width, 2*margin+len("Cantidad")*7)
	height := baseline + 2*textHeight + margin
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Rect, image.NewUniform(background), image.Point{}, draw.Src)

	drawText(img, margin, margin, "Cantidad")
	fill(img, image.Rect(margin-2, plotTop, margin, baseline+1), axisColor)
	fill(img, image.Rect(margin-2, baseline, width-margin, baseline+2), axisColor)
	drawText(img, width-margin-len("Clase")*7, baseline+textHeight+textHeight, "Clase")

	for i, e := range entries {
		x := margin + barGap/2 + i*(barWidth+barGap)
		h := e.Count * plotHeight / maxCount
		fill(img, image.Rect(x, baseline-h, x+barWidth, baseline), palette[i%len(palette)])

		count := strconv.Itoa(e.Count)
		drawText(img, x+(barWidth-len(count)*7)/2, countY(h), count)
		drawText(img, x, baseline+4, fitLabel(e.Label, (barWidth+barGap)/7))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Rect), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawText draws s with its top-left corner at (x, y).
func drawText(img *image.RGBA, x, y int, s string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(s)
}

// countY is the top of the count drawn over a bar of height h.
func countY(h int) int {
	return baseline - h - textHeight - 2
}

// fitLabel shortens s to maxChars runes, marking the cut with a dot.
func fitLabel(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars || maxChars < 2 {
		return s
	}
	return string(runes[:maxChars-1]) + "."
}
