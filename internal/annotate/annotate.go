// Package annotate draws detection overlays onto camera frames.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

const (
	boxThickness = 2
	labelPadding = 2
)

var (
	boxColor       = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	labelColor     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	labelFace      = basicfont.Face7x13
	labelHeight    = labelFace.Height + 2*labelPadding
	labelAscent    = labelFace.Ascent
	labelCharWidth = labelFace.Advance
)

// Annotate returns a copy of frame with a box and a "<class> <conf>" label
// drawn for every detection. The input frame is not modified.
func Annotate(frame types.Frame, detections []types.Detection) types.Frame {
	out := frame.Clone()
	if out.Empty() {
		return out
	}
	for _, det := range detections {
		drawDetection(out.Image, det)
	}
	return out
}

func drawDetection(img *image.RGBA, det types.Detection) {
	box, ok := det.Box.Clip(img.Rect)
	if !ok {
		return
	}
	drawRect(img, box.Rect(), boxColor, boxThickness)
	drawLabel(img, box, det.Label())
}

// drawRect draws an outline of rect with the given thickness, growing inward.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	t := min(thickness, r.Dx(), r.Dy())
	if t <= 0 {
		return
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // top
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // left
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Rect), src, image.Point{}, draw.Src)
	}
}

// labelRect places the label strip just above the box's top-left corner.
// When that would cross the top edge the strip moves inside the box top.
// The strip is shifted left when it would overflow the right edge, and never
// starts left of the frame.
func labelRect(bounds image.Rectangle, box types.BoundingBox, text string) image.Rectangle {
	w := len(text)*labelCharWidth + 2*labelPadding

	y := box.Y1 - labelHeight
	if y < bounds.Min.Y {
		y = box.Y1
	}
	x := box.X1
	if x+w > bounds.Max.X {
		x = bounds.Max.X - w
	}
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	return image.Rect(x, y, x+w, y+labelHeight).Intersect(bounds)
}

func drawLabel(img *image.RGBA, box types.BoundingBox, text string) {
	r := labelRect(img.Rect, box, text)
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: labelFace,
		Dot:  fixed.P(r.Min.X+labelPadding, r.Min.Y+labelPadding+labelAscent),
	}
	d.DrawString(text)
}
