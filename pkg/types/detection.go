package types

import (
	"fmt"
	"image"
)

// BoundingBox holds integer pixel coordinates of a detection.
// A valid box has X1 < X2 and Y1 < Y2.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the box has positive area.
func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Clip restricts the box to bounds. The second result is false when nothing
// of the box remains inside bounds.
func (b BoundingBox) Clip(bounds image.Rectangle) (BoundingBox, bool) {
	r := image.Rectangle{
		Min: image.Point{X: b.X1, Y: b.Y1},
		Max: image.Point{X: b.X2, Y: b.Y2},
	}.Intersect(bounds)
	if r.Empty() {
		return BoundingBox{}, false
	}
	return BoundingBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}, true
}

// Detection represents one recognized object instance in a frame.
type Detection struct {
	ClassLabel string      `json:"class_label"`
	Confidence float64     `json:"confidence"` // 0.0-1.0
	Box        BoundingBox `json:"box"`
}

// FormattedConfidence renders the confidence with exactly two decimals.
func (d Detection) FormattedConfidence() string {
	return fmt.Sprintf("%.2f", d.Confidence)
}

// Label is the overlay text drawn next to the box.
func (d Detection) Label() string {
	return d.ClassLabel + " " + d.FormattedConfidence()
}
