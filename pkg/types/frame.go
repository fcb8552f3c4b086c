package types

import (
	"image"
	"time"
)

// Frame represents one decoded camera frame with metadata.
// Width, height and channel order (RGBA) stay fixed for a session's lifetime.
type Frame struct {
	Image     *image.RGBA // Pixel buffer
	Number    uint64      // Sequential frame number within the acquisition run
	Timestamp time.Time   // Frame capture timestamp
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Rect.Empty()
}

// Bounds returns the pixel bounds of the frame.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Rect
}

// Clone returns a deep copy of the frame. The pixel buffer is not shared.
func (f Frame) Clone() Frame {
	out := f
	if f.Image == nil {
		return out
	}
	pix := make([]byte, len(f.Image.Pix))
	copy(pix, f.Image.Pix)
	out.Image = &image.RGBA{
		Pix:    pix,
		Stride: f.Image.Stride,
		Rect:   f.Image.Rect,
	}
	return out
}

// StreamConfig holds the acquisition parameters shared by camera backends.
type StreamConfig struct {
	Width     int    // Scaled frame width
	Height    int    // Scaled frame height
	TargetFPS int    // Frames per second requested from the source
	Input     string // Optional file path read instead of the capture device
}
