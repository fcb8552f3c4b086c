package types

import (
	"image"
	"path/filepath"
	"time"
)

// TimestampLayout is the second-resolution layout of capture timestamps (YYYYMMDD_HHMMSS).
// Two captures inside the same second share a timestamp and therefore an image path.
const TimestampLayout = "20060102_150405"

// CaptureEvent is the result of one operator-triggered capture.
// It is immutable after creation.
type CaptureEvent struct {
	Timestamp  string      // TimestampLayout formatted capture time
	ImagePath  string      // <capturesDir>/<timestamp>.jpg
	Detections []Detection // Snapshot of the frame's detections, may be empty
	Image      image.Image // Annotated frame to persist
}

// NewCaptureEvent builds the event for a capture taken at t.
// The detections slice is copied so later ticks cannot alter it.
func NewCaptureEvent(capturesDir string, t time.Time, img image.Image, detections []Detection) CaptureEvent {
	ts := t.Format(TimestampLayout)
	dets := make([]Detection, len(detections))
	copy(dets, detections)
	return CaptureEvent{
		Timestamp:  ts,
		ImagePath:  filepath.Join(capturesDir, ts+".jpg"),
		Detections: dets,
		Image:      img,
	}
}

// ImageFilename returns the base name of the image path.
func (e CaptureEvent) ImageFilename() string {
	return filepath.Base(e.ImagePath)
}

// Rows expands the event into one log row per detection, in detection order.
func (e CaptureEvent) Rows() []LogRow {
	rows := make([]LogRow, 0, len(e.Detections))
	for _, d := range e.Detections {
		rows = append(rows, LogRow{
			ImageFilename: e.ImageFilename(),
			ClassLabel:    d.ClassLabel,
			Confidence:    d.FormattedConfidence(),
			Timestamp:     e.Timestamp,
		})
	}
	return rows
}

// LogRow is the persisted form of one (capture, detection) pair.
type LogRow struct {
	ImageFilename string `json:"nombre_imagen"`
	ClassLabel    string `json:"clase"`
	Confidence    string `json:"confianza"`
	Timestamp     string `json:"timestamp"`
}

// Record returns the row as CSV fields in header order.
func (r LogRow) Record() []string {
	return []string{r.ImageFilename, r.ClassLabel, r.Confidence, r.Timestamp}
}
