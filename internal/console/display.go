package console

import (
	"bytes"
	"image/jpeg"
	"sync"
	"time"

	"github.com/dj-oyu/waste-detector/internal/session"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

// Status is the inline message shown next to a control.
type Status struct {
	Level   session.Level `json:"level"`
	Message string        `json:"message"`
	Time    time.Time     `json:"time"`
}

// Display is the session's render target. It keeps the latest frame, the
// last capture preview, and one status line per control.
type Display struct {
	quality int

	mu           sync.Mutex
	frame        types.Frame
	frameSeq     uint64 // bumped by every ShowFrame
	frameJPEG    []byte
	frameEncoded uint64 // frameSeq of frameJPEG
	capture      []byte
	caption      string
	statuses     map[session.Control]Status
}

// NewDisplay creates an empty display encoding snapshots at quality.
func NewDisplay(quality int) *Display {
	if quality < 1 || quality > 100 {
		quality = DefaultConfig().JPEGQuality
	}
	return &Display{
		quality:  quality,
		statuses: make(map[session.Control]Status),
	}
}

// ShowFrame stores the latest annotated frame. Encoding is deferred until a
// client asks for it.
func (d *Display) ShowFrame(frame types.Frame) {
	d.mu.Lock()
	d.frame = frame
	d.frameSeq++
	d.mu.Unlock()
}

// ShowImage stores the last capture preview.
func (d *Display) ShowImage(data []byte, caption string) {
	buf := make([]byte, len(data))
	copy(buf, data)

	d.mu.Lock()
	d.capture = buf
	d.caption = caption
	d.mu.Unlock()
}

// ShowStatus replaces the status line of control.
func (d *Display) ShowStatus(control session.Control, level session.Level, msg string) {
	d.mu.Lock()
	d.statuses[control] = Status{Level: level, Message: msg, Time: time.Now()}
	d.mu.Unlock()
}

// FrameJPEG returns the latest frame as JPEG, or nil before the first frame.
func (d *Display) FrameJPEG() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frame.Empty() {
		return nil, nil
	}
	if d.frameJPEG != nil && d.frameEncoded == d.frameSeq {
		return d.frameJPEG, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, d.frame.Image, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, err
	}
	d.frameJPEG = buf.Bytes()
	d.frameEncoded = d.frameSeq
	return d.frameJPEG, nil
}

// Capture returns the last capture preview and its caption.
func (d *Display) Capture() ([]byte, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture, d.caption
}

// Statuses copies the current status lines.
func (d *Display) Statuses() map[session.Control]Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[session.Control]Status, len(d.statuses))
	for k, v := range d.statuses {
		out[k] = v
	}
	return out
}
