package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

const writeTimeout = 5 * time.Second

// Writer journals captures asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver).
type Writer struct {
	store     *Store
	sessionID string
	ch        chan Capture
	done      chan struct{}
}

// NewWriter creates a writer bound to a new session ID. Must call Close when done.
func NewWriter(store *Store) *Writer {
	w := &Writer{
		store:     store,
		sessionID: uuid.NewString(),
		ch:        make(chan Capture, 64),
		done:      make(chan struct{}),
	}
	go w.drain()
	return w
}

// SessionID identifies the captures written by this process.
func (w *Writer) SessionID() string {
	if w == nil {
		return ""
	}
	return w.sessionID
}

func (w *Writer) drain() {
	defer close(w.done)
	for c := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.store.InsertCapture(ctx, c); err != nil {
			log.Warn("journal write for %s failed: %v", c.ImageFilename, err)
		}
		cancel()
	}
}

// Record queues event for insertion. It never blocks the caller; when the
// queue is full the event is dropped with a warning.
func (w *Writer) Record(event types.CaptureEvent) {
	if w == nil {
		return
	}
	dets := make([]types.Detection, len(event.Detections))
	copy(dets, event.Detections)

	c := Capture{
		ID:            uuid.NewString(),
		SessionID:     w.sessionID,
		ImageFilename: event.ImageFilename(),
		CapturedAt:    event.Timestamp,
		Detections:    dets,
	}
	select {
	case w.ch <- c:
	default:
		log.Warn("journal queue full, dropping %s", c.ImageFilename)
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	close(w.ch)
	<-w.done
}
