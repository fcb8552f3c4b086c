// Package session runs the acquisition loop: it reads camera frames, detects
// and annotates objects, and turns operator capture requests into capture
// log entries.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/waste-detector/internal/annotate"
	"github.com/dj-oyu/waste-detector/internal/camera"
	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

var log = logger.Module("Session")

// ErrNotAcquiring is returned by Tick while the session is idle.
var ErrNotAcquiring = errors.New("session is not acquiring")

// Inferer turns a frame into detections (detector.Adapter).
type Inferer interface {
	Run(ctx context.Context, frame types.Frame) ([]types.Detection, error)
}

// CaptureStore persists capture events (capturelog.Log).
type CaptureStore interface {
	Append(event types.CaptureEvent) error
	CapturesDir() string
	Path() string
}

// Config wires a session to its collaborators.
type Config struct {
	Opener   camera.Opener
	Device   int
	Detector Inferer
	Store    CaptureStore
	Target   RenderTarget
	Metrics  *metrics.Metrics
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the single operator session. All state changes go through its
// methods; Run is the only caller of Tick in production.
type Session struct {
	cfg  Config
	now  func() time.Time
	wake chan struct{}

	mu    sync.Mutex
	state sessionState
}

// New creates an idle session.
func New(cfg Config, opts ...Option) *Session {
	if cfg.Target == nil {
		cfg.Target = nopTarget{}
	}
	s := &Session{
		cfg:  cfg,
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start moves Idle to Acquiring. It is a no-op while acquiring.
func (s *Session) Start() bool {
	s.mu.Lock()
	if s.state.acquisitionActive {
		s.mu.Unlock()
		return false
	}
	s.state.acquisitionActive = true
	s.state.runID = uuid.NewString()
	runID := s.state.runID
	s.mu.Unlock()

	s.cfg.Metrics.SetAcquiring(true)
	s.cfg.Metrics.Inc(metrics.Runs)
	log.Info("acquisition started (run %s)", runID)
	s.cfg.Target.ShowStatus(ControlStart, LevelInfo, "Detección iniciada")

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Stop moves Acquiring to Idle. It is a no-op while idle. An in-flight tick
// completes; the next one does not run.
func (s *Session) Stop() bool {
	if !s.halt() {
		return false
	}
	log.Info("acquisition stopped by operator")
	s.cfg.Target.ShowStatus(ControlStop, LevelInfo, "Detección detenida")
	return true
}

// RequestCapture marks the next successful tick for capture. The request
// stays pending while the session is idle.
func (s *Session) RequestCapture() {
	s.mu.Lock()
	s.state.captureRequested = true
	active := s.state.acquisitionActive
	s.mu.Unlock()

	if active {
		s.cfg.Target.ShowStatus(ControlCapture, LevelInfo, "Captura solicitada")
	} else {
		s.cfg.Target.ShowStatus(ControlCapture, LevelInfo, "Captura pendiente: inicie la detección")
	}
}

// State returns the current acquisition state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.state.acquisitionActive {
		return Acquiring
	}
	return Idle
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	dets := make([]types.Detection, len(s.state.lastDetections))
	copy(dets, s.state.lastDetections)
	return Snapshot{
		State:            s.stateLocked(),
		CaptureRequested: s.state.captureRequested,
		RunID:            s.state.runID,
		FrameNumber:      s.state.lastFrame.Number,
		FrameTime:        s.state.lastFrame.Timestamp,
		LastDetections:   dets,
		LastCapture:      s.state.lastCapture,
	}
}

// LastFrame returns the last annotated frame. The frame is never modified
// after it is stored, so callers may read it without copying.
func (s *Session) LastFrame() types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.lastFrame
}

// halt transitions to Idle and reports whether the state changed.
func (s *Session) halt() bool {
	s.mu.Lock()
	changed := s.state.acquisitionActive
	s.state.acquisitionActive = false
	s.mu.Unlock()

	if changed {
		s.cfg.Metrics.SetAcquiring(false)
	}
	return changed
}

// Run owns the camera until ctx is done. Each Start opens the device and
// ticks until the session returns to Idle, then releases it.
func (s *Session) Run(ctx context.Context) error {
	for {
		if s.State() == Idle {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		s.acquire(ctx)

		if err := ctx.Err(); err != nil {
			s.halt()
			return err
		}
	}
}

func (s *Session) acquire(ctx context.Context) {
	cam, err := s.cfg.Opener(s.cfg.Device)
	if err != nil {
		s.cameraFailed(camera.Unavailable("open", err))
		return
	}
	defer func() {
		if err := cam.Release(); err != nil {
			log.Warn("camera release: %v", err)
		}
	}()

	for ctx.Err() == nil && s.State() == Acquiring {
		err := s.Tick(ctx, cam)
		switch {
		case err == nil, errors.Is(err, ErrNotAcquiring):
		case errors.Is(err, camera.ErrCameraUnavailable):
			return
		default:
			// Inference and storage failures only affect this tick.
			log.Warn("tick: %v", err)
		}
	}
}

// Tick runs one acquisition step on cam: read, detect, annotate, display,
// and capture when requested.
func (s *Session) Tick(ctx context.Context, cam camera.Camera) error {
	if s.State() != Acquiring {
		return ErrNotAcquiring
	}
	start := time.Now()
	defer func() { s.cfg.Metrics.ObserveTick(time.Since(start)) }()

	frame, err := cam.Read()
	if err != nil {
		var uerr *camera.UnavailableError
		if !errors.As(err, &uerr) {
			err = camera.Unavailable("read", err)
		}
		s.cameraFailed(err)
		return err
	}
	s.cfg.Metrics.Inc(metrics.FramesRead)

	dets, err := s.cfg.Detector.Run(ctx, frame)
	if err != nil {
		s.cfg.Target.ShowStatus(ControlAcquisition, LevelWarning, fmt.Sprintf("Error de inferencia: %v", err))
		return err
	}

	annotated := annotate.Annotate(frame, dets)
	s.cfg.Metrics.Inc(metrics.FramesAnnotated)

	s.mu.Lock()
	s.state.lastFrame = annotated
	s.state.lastDetections = dets
	capture := s.state.captureRequested
	s.state.captureRequested = false
	s.mu.Unlock()

	s.cfg.Target.ShowFrame(annotated)

	if capture {
		return s.capture(annotated, dets)
	}
	return nil
}

func (s *Session) capture(frame types.Frame, dets []types.Detection) error {
	event := types.NewCaptureEvent(s.cfg.Store.CapturesDir(), s.now(), frame.Image, dets)

	if err := s.cfg.Store.Append(event); err != nil {
		s.cfg.Target.ShowStatus(ControlCapture, LevelError, fmt.Sprintf("No se pudo guardar la captura: %v", err))
		return err
	}

	s.mu.Lock()
	s.state.lastCapture = event.ImageFilename()
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, nil); err == nil {
		s.cfg.Target.ShowImage(buf.Bytes(), "Captura "+event.ImageFilename())
	}
	s.cfg.Target.ShowStatus(ControlCapture, LevelInfo, fmt.Sprintf(
		"Imagen guardada como %s y datos agregados a %s", event.ImageFilename(), filepath.Base(s.cfg.Store.Path())))

	// One capture ends the acquisition run.
	if s.halt() {
		log.Info("capture %s saved, acquisition stopped", event.ImageFilename())
		s.cfg.Target.ShowStatus(ControlAcquisition, LevelInfo, "Detección detenida tras la captura")
	}
	return nil
}

func (s *Session) cameraFailed(err error) {
	s.cfg.Metrics.Inc(metrics.CameraErrors)
	log.Error("%v", err)
	s.cfg.Target.ShowStatus(ControlAcquisition, LevelError, fmt.Sprintf("Cámara no disponible: %v", err))
	s.halt()
}
