package session

import (
	"fmt"
	"time"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

// State is the acquisition state of a session.
type State int

const (
	Idle State = iota
	Acquiring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON status responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Control names the console control a status message belongs to.
type Control string

const (
	ControlStart       Control = "start"
	ControlStop        Control = "stop"
	ControlCapture     Control = "capture"
	ControlAcquisition Control = "acquisition"
)

// Level is the severity of a status message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// RenderTarget is the passive display the session pushes results to.
type RenderTarget interface {
	ShowFrame(frame types.Frame)
	ShowImage(data []byte, caption string)
	ShowStatus(control Control, level Level, msg string)
}

type nopTarget struct{}

func (nopTarget) ShowFrame(types.Frame)             {}
func (nopTarget) ShowImage([]byte, string)          {}
func (nopTarget) ShowStatus(Control, Level, string) {}

// sessionState is owned by Session and only touched under Session.mu.
type sessionState struct {
	acquisitionActive bool
	captureRequested  bool
	lastFrame         types.Frame // annotated; zero until the first successful tick
	lastDetections    []types.Detection
	lastCapture       string // image filename of the last successful capture
	runID             string
}

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	State            State             `json:"state"`
	CaptureRequested bool              `json:"capture_requested"`
	RunID            string            `json:"run_id,omitempty"`
	FrameNumber      uint64            `json:"frame_number"`
	FrameTime        time.Time         `json:"frame_time,omitzero"`
	LastDetections   []types.Detection `json:"last_detections"`
	LastCapture      string            `json:"last_capture,omitempty"`
}
