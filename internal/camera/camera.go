package camera

import (
	"errors"
	"fmt"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

var (
	// ErrCameraUnavailable marks open or read failures of the capture device.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrEndOfStream is returned by Read when the source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Camera is an opened frame source. Read blocks until a frame is available;
// there is no read timeout.
type Camera interface {
	Read() (types.Frame, error)
	Release() error
}

// Opener opens the capture device with the given index.
type Opener func(deviceIndex int) (Camera, error)

// UnavailableError wraps the cause of a camera failure.
type UnavailableError struct {
	Op  string // "open" or "read"
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCameraUnavailable) match any UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCameraUnavailable
}

// Unavailable wraps err as an UnavailableError for op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}
