//go:build !gocv

package camera

import (
	"errors"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

// GoCVAvailable reports whether this binary was built with the gocv backend.
const GoCVAvailable = false

// NewGoCVOpener fails every open; rebuild with -tags gocv to enable OpenCV capture.
func NewGoCVOpener(types.StreamConfig) Opener {
	return func(int) (Camera, error) {
		return nil, Unavailable("open", errors.New("built without gocv support (use -tags gocv)"))
	}
}
