//go:build gocv

package camera

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

// GoCVAvailable reports whether this binary was built with the gocv backend.
const GoCVAvailable = true

// GoCVCamera reads frames through OpenCV's VideoCapture.
type GoCVCamera struct {
	cfg      types.StreamConfig
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	resized  gocv.Mat
	frameNum uint64
}

// NewGoCVOpener returns an Opener backed by gocv.OpenVideoCapture.
func NewGoCVOpener(cfg types.StreamConfig) Opener {
	return func(deviceIndex int) (Camera, error) {
		var source interface{} = deviceIndex
		if cfg.Input != "" {
			source = cfg.Input
		}

		vc, err := gocv.OpenVideoCapture(source)
		if err != nil {
			return nil, Unavailable("open", err)
		}
		if !vc.IsOpened() {
			vc.Close()
			return nil, Unavailable("open", fmt.Errorf("device %v did not open", source))
		}
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.TargetFPS))

		log.Info("gocv capture opened for %v", source)
		return &GoCVCamera{
			cfg:     cfg,
			capture: vc,
			mat:     gocv.NewMat(),
			resized: gocv.NewMat(),
		}, nil
	}
}

// Read grabs and converts one frame to RGBA at the configured size.
func (c *GoCVCamera) Read() (types.Frame, error) {
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		if c.cfg.Input != "" {
			return types.Frame{}, ErrEndOfStream
		}
		return types.Frame{}, Unavailable("read", errors.New("no frame from device"))
	}

	gocv.Resize(c.mat, &c.resized, image.Pt(c.cfg.Width, c.cfg.Height), 0, 0, gocv.InterpolationLinear)

	img, err := c.resized.ToImage()
	if err != nil {
		return types.Frame{}, Unavailable("read", err)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Rect, img, img.Bounds().Min, draw.Src)

	c.frameNum++
	return types.Frame{Image: rgba, Number: c.frameNum, Timestamp: time.Now()}, nil
}

// Release closes the capture and frees OpenCV buffers.
func (c *GoCVCamera) Release() error {
	c.mat.Close()
	c.resized.Close()
	return c.capture.Close()
}
