package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

const (
	bytesPerPixel = 4
	exitGrace     = 2 * time.Second
)

var log = logger.Module("Camera")

// FFmpegCamera decodes a capture device (or a video file) to raw RGBA frames
// through an ffmpeg child process.
type FFmpegCamera struct {
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error

	cfg    types.StreamConfig
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer // written by exec until the process has been waited for

	frameNum uint64
	buf      []byte
}

// NewFFmpegOpener returns an Opener that starts ffmpeg with cfg for each run.
func NewFFmpegOpener(cfg types.StreamConfig) Opener {
	return func(deviceIndex int) (Camera, error) {
		return OpenFFmpeg(deviceIndex, cfg)
	}
}

// OpenFFmpeg starts ffmpeg for the device index, or for cfg.Input when set.
func OpenFFmpeg(deviceIndex int, cfg types.StreamConfig) (*FFmpegCamera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.TargetFPS <= 0 {
		return nil, Unavailable("open", fmt.Errorf("invalid stream config %dx%d@%d", cfg.Width, cfg.Height, cfg.TargetFPS))
	}

	c, err := startProcess(exec.Command("ffmpeg", ffmpegArgs(deviceIndex, cfg)...), cfg)
	if err != nil {
		return nil, err
	}

	log.Info("ffmpeg started for %s (%dx%d@%dfps)", inputName(deviceIndex, cfg), cfg.Width, cfg.Height, cfg.TargetFPS)
	return c, nil
}

// startProcess starts cmd with its stdout as the raw frame pipe.
func startProcess(cmd *exec.Cmd, cfg types.StreamConfig) (*FFmpegCamera, error) {
	c := &FFmpegCamera{
		cfg: cfg,
		cmd: cmd,
		buf: make([]byte, cfg.Width*cfg.Height*bytesPerPixel),
	}
	c.cmd.Stderr = &c.stderr

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return nil, Unavailable("open", err)
	}
	c.stdout = stdout

	if err := c.cmd.Start(); err != nil {
		return nil, Unavailable("open", fmt.Errorf("ffmpeg start: %w", err))
	}
	return c, nil
}

func inputName(deviceIndex int, cfg types.StreamConfig) string {
	if cfg.Input != "" {
		return cfg.Input
	}
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("video=%d", deviceIndex)
	}
	return fmt.Sprintf("/dev/video%d", deviceIndex)
}

func ffmpegArgs(deviceIndex int, cfg types.StreamConfig) []string {
	var args []string
	switch {
	case cfg.Input != "":
		args = []string{"-re", "-i", cfg.Input}
	case runtime.GOOS == "windows":
		args = []string{"-f", "dshow", "-i", inputName(deviceIndex, cfg)}
	default:
		args = []string{"-f", "v4l2", "-i", inputName(deviceIndex, cfg)}
	}

	return append(args,
		"-loglevel", "error",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", cfg.TargetFPS, cfg.Width, cfg.Height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

// Read blocks until one full frame has been decoded.
func (c *FFmpegCamera) Read() (types.Frame, error) {
	if _, err := io.ReadFull(c.stdout, c.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if c.cfg.Input != "" {
				return types.Frame{}, ErrEndOfStream
			}
			c.reap()
			return types.Frame{}, Unavailable("read", fmt.Errorf("device closed: %s", c.stderrTail()))
		}
		return types.Frame{}, Unavailable("read", err)
	}

	pix := make([]byte, len(c.buf))
	copy(pix, c.buf)

	c.frameNum++
	return types.Frame{
		Image: &image.RGBA{
			Pix:    pix,
			Stride: c.cfg.Width * bytesPerPixel,
			Rect:   image.Rect(0, 0, c.cfg.Width, c.cfg.Height),
		},
		Number:    c.frameNum,
		Timestamp: time.Now(),
	}, nil
}

// Release stops ffmpeg. Safe to call more than once.
func (c *FFmpegCamera) Release() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cmd == nil || c.cmd.Process == nil {
			if c.stdout != nil {
				err = c.stdout.Close()
			}
			return
		}
		// Wait closes the stdout pipe.
		_ = c.cmd.Process.Kill()
		c.wait()
		log.Debug("ffmpeg released after %d frames", c.frameNum)
	})
	return err
}

// wait reaps the process once. A killed or exited ffmpeg is the normal end
// of a run, so waitErr is only logged.
func (c *FFmpegCamera) wait() {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
}

// reap waits for a process whose output has ended, killing it after
// exitGrace. stderr is complete once it returns.
func (c *FFmpegCamera) reap() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		c.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(exitGrace):
		_ = c.cmd.Process.Kill()
		<-done
	}
	if c.waitErr != nil {
		log.Debug("ffmpeg exited: %v", c.waitErr)
	}
}

// stderrTail must only be called after the process has been waited for.
func (c *FFmpegCamera) stderrTail() string {
	s := c.stderr.String()
	if len(s) > 256 {
		s = s[len(s)-256:]
	}
	return s
}
