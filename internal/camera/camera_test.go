package camera

import (
	"bytes"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

func newPipeCamera(cfg types.StreamConfig, data []byte) *FFmpegCamera {
	return &FFmpegCamera{
		cfg:    cfg,
		stdout: io.NopCloser(bytes.NewReader(data)),
		buf:    make([]byte, cfg.Width*cfg.Height*bytesPerPixel),
	}
}

func TestFFmpegCameraReadsWholeFrames(t *testing.T) {
	cfg := types.StreamConfig{Width: 2, Height: 2, TargetFPS: 1}
	frameSize := 2 * 2 * bytesPerPixel
	data := make([]byte, frameSize*2)
	for i := range data {
		data[i] = byte(i)
	}

	cam := newPipeCamera(cfg, data)

	first, err := cam.Read()
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first.Number != 1 || first.Bounds().Dx() != 2 || first.Bounds().Dy() != 2 {
		t.Fatalf("unexpected frame %d bounds %v", first.Number, first.Bounds())
	}
	if first.Image.Pix[0] != 0 || first.Image.Pix[frameSize-1] != byte(frameSize-1) {
		t.Fatalf("first frame pixels not copied from pipe")
	}

	second, err := cam.Read()
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second.Image.Pix[0] != byte(frameSize) {
		t.Fatalf("second frame starts at %d", second.Image.Pix[0])
	}
	if &first.Image.Pix[0] == &second.Image.Pix[0] {
		t.Fatal("frames must not share a pixel buffer")
	}
}

func TestFFmpegCameraDeviceClosedIsUnavailable(t *testing.T) {
	cfg := types.StreamConfig{Width: 2, Height: 2, TargetFPS: 1}
	cam := newPipeCamera(cfg, []byte{1, 2, 3})

	_, err := cam.Read()
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	var uerr *UnavailableError
	if !errors.As(err, &uerr) || uerr.Op != "read" {
		t.Fatalf("expected read UnavailableError, got %#v", err)
	}
}

func TestFFmpegCameraFileEndsWithEndOfStream(t *testing.T) {
	cfg := types.StreamConfig{Width: 1, Height: 1, TargetFPS: 1, Input: "clip.mp4"}
	cam := newPipeCamera(cfg, nil)

	if _, err := cam.Read(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestFFmpegArgsSelectInput(t *testing.T) {
	cfg := types.StreamConfig{Width: 640, Height: 480, TargetFPS: 15}

	args := strings.Join(ffmpegArgs(0, cfg), " ")
	if !strings.Contains(args, "fps=15,scale=640:480") || !strings.Contains(args, "-pix_fmt rgba") {
		t.Fatalf("unexpected args: %s", args)
	}

	cfg.Input = "/data/clip.mp4"
	args = strings.Join(ffmpegArgs(0, cfg), " ")
	if !strings.Contains(args, "-i /data/clip.mp4") {
		t.Fatalf("file input not used: %s", args)
	}
}

func TestOpenFFmpegRejectsInvalidConfig(t *testing.T) {
	_, err := OpenFFmpeg(0, types.StreamConfig{})
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func startTestProcess(t *testing.T, cfg types.StreamConfig, name string, args ...string) *FFmpegCamera {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	cam, err := startProcess(exec.Command(name, args...), cfg)
	if err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	return cam
}

func TestFFmpegCameraReleaseRunningProcess(t *testing.T) {
	cfg := types.StreamConfig{Width: 2, Height: 2, TargetFPS: 1}
	cam := startTestProcess(t, cfg, "sleep", "10")

	if err := cam.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := cam.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestFFmpegCameraExitReportsStderr(t *testing.T) {
	cfg := types.StreamConfig{Width: 2, Height: 2, TargetFPS: 1}
	cam := startTestProcess(t, cfg, "sh", "-c", "echo 'no such device' >&2")
	defer cam.Release()

	_, err := cam.Read()
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("error %q does not carry ffmpeg stderr", err)
	}
	if err := cam.Release(); err != nil {
		t.Fatalf("Release after exit: %v", err)
	}
}
