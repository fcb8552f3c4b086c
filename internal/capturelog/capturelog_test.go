package capturelog

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

type recordingJournal struct {
	events []types.CaptureEvent
}

func (j *recordingJournal) Record(e types.CaptureEvent) { j.events = append(j.events, e) }

func newTestLog(t *testing.T, opts ...Option) (*Log, string) {
	t.Helper()
	root := t.TempDir()
	l := New(filepath.Join(root, "capturas"), filepath.Join(root, "detecciones.csv"), opts...)
	if err := l.EnsureInitialized(); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	return l, root
}

func testEvent(dir string, at time.Time, dets ...types.Detection) types.CaptureEvent {
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	return types.NewCaptureEvent(dir, at, img, dets)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func listImages(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var captureTime = time.Date(2024, 5, 17, 14, 3, 9, 0, time.Local)

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	l, _ := newTestLog(t)
	if err := l.EnsureInitialized(); err != nil {
		t.Fatalf("second EnsureInitialized: %v", err)
	}

	got := readFile(t, l.Path())
	if got != "nombre_imagen,clase,confianza,timestamp\n" {
		t.Fatalf("log = %q", got)
	}
}

func TestEnsureInitializedKeepsExistingRows(t *testing.T) {
	l, _ := newTestLog(t)
	if err := l.Append(testEvent(l.CapturesDir(), captureTime, types.Detection{ClassLabel: "can", Confidence: 0.5})); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.EnsureInitialized(); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}
	if n := strings.Count(readFile(t, l.Path()), "\n"); n != 2 {
		t.Fatalf("log has %d lines, want 2", n)
	}
}

func TestAppendWithoutDetectionsWritesImageOnly(t *testing.T) {
	m := metrics.New()
	l, _ := newTestLog(t, WithMetrics(m))

	ev := testEvent(l.CapturesDir(), captureTime)
	if err := l.Append(ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	if imgs := listImages(t, l.CapturesDir()); len(imgs) != 1 || imgs[0] != "20240517_140309.jpg" {
		t.Fatalf("images = %v", imgs)
	}
	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
	if m.CapturesWritten.Load() != 1 || m.RowsAppended.Load() != 0 {
		t.Fatalf("metrics captures=%d rows=%d", m.CapturesWritten.Load(), m.RowsAppended.Load())
	}
}

func TestAppendWritesRowsInOrder(t *testing.T) {
	j := &recordingJournal{}
	l, _ := newTestLog(t, WithJournal(j))

	dets := []types.Detection{
		{ClassLabel: "bottle", Confidence: 0.87},
		{ClassLabel: "can", Confidence: 0.91},
		{ClassLabel: "bottle", Confidence: 0.5},
	}
	ev := testEvent(l.CapturesDir(), captureTime, dets...)
	if err := l.Append(ev); err != nil {
		t.Fatalf("append: %v", err)
	}

	want := "nombre_imagen,clase,confianza,timestamp\n" +
		"20240517_140309.jpg,bottle,0.87,20240517_140309\n" +
		"20240517_140309.jpg,can,0.91,20240517_140309\n" +
		"20240517_140309.jpg,bottle,0.50,20240517_140309\n"
	if got := readFile(t, l.Path()); got != want {
		t.Fatalf("log =\n%s\nwant\n%s", got, want)
	}
	if _, err := os.Stat(ev.ImagePath); err != nil {
		t.Fatalf("image missing: %v", err)
	}
	if len(j.events) != 1 || j.events[0].Timestamp != "20240517_140309" {
		t.Fatalf("journal events = %+v", j.events)
	}
}

func TestRoundTripReconstructsDetections(t *testing.T) {
	l, _ := newTestLog(t)

	first := testEvent(l.CapturesDir(), captureTime,
		types.Detection{ClassLabel: "bottle", Confidence: 0.874},
		types.Detection{ClassLabel: "can", Confidence: 0.9})
	second := testEvent(l.CapturesDir(), captureTime.Add(time.Minute),
		types.Detection{ClassLabel: "paper", Confidence: 0.3})
	for _, ev := range []types.CaptureEvent{first, second} {
		if err := l.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	got := map[string]int{}
	for _, r := range rows {
		if r.ImageFilename == first.ImageFilename() {
			got[r.ClassLabel+"|"+r.Confidence]++
		}
	}
	want := map[string]int{"bottle|0.87": 1, "can|0.90": 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSameSecondCaptureOverwritesImage(t *testing.T) {
	l, _ := newTestLog(t)

	a := testEvent(l.CapturesDir(), captureTime, types.Detection{ClassLabel: "can", Confidence: 0.5})
	b := testEvent(l.CapturesDir(), captureTime.Add(300*time.Millisecond), types.Detection{ClassLabel: "bottle", Confidence: 0.6})
	if a.ImagePath != b.ImagePath {
		t.Fatalf("expected colliding paths, got %s and %s", a.ImagePath, b.ImagePath)
	}
	for _, ev := range []types.CaptureEvent{a, b} {
		if err := l.Append(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if imgs := listImages(t, l.CapturesDir()); len(imgs) != 1 {
		t.Fatalf("images = %v, want one file", imgs)
	}
	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0].ImageFilename != rows[1].ImageFilename {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestAppendReportsFailedStage(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		root := t.TempDir()
		logPath := filepath.Join(root, "detecciones.csv")
		if err := os.Mkdir(logPath, 0o755); err != nil {
			t.Fatal(err)
		}
		l := New(filepath.Join(root, "capturas"), logPath)

		ev := testEvent(l.CapturesDir(), captureTime, types.Detection{ClassLabel: "can", Confidence: 0.5})
		err := l.Append(ev)

		var serr *StorageWriteError
		if !errors.As(err, &serr) || serr.Stage != StageRows {
			t.Fatalf("expected rows stage error, got %v", err)
		}
		if !errors.Is(err, ErrStorageWrite) {
			t.Fatalf("expected ErrStorageWrite, got %v", err)
		}
		if imgs := listImages(t, l.CapturesDir()); len(imgs) != 0 {
			t.Fatalf("staged image left behind: %v", imgs)
		}
	})

	t.Run("image", func(t *testing.T) {
		l, root := newTestLog(t)
		ev := testEvent(filepath.Join(root, "missing"), captureTime)

		err := l.Append(ev)
		var serr *StorageWriteError
		if !errors.As(err, &serr) || serr.Stage != StageImage {
			t.Fatalf("expected image stage error, got %v", err)
		}
	})
}

func TestRowsWithoutLog(t *testing.T) {
	root := t.TempDir()
	l := New(filepath.Join(root, "capturas"), filepath.Join(root, "none.csv"))

	rows, err := l.Rows()
	if err != nil || rows != nil {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}

func TestReadRowsRejectsMalformedLog(t *testing.T) {
	if _, err := ReadRows(strings.NewReader("nombre_imagen,clase\nx,y\n")); err == nil {
		t.Fatal("expected error for short rows")
	}
}
