// Package capturelog persists capture events: one JPEG per capture and one
// CSV row per detection.
package capturelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

var log = logger.Module("CaptureLog")

// Header is the first row of the structured log.
var Header = []string{"nombre_imagen", "clase", "confianza", "timestamp"}

// Write stages reported by StorageWriteError.
const (
	StageInit   = "init"
	StageImage  = "image"
	StageRows   = "rows"
	StageCommit = "commit"
)

// ErrStorageWrite marks failures to persist a capture.
var ErrStorageWrite = errors.New("storage write failed")

// StorageWriteError reports which part of a capture could not be written.
type StorageWriteError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write (%s) %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

func (e *StorageWriteError) Is(target error) bool {
	return target == ErrStorageWrite
}

// Journal receives every capture that was fully written.
type Journal interface {
	Record(event types.CaptureEvent)
}

// Log is the append-only capture store. Appends are serialized.
type Log struct {
	mu          sync.Mutex
	capturesDir string
	logPath     string
	quality     int
	journal     Journal
	metrics     *metrics.Metrics
}

// Option configures a Log.
type Option func(*Log)

// WithJPEGQuality sets the encoder quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(l *Log) {
		if q >= 1 && q <= 100 {
			l.quality = q
		}
	}
}

// WithJournal mirrors successful appends to j.
func WithJournal(j Journal) Option {
	return func(l *Log) { l.journal = j }
}

// WithMetrics counts captures and rows in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// New creates a Log storing images in capturesDir and rows in logPath.
func New(capturesDir, logPath string, opts ...Option) *Log {
	l := &Log{
		capturesDir: capturesDir,
		logPath:     logPath,
		quality:     jpeg.DefaultQuality,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CapturesDir returns the directory images are written to.
func (l *Log) CapturesDir() string { return l.capturesDir }

// Path returns the structured log path.
func (l *Log) Path() string { return l.logPath }

// EnsureInitialized creates the captures directory and, if the log file does
// not exist yet, writes it with the header row. Safe to call repeatedly.
func (l *Log) EnsureInitialized() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureInitializedLocked()
}

func (l *Log) ensureInitializedLocked() error {
	if err := os.MkdirAll(l.capturesDir, 0o755); err != nil {
		return &StorageWriteError{Stage: StageInit, Path: l.capturesDir, Err: err}
	}
	if dir := filepath.Dir(l.logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StorageWriteError{Stage: StageInit, Path: dir, Err: err}
		}
	}

	f, err := os.OpenFile(l.logPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return &StorageWriteError{Stage: StageInit, Path: l.logPath, Err: err}
	}

	w := csv.NewWriter(f)
	_ = w.Write(Header)
	w.Flush()
	if err := errors.Join(w.Error(), f.Close()); err != nil {
		return &StorageWriteError{Stage: StageInit, Path: l.logPath, Err: err}
	}
	log.Info("created capture log %s", l.logPath)
	return nil
}

// Append writes the event's image and then one row per detection, in order.
// The image is staged under a temporary name and renamed into place after
// the rows are written; an existing image at the same path is replaced.
func (l *Log) Append(event types.CaptureEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.appendLocked(event)
	if err != nil {
		l.metrics.Inc(metrics.StorageErrors)
		log.Error("capture %s failed: %v", event.ImageFilename(), err)
		return err
	}

	l.metrics.Inc(metrics.CapturesWritten)
	l.metrics.Add(metrics.RowsAppended, uint64(len(event.Detections)))
	if l.journal != nil {
		l.journal.Record(event)
	}
	return nil
}

func (l *Log) appendLocked(event types.CaptureEvent) error {
	if event.Image == nil {
		return &StorageWriteError{Stage: StageImage, Path: event.ImagePath, Err: errors.New("no image")}
	}
	if err := l.ensureInitializedLocked(); err != nil {
		return err
	}

	staged, err := l.stageImage(event)
	if err != nil {
		return &StorageWriteError{Stage: StageImage, Path: event.ImagePath, Err: err}
	}

	if err := l.appendRows(event.Rows()); err != nil {
		_ = os.Remove(staged)
		return &StorageWriteError{Stage: StageRows, Path: l.logPath, Err: err}
	}

	if _, err := os.Stat(event.ImagePath); err == nil {
		log.Warn("%s already exists, overwriting (capture in the same second)", event.ImagePath)
	}
	if err := os.Rename(staged, event.ImagePath); err != nil {
		_ = os.Remove(staged)
		log.Error("%d rows in %s reference %s, which was not written",
			len(event.Detections), l.logPath, event.ImageFilename())
		return &StorageWriteError{Stage: StageCommit, Path: event.ImagePath, Err: err}
	}

	log.Info("saved %s with %d detections", event.ImagePath, len(event.Detections))
	return nil
}

func (l *Log) stageImage(event types.CaptureEvent) (string, error) {
	dir := filepath.Dir(event.ImagePath)
	f, err := os.CreateTemp(dir, ".staging-*.jpg")
	if err != nil {
		return "", err
	}
	name := f.Name()

	err = jpeg.Encode(f, event.Image, &jpeg.Options{Quality: l.quality})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (l *Log) appendRows(rows []types.LogRow) error {
	if len(rows) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.logPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	for _, row := range rows {
		if err := w.Write(row.Record()); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Rows reads every row of the log, header excluded. A missing log yields no rows.
func (l *Log) Rows() ([]types.LogRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadRows(f)
}

// ReadRows parses a structured log. The header row is skipped when present.
func ReadRows(r io.Reader) ([]types.LogRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	var rows []types.LogRow
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read capture log: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		rows = append(rows, types.LogRow{
			ImageFilename: rec[0],
			ClassLabel:    rec[1],
			Confidence:    rec[2],
			Timestamp:     rec[3],
		})
	}
}

func isHeader(rec []string) bool {
	for i, h := range Header {
		if rec[i] != h {
			return false
		}
	}
	return true
}
