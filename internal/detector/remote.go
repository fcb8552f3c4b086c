package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RemoteDetector sends JPEG frames to an inference server over a websocket
// and reads one JSON result array per frame.
type RemoteDetector struct {
	serverURL string
	timeout   time.Duration
	dialer    *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemoteDetector targets ws://<host>/ws.
func NewRemoteDetector(host string, timeout time.Duration) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	return NewRemoteDetectorURL(u.String(), timeout)
}

// NewRemoteDetectorURL targets a full websocket URL.
func NewRemoteDetectorURL(serverURL string, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteDetector{
		serverURL: serverURL,
		timeout:   timeout,
		dialer:    websocket.DefaultDialer,
	}
}

// Detect runs one request/response round trip. A failed round trip drops the
// connection so the next call reconnects.
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connLocked(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.dropLocked(err)
		return nil, fmt.Errorf("send frame: %w", err)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		d.dropLocked(err)
		return nil, fmt.Errorf("read results: %w", err)
	}

	var results []RawDetection
	if err := json.Unmarshal(message, &results); err != nil {
		d.dropLocked(err)
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}

func (d *RemoteDetector) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log.Info("connecting to detection server %s", d.serverURL)
	conn, _, err := d.dialer.DialContext(dialCtx, d.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.serverURL, err)
	}
	log.Info("connected to detection server")

	d.conn = conn
	return conn, nil
}

func (d *RemoteDetector) dropLocked(cause error) {
	if d.conn == nil {
		return
	}
	log.Warn("connection to detection server lost: %v", cause)
	_ = d.conn.Close()
	d.conn = nil
}

// Close closes the current connection, if any.
func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	_ = d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}
