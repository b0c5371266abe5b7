package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/richinsley/comfymcp/metrics"
)

// ErrEventChannelClosed is returned when the event channel ends before the job does
var ErrEventChannelClosed = errors.New("event channel closed")

// Frame is one raw message read from the event channel
type Frame struct {
	Binary bool
	Data   []byte
}

// WebSocketConnection is the event channel of a single job correlation id.
// Frames are read by a background goroutine until Close is called or the
// connection fails.
type WebSocketConnection struct {
	WebSocketURL string
	ClientID     string
	Conn         *websocket.Conn

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
	readErr   error // set before frames is closed
}

// OpenEventChannel dials ws(s)://<base>/ws?clientId=<clientID>. The handshake
// must complete within the client's open timeout.
func (c *ComfyClient) OpenEventChannel(ctx context.Context, clientID string) (*WebSocketConnection, error) {
	w := &WebSocketConnection{
		WebSocketURL: c.eventChannelURL(clientID),
		ClientID:     clientID,
		frames:       make(chan Frame),
		done:         make(chan struct{}),
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.openTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, w.WebSocketURL, c.authHeader())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("open event channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("open event channel: %w", err)
	}
	w.Conn = conn
	metrics.EventChannelsActive.Inc()

	go w.handleMessages()
	return w, nil
}

// Handle incoming WebSocket messages
func (w *WebSocketConnection) handleMessages() {
	defer close(w.frames)
	for {
		mt, message, err := w.Conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				// closed by us
			default:
				slog.Warn("event channel read error", "client_id", w.ClientID, "error", err)
			}
			w.readErr = err
			return
		}
		f := Frame{Binary: mt == websocket.BinaryMessage, Data: message}
		select {
		case w.frames <- f:
		case <-w.done:
			return
		}
	}
}

// Frames returns the inbound frame stream. It is closed when the connection ends.
func (w *WebSocketConnection) Frames() <-chan Frame {
	return w.frames
}

// Err returns the read error that ended the frame stream, if any. Only valid
// once Frames has been closed.
func (w *WebSocketConnection) Err() error {
	return w.readErr
}

// Close releases the connection. It is safe to call more than once.
func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.Conn != nil {
			_ = w.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = w.Conn.Close()
			metrics.EventChannelsActive.Dec()
		}
	})
	return err
}
