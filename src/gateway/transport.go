package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameSender writes one text frame to the gateway.
type FrameSender interface {
	Send(ctx context.Context, frame []byte) error
}

// ConnectError means the websocket could not be opened.
type ConnectError struct {
	URL    string
	Status int
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("connect %s: http %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

var ErrConnectionClosed = errors.New("gateway connection closed")

const closeWriteTimeout = time.Second

// Connection is one websocket to the gateway. The send and receive halves
// have their own locks so a slow reader never delays a heartbeat.
// A Connection is never reused after Close.
type Connection struct {
	ws  *websocket.Conn
	url string

	sendMu sync.Mutex
	recvMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// GatewayURL stamps the version onto a gateway URL, replacing any query.
func GatewayURL(raw string, version int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("gateway url %q must use ws or wss", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = url.Values{"v": []string{strconv.Itoa(version)}}.Encode()
	return u.String(), nil
}

// Connect opens a websocket to the gateway. The read limit is left at zero
// so frames of any size are accepted.
func Connect(ctx context.Context, dialer *websocket.Dialer, rawURL string, version int) (*Connection, error) {
	target, err := GatewayURL(rawURL, version)
	if err != nil {
		return nil, &ConnectError{URL: rawURL, Err: err}
	}
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	ws, res, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		cerr := &ConnectError{URL: target, Err: err}
		if res != nil {
			cerr.Status = res.StatusCode
			res.Body.Close()
		}
		return nil, cerr
	}
	ws.SetReadLimit(0)

	return &Connection{
		ws:     ws,
		url:    target,
		closed: make(chan struct{}),
	}, nil
}

func (c *Connection) URL() string { return c.url }

// Send writes a text frame. The context deadline, if any, bounds the write.
func (c *Connection) Send(ctx context.Context, frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive blocks until the next data frame arrives. A close frame from the
// server is returned as *websocket.CloseError.
func (c *Connection) Receive() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CloseWithCode sends a close frame and closes the socket.
func (c *Connection) CloseWithCode(code int, reason string) error {
	c.sendMu.Lock()
	err := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
	c.sendMu.Unlock()

	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// Close closes the socket without a close frame. It is safe to call more
// than once and unblocks a pending Receive.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}
