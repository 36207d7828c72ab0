package rippled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("rippled client closed")

// Error is an error response from rippled.
type Error struct {
	Code    string `json:"error"`
	Number  int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrpl %s: %s", e.Code, e.Message)
	}
	return "xrpl " + e.Code
}

// IsNotFound reports whether err is rippled's actNotFound.
func IsNotFound(err error) bool {
	var xe *Error
	return errors.As(err, &xe) && xe.Code == "actNotFound"
}

type envelope struct {
	ID     uint64          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error
}

type result struct {
	env envelope
	err error
}

// Options configures a Client.
type Options struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Header       http.Header
}

// Client is a rippled WebSocket client. Requests are correlated by id over a
// single lazily dialed connection; a broken connection fails in-flight
// requests and is redialed on the next call.
type Client struct {
	opts   Options
	logger *zap.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex // guards conn, closed
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex
	seq     atomic.Uint64
	pending *xsync.Map[uint64, chan result]
}

func NewClient(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		opts:    opts,
		logger:  opts.Logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.DialTimeout, Proxy: http.ProxyFromEnvironment},
		pending: xsync.NewMap[uint64, chan result](),
	}
}

// URL returns the server address.
func (c *Client) URL() string { return c.opts.URL }

func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	c.conn = conn
	c.logger.Debug("Connected to rippled", zap.String("url", c.opts.URL))
	go c.readLoop(conn)
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.drop(conn, err)
			return
		}
		if env.Type != "" && env.Type != "response" {
			// Stream messages are not subscribed to; ignore anything unsolicited.
			continue
		}
		if ch, ok := c.pending.LoadAndDelete(env.ID); ok {
			ch <- result{env: env}
		}
	}
}

// drop forgets a broken connection and fails everything waiting on it.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()
	_ = conn.Close()

	if !closed {
		c.logger.Debug("rippled connection dropped", zap.Error(cause))
	}
	c.pending.Range(func(id uint64, ch chan result) bool {
		if _, ok := c.pending.LoadAndDelete(id); ok {
			ch <- result{err: fmt.Errorf("connection lost: %w", cause)}
		}
		return true
	})
}

// Request sends command with params and decodes the result into out.
func (c *Client) Request(ctx context.Context, command string, params map[string]any, out any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}

	id := c.seq.Add(1)
	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["id"] = id
	msg["command"] = command

	ch := make(chan result, 1)
	c.pending.Store(id, ch)

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	werr := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if werr != nil {
		c.pending.Delete(id)
		c.drop(conn, werr)
		return fmt.Errorf("send %s: %w", command, werr)
	}

	select {
	case <-ctx.Done():
		c.pending.Delete(id)
		return ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.env.Status == "error" || res.env.Code != "" {
			e := res.env.Error
			return &e
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.env.Result, out); err != nil {
			return fmt.Errorf("decode %s: %w", command, err)
		}
		return nil
	}
}

// Close terminates the connection. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}
