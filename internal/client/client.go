// Package client is the editor's connection to the overlay hub. It keeps one
// websocket open, redialing after a fixed delay whenever it drops.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	writeTimeout          = 5 * time.Second
	dialTimeout           = 10 * time.Second
	outboxSize            = 16
)

var (
	ErrNotConnected = errors.New("not connected to overlay server")
	ErrBackpressure = errors.New("outbound buffer full")
)

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithReadLimit caps one inbound document.
func WithReadLimit(n int64) Option {
	return func(c *Client) { c.readLimit = n }
}

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithConnectHook runs fn (from the connection goroutine) after each successful dial.
func WithConnectHook(fn func()) Option {
	return func(c *Client) { c.onConnect = fn }
}

type Client struct {
	url        string
	onDoc      func([]byte) error
	log        *zap.Logger
	delay      time.Duration
	readLimit  int64
	httpClient *http.Client
	onConnect  func()

	mu   sync.Mutex
	link *link // nil while disconnected
}

// link is the write side of one connection. ctx ends when its writer stops.
type link struct {
	out chan outgoing
	ctx context.Context
}

type outgoing struct {
	doc  []byte
	done chan error
}

// New returns a client for url. onDoc receives every document the hub sends;
// an error from it is logged and the document dropped.
func New(url string, onDoc func([]byte) error, opts ...Option) *Client {
	c := &Client{
		url:   url,
		onDoc: onDoc,
		log:   zap.NewNop(),
		delay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string { return c.url }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Transmit sends doc on the current connection and returns once it has been
// written. Nothing is buffered while disconnected: a document still queued
// when the connection drops fails with ErrNotConnected.
func (c *Client) Transmit(doc []byte) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	req := outgoing{doc: doc, done: make(chan error, 1)}
	select {
	case l.out <- req:
	default:
		return ErrBackpressure
	}

	select {
	case err := <-req.done:
		return writeResult(err)
	case <-l.ctx.Done():
		select {
		case err := <-req.done:
			return writeResult(err)
		default:
			return ErrNotConnected
		}
	}
}

func writeResult(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// Run keeps a connection open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("overlay connection lost, retrying",
			zap.String("url", c.url), zap.Duration("delay", c.delay), zap.Error(err))

		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	dctx, dcancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{HTTPClient: c.httpClient})
	dcancel()
	if err != nil {
		return err
	}
	defer conn.CloseNow()
	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l := &link{out: make(chan outgoing, outboxSize), ctx: ctx}
	c.mu.Lock()
	c.link = l
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.link = nil
		c.mu.Unlock()
	}()

	c.log.Info("connected to overlay server", zap.String("url", c.url))
	if c.onConnect != nil {
		c.onConnect()
	}

	go c.writeLoop(ctx, cancel, conn, l.out)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "bye")
			}
			return err
		}
		if err := c.onDoc(data); err != nil {
			c.log.Warn("dropping malformed document", zap.Error(err), zap.Int("bytes", len(data)))
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan outgoing) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-out:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, req.doc)
			wcancel()
			req.done <- err
			if err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
