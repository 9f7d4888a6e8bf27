package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrConnectionClosed is returned to callers whose request was in flight
// when the bridge connection dropped.
var ErrConnectionClosed = errors.New("bridge: connection closed")

// Client is the content-side end of the bridge. It dials lazily, correlates
// responses to requests by id, and redials after a dropped connection.
type Client struct {
	url string

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan Response
	pendingMu sync.Mutex
}

// NewClient returns a client for a ws:// or wss:// bridge URL.
func NewClient(url string) *Client {
	return &Client{
		url:     url,
		pending: make(map[int64]chan Response),
	}
}

// FetchMintInfo issues a fetchMintInfo request and decodes the envelope.
func (c *Client) FetchMintInfo(ctx context.Context, address string) (mintinfo.Result, error) {
	resp, err := c.Call(ctx, Request{Type: TypeFetchMintInfo, MintAddress: address})
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// Call sends req with a fresh correlation id and waits for its response.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return Response{}, err
	}

	req.ID = c.seq.Add(1)
	ch := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		c.deletePending(req.ID)
		return Response{}, fmt.Errorf("bridge: marshal: %w", err)
	}

	c.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	c.mu.Unlock()
	if err != nil {
		c.deletePending(req.ID)
		c.dropConn(conn)
		return Response{}, fmt.Errorf("bridge: send: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrConnectionClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.deletePending(req.ID)
		return Response{}, ctx.Err()
	}
}

// Close drops the connection and fails every pending call.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.failPending()
	return nil
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *Client) ensureConn(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	slog.Debug("bridge dialing", "url", c.url)
	conn, _, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	slog.Info("bridge connected", "url", c.url)
	return conn, nil
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("bridge client read loop exit", "error", err)
			c.dropConn(conn)
			return
		}

		var resp Response
		if json.Unmarshal(data, &resp) != nil || resp.ID == 0 {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// dropConn forgets conn if it is still current and fails pending calls, so
// the next Call redials.
func (c *Client) dropConn(conn net.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
	if current {
		c.failPending()
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) deletePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
