// Package remote talks to a document store served by cmd/server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	readLimit  = 1 << 20
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	clock      clockwork.Clock
	logger     *zap.Logger
}

func New(baseURL string, clock clockwork.Clock, logger *zap.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock:  clock,
		logger: logger,
	}
}

func (c *Client) roomURL(key string) string {
	return fmt.Sprintf("%s/rooms/%s", c.BaseURL, url.PathEscape(key))
}

func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return docstore.ErrConflict
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}

func fromDocument(d types.DocumentResponse) docstore.Snapshot {
	return docstore.Snapshot{Key: d.Key, Version: d.Version, Room: d.Room}
}

func (c *Client) Get(ctx context.Context, key string) (docstore.Snapshot, error) {
	var doc types.DocumentResponse
	if err := c.do(ctx, http.MethodGet, c.roomURL(key), nil, &doc); err != nil {
		return docstore.Snapshot{}, err
	}
	return fromDocument(doc), nil
}

func (c *Client) CompareAndSwap(ctx context.Context, key string, expected int64, doc *room.Room) (docstore.Snapshot, error) {
	var resp types.DocumentResponse
	var err error
	if doc == nil {
		u := c.roomURL(key) + "?expectedVersion=" + strconv.FormatInt(expected, 10)
		err = c.do(ctx, http.MethodDelete, u, nil, &resp)
	} else {
		err = c.do(ctx, http.MethodPut, c.roomURL(key), types.PutRequest{ExpectedVersion: expected, Room: doc}, &resp)
	}
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return fromDocument(resp), nil
}

func (c *Client) Keys(ctx context.Context) ([]string, error) {
	var resp types.KeysResponse
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

func (c *Client) watchURL(key string) string {
	u := c.roomURL(key) + "/watch"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Watch fails only if the first connection cannot be made. After that, dropped connections
// are redialled with backoff until ctx ends.
func (c *Client) Watch(ctx context.Context, key string) (<-chan docstore.Snapshot, error) {
	conn, err := c.dial(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(chan docstore.Snapshot, 1)
	go c.pump(ctx, key, conn, out)
	return out, nil
}

func (c *Client) dial(ctx context.Context, key string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.watchURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *Client) pump(ctx context.Context, key string, conn *websocket.Conn, out chan docstore.Snapshot) {
	defer close(out)
	last := int64(-1)
	backoff := minBackoff

	for {
		if conn != nil {
			err := c.readAll(ctx, conn, out, &last)
			conn.CloseNow()
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("watch dropped", zap.String("key", key), zap.Error(err), zap.Duration("retry_in", backoff))
			conn = nil
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(backoff):
		}

		next, err := c.dial(ctx, key)
		if err != nil {
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		conn = next
	}
}

// readAll forwards snapshots until the connection fails. Anything older than what the
// reader already got is dropped, which keeps delivery monotonic across reconnects.
func (c *Client) readAll(ctx context.Context, conn *websocket.Conn, out chan docstore.Snapshot, last *int64) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("bad message: %w", err)
		}
		if msg.Type == types.MsgError {
			return fmt.Errorf("server: %s", msg.Error)
		}
		if msg.Version <= *last {
			continue
		}
		*last = msg.Version
		docstore.Offer(out, docstore.Snapshot{Key: msg.Key, Version: msg.Version, Room: msg.Room})
	}
}
