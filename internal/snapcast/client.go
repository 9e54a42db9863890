// Package snapcast implements the audio-topology client against a Snapcast
// server's JSON-RPC control port (newline-delimited JSON over TCP).
// Requests are correlated by id; frames without an id are server
// notifications and are translated into topology events.
package snapcast

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/snapzone/snapzone/internal/topology"
)

const (
	notifBuffer     = 256
	maxFrameSize    = 1 << 20
	defaultTimeout  = 5 * time.Second
	defaultWaitTime = 5 * time.Second
)

// ErrNotConnected is returned for calls made while the connection is down.
var ErrNotConnected = errors.New("snapcast: not connected")

type request struct {
	ID      int            `json:"id"`
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// frame covers both responses (ID set) and notifications (Method set).
type frame struct {
	ID      *int            `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	JSONRPC string          `json:"jsonrpc"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("snapcast: rpc error %d: %s", e.Code, e.Message)
}

// Config configures the client connection.
type Config struct {
	Address       string
	Timeout       time.Duration
	ReconnectWait time.Duration
}

// Client is the Snapcast control connection. It reconnects automatically
// while Run is active; calls made during an outage return ErrNotConnected.
type Client struct {
	cfg    Config
	notifs chan topology.Notification

	mu      sync.Mutex
	conn    net.Conn
	nextID  int
	pending map[int]chan frame
}

// New creates a client. Run must be called to establish the connection.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultWaitTime
	}
	return &Client{
		cfg:     cfg,
		notifs:  make(chan topology.Notification, notifBuffer),
		pending: make(map[int]chan frame),
	}
}

// Notifications returns the inbound event stream. Closed when Run returns.
func (c *Client) Notifications() <-chan topology.Notification {
	return c.notifs
}

// Run dials the server and services the connection until ctx is canceled,
// redialing after ReconnectWait on loss. The returned error is ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	defer close(c.notifs)
	for {
		conn, err := (&net.Dialer{Timeout: c.cfg.Timeout}).DialContext(ctx, "tcp", c.cfg.Address)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("snapcast: dial failed", "address", c.cfg.Address, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ReconnectWait):
				continue
			}
		}

		slog.Info("snapcast: connected", "address", c.cfg.Address)
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()

		c.readLoop(conn)
		c.teardown(conn)
		close(stop)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("snapcast: connection lost, reconnecting", "address", c.cfg.Address)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

// teardown clears the live connection and fails all in-flight requests.
func (c *Client) teardown(conn net.Conn) {
	conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			slog.Warn("snapcast: malformed frame", "err", err)
			continue
		}
		if f.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*f.ID]
			if ok {
				delete(c.pending, *f.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
				close(ch)
			}
			continue
		}
		c.handleNotification(f)
	}
}

// call performs one JSON-RPC round trip.
func (c *Client) call(ctx context.Context, method string, params map[string]any, result any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(request{ID: id, JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		c.abandon(id)
		return err
	}
	data = append(data, '\n')

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		c.abandon(id)
		return err
	}
	if _, err := conn.Write(data); err != nil {
		c.abandon(id)
		return fmt.Errorf("snapcast: write %s: %w", method, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.abandon(id)
		return ctx.Err()
	case <-timer.C:
		c.abandon(id)
		return fmt.Errorf("snapcast: %s: timeout", method)
	case f, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if f.Error != nil {
			return f.Error
		}
		if result != nil && len(f.Result) > 0 {
			if err := json.Unmarshal(f.Result, result); err != nil {
				return fmt.Errorf("snapcast: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) abandon(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Wire shapes for Server.GetStatus.

type statusResult struct {
	Server struct {
		Groups []wireGroup `json:"groups"`
	} `json:"server"`
}

type wireGroup struct {
	ID       string       `json:"id"`
	StreamID string       `json:"stream_id"`
	Muted    bool         `json:"muted"`
	Clients  []wireClient `json:"clients"`
}

type wireClient struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	Config    struct {
		Latency int `json:"latency"`
		Volume  struct {
			Percent int  `json:"percent"`
			Muted   bool `json:"muted"`
		} `json:"volume"`
	} `json:"config"`
}

func (c *Client) status(ctx context.Context) (*statusResult, error) {
	var res statusResult
	if err := c.call(ctx, "Server.GetStatus", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnumerateGroups returns the server's groups with stream bindings and
// member ids.
func (c *Client) EnumerateGroups(ctx context.Context) ([]topology.Group, error) {
	res, err := c.status(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]topology.Group, 0, len(res.Server.Groups))
	for _, g := range res.Server.Groups {
		ids := make([]string, 0, len(g.Clients))
		for _, cl := range g.Clients {
			ids = append(ids, cl.ID)
		}
		sort.Strings(ids)
		groups = append(groups, topology.Group{ID: g.ID, StreamID: g.StreamID, ClientIDs: ids})
	}
	return groups, nil
}

// CreateGroup binds an existing group to the stream and returns its id.
// Snapcast has no group-creation RPC; groups exist per connected client
// set, so this claims a group that is not already serving the stream,
// preferring an empty one.
func (c *Client) CreateGroup(ctx context.Context, streamID string) (string, error) {
	res, err := c.status(ctx)
	if err != nil {
		return "", err
	}
	var candidate string
	for _, g := range res.Server.Groups {
		if g.StreamID == streamID {
			return g.ID, nil
		}
		if candidate == "" || len(g.Clients) == 0 {
			candidate = g.ID
		}
	}
	if candidate == "" {
		return "", fmt.Errorf("snapcast: no group available for stream %s", streamID)
	}
	if err := c.SetGroupStream(ctx, candidate, streamID); err != nil {
		return "", err
	}
	return candidate, nil
}

func (c *Client) SetGroupStream(ctx context.Context, groupID, streamID string) error {
	return c.call(ctx, "Group.SetStream", map[string]any{
		"id":        groupID,
		"stream_id": streamID,
	}, nil)
}

func (c *Client) SetGroupMute(ctx context.Context, groupID string, mute bool) error {
	return c.call(ctx, "Group.SetMute", map[string]any{
		"id":   groupID,
		"mute": mute,
	}, nil)
}

// SetClientGroup moves a client into a group. Group.SetClients replaces
// the full member list, so the current members are fetched first.
func (c *Client) SetClientGroup(ctx context.Context, clientID, groupID string) error {
	res, err := c.status(ctx)
	if err != nil {
		return err
	}
	members := []string{clientID}
	for _, g := range res.Server.Groups {
		if g.ID != groupID {
			continue
		}
		for _, cl := range g.Clients {
			if cl.ID != clientID {
				members = append(members, cl.ID)
			}
		}
	}
	return c.call(ctx, "Group.SetClients", map[string]any{
		"id":      groupID,
		"clients": members,
	}, nil)
}

func (c *Client) SetClientVolume(ctx context.Context, clientID string, volume int) error {
	return c.call(ctx, "Client.SetVolume", map[string]any{
		"id":     clientID,
		"volume": map[string]any{"percent": volume},
	}, nil)
}

func (c *Client) SetClientMute(ctx context.Context, clientID string, mute bool) error {
	return c.call(ctx, "Client.SetVolume", map[string]any{
		"id":     clientID,
		"volume": map[string]any{"muted": mute},
	}, nil)
}

func (c *Client) SetClientLatency(ctx context.Context, clientID string, latencyMS int) error {
	return c.call(ctx, "Client.SetLatency", map[string]any{
		"id":      clientID,
		"latency": latencyMS,
	}, nil)
}

func (c *Client) ControlStream(ctx context.Context, streamID, command string, params map[string]any) error {
	p := map[string]any{
		"id":      streamID,
		"command": command,
	}
	if len(params) > 0 {
		p["params"] = params
	}
	return c.call(ctx, "Stream.Control", p, nil)
}

var _ topology.Client = (*Client)(nil)
