package policy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ClientConfig configures the connection to the policy server.
type ClientConfig struct {
	Host string
	Port int
	// Timeout bounds a single inference round trip. Zero keeps the
	// original unbounded blocking behavior.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client is a persistent websocket connection to the remote policy
// server. It performs one blocking inference round trip per call; no
// retry, batching or caching.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	log     zerolog.Logger
	meta    map[string]any
}

// Dial connects to the policy server and consumes its metadata
// announcement.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
	cfg.Logger.Info().Str("addr", u.Host).Msg("connecting to policy server")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial policy server %s: %w", u.Host, err)
	}

	// The server announces itself with a msgpack metadata message
	// before accepting observations.
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read server metadata: %w", err)
	}
	var meta map[string]any
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode server metadata: %w", err)
	}

	return &Client{
		conn:    conn,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
		meta:    meta,
	}, nil
}

// Metadata returns the server's dial-time announcement.
func (c *Client) Metadata() map[string]any {
	return c.meta
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Infer sends one observation and blocks until the server replies with
// a trajectory. A response without an actions field, or with an empty
// one, is "no action to execute", not an error. Ragged trajectories are
// rejected here so downstream code can rely on uniform step lengths.
func (c *Client) Infer(ctx context.Context, obs Observation) (ActionResponse, error) {
	deadline := c.deadline(ctx)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return ActionResponse{}, fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return ActionResponse{}, fmt.Errorf("set read deadline: %w", err)
	}

	payload, err := msgpack.Marshal(obs.payload())
	if err != nil {
		return ActionResponse{}, fmt.Errorf("encode observation: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return ActionResponse{}, fmt.Errorf("send observation: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return ActionResponse{}, fmt.Errorf("read inference response: %w", err)
	}

	var resp struct {
		Actions [][]float64 `msgpack:"actions"`
	}
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return ActionResponse{}, fmt.Errorf("decode inference response: %w", err)
	}

	if len(resp.Actions) > 0 {
		want := len(resp.Actions[0])
		for i, step := range resp.Actions {
			if len(step) != want {
				return ActionResponse{}, fmt.Errorf(
					"ragged trajectory: step %d has %d values, step 0 has %d", i, len(step), want)
			}
		}
	}

	c.log.Debug().Int("steps", len(resp.Actions)).Msg("received trajectory")
	return ActionResponse{Actions: resp.Actions}, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	if c.timeout > 0 {
		return time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
