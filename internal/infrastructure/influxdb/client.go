package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client is the printer history sink.
//
// Thread Safety: safe for concurrent use. Writes are batched in the
// background; failures reach the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and opens a batched writer on cfg.Bucket.
// ErrDisabled is returned when cfg.Enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(defaultBatchSize).
		SetFlushInterval(uint(defaultFlushInterval.Milliseconds()))
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize)) // #nosec G115 -- positive
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(time.Duration(cfg.FlushInterval) * time.Second / time.Millisecond)) // #nosec G115 -- positive
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{client: client, writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket)}
	c.open.Store(true)
	// Errors initialises its channel lazily and Close writes the same field;
	// read it once here, before Close can run.
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !healthy:
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError sets the callback for background write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.onError.Store(&fn)
}

// IsConnected reports whether the client is still open.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server. A closed client reports ErrNotConnected.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(ctx, c.client)
}

// Flush sends buffered points now. It does nothing once closed.
func (c *Client) Flush() {
	if c == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe on nil and
// safe to call twice.
func (c *Client) Close() error {
	if c == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
