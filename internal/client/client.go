// Package client is the facade over the cloud bridge: one account
// session, the device directory, the realtime channel and the per-device
// state engines.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/config"
	"github.com/mkurtov/haierbridge/internal/device"
	"github.com/mkurtov/haierbridge/internal/directory"
	"github.com/mkurtov/haierbridge/internal/model"
	"github.com/mkurtov/haierbridge/internal/realtime"
	"github.com/mkurtov/haierbridge/internal/session"
	"github.com/mkurtov/haierbridge/internal/transport"
)

// Client owns the full cloud-facing stack for one account.
type Client struct {
	cfg      *config.Config
	log      zerolog.Logger
	http     *http.Client
	session  *session.Manager
	registry *model.Registry
	dir      *directory.Directory
	channel  *realtime.Channel

	// AvailabilityFunc, when set before Start, receives device
	// online/offline transitions from the push channel.
	AvailabilityFunc func(mac string, online bool)

	mu      sync.Mutex
	engines map[string]device.Appliance // keyed by network address
}

// New assembles the stack. Nothing touches the network until Start.
func New(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	registry, err := model.Load()
	if err != nil {
		return nil, fmt.Errorf("load model table: %w", err)
	}

	httpClient := transport.NewClient(nil, transport.Options{Logger: log})
	sess := session.NewManager(cfg.API.BaseURL, session.Credentials{
		Email:    cfg.Account.Email,
		Password: cfg.Account.Password,
	}, httpClient, session.Options{}, log)

	c := &Client{
		cfg:      cfg,
		log:      log.With().Str("component", "client").Logger(),
		http:     httpClient,
		session:  sess,
		registry: registry,
		dir:      directory.New(cfg.API.BaseURL, httpClient, sess, cfg.CacheTTL(), log),
		engines:  make(map[string]device.Appliance),
	}

	c.channel = realtime.New(cfg.API.SocketURL, sess, realtime.Handlers{
		Status:       c.handleStatus,
		CommandAck:   c.handleCommandAck,
		Availability: c.handleAvailability,
		Error:        c.handleChannelError,
	}, realtime.Options{}, log)

	return c, nil
}

// Start authenticates, discovers devices, builds their engines and opens
// the push channel.
func (c *Client) Start(ctx context.Context) error {
	if err := c.session.Authenticate(ctx); err != nil {
		return err
	}

	descs := c.dir.FetchDevices(ctx)
	if len(descs) == 0 {
		c.log.Warn().Msg("no devices discovered")
	}

	for _, desc := range descs {
		engine := device.Create(desc, c.registry, c.channel, c.log)
		c.mu.Lock()
		c.engines[desc.MAC] = engine
		c.mu.Unlock()

		// Seed full state from the device-configuration endpoint;
		// best-effort, push updates will fill any gap.
		if attrs, err := c.dir.FetchConfiguration(ctx, desc.MAC); err == nil {
			engine.UpdateFromAttributes(attrs)
		} else {
			c.log.Debug().Str("device", desc.ID).Err(err).Msg("configuration fetch failed")
		}
	}

	return c.channel.Connect(ctx)
}

// Stop tears the session down deliberately.
func (c *Client) Stop() {
	c.channel.Disconnect()
	c.session.Logout()
}

// Appliances snapshots the current engine set.
func (c *Client) Appliances() []device.Appliance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]device.Appliance, 0, len(c.engines))
	for _, engine := range c.engines {
		out = append(out, engine)
	}
	return out
}

// Appliance looks an engine up by network address.
func (c *Client) Appliance(mac string) (device.Appliance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	engine, ok := c.engines[mac]
	return engine, ok
}

// Session exposes the session manager for lifecycle observers.
func (c *Client) Session() *session.Manager {
	return c.session
}

func (c *Client) handleStatus(mac string, props map[string]string) {
	engine, ok := c.Appliance(mac)
	if !ok {
		c.log.Debug().Str("mac", mac).Msg("status for unknown device dropped")
		return
	}
	engine.UpdateFromPropertyMap(props)
}

func (c *Client) handleCommandAck(mac string, ok bool, detail string) {
	if ok {
		return
	}
	c.log.Warn().Str("mac", mac).Str("detail", detail).Msg("command rejected by cloud")
	if engine, found := c.Appliance(mac); found {
		engine.EmitError(fmt.Errorf("command rejected: %s", detail))
	}
}

func (c *Client) handleAvailability(mac string, online bool) {
	c.log.Info().Str("mac", mac).Bool("online", online).Msg("device availability changed")
	if c.AvailabilityFunc != nil {
		c.AvailabilityFunc(mac, online)
	}
}

func (c *Client) handleChannelError(err error) {
	c.log.Warn().Err(err).Msg("realtime channel error")
	for _, engine := range c.Appliances() {
		engine.EmitError(err)
	}
}
