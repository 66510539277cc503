// Package realtime maintains the persistent socket to the cloud: push
// status delivery, heartbeat, periodic status polling and reconnect with
// exponential backoff.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnState is the channel's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// TokenSource supplies the access token embedded in the handshake URL.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Handlers receive dispatched inbound traffic. Nil handlers are skipped.
type Handlers struct {
	// Status delivers a per-device property map keyed by wire codes.
	Status func(mac string, props map[string]string)
	// CommandAck reports the cloud's answer to a property write.
	CommandAck func(mac string, ok bool, detail string)
	// Availability reports device online/offline transitions.
	Availability func(mac string, online bool)
	// Error receives channel-level failures; the channel itself keeps
	// running and reconnecting.
	Error func(err error)
}

// Options tune the channel timing. Zero values take the defaults.
type Options struct {
	ConnectTimeout     time.Duration
	HeartbeatInterval  time.Duration
	StatusInterval     time.Duration
	InitialStatusDelay time.Duration
	FollowUpDelay      time.Duration
	BackoffCap         time.Duration
	MaxReconnects      int
	LongRetryPause     time.Duration
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = 60 * time.Second
	}
	if o.InitialStatusDelay <= 0 {
		o.InitialStatusDelay = 2 * time.Second
	}
	if o.FollowUpDelay <= 0 {
		o.FollowUpDelay = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 10
	}
	if o.LongRetryPause <= 0 {
		o.LongRetryPause = 5 * time.Minute
	}
}

// Channel is the persistent socket connection. Only the channel mutates
// the socket lifecycle; everyone else goes through SendCommand and
// RequestStatus.
type Channel struct {
	endpoint string
	tokens   TokenSource
	handlers Handlers
	opts     Options
	log      zerolog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	state       ConnState
	attempts    int
	closed      bool
	stopTick    chan struct{}
	timers      []*time.Timer
	connectDone chan struct{}
	connectErr  error

	writeMu sync.Mutex
}

// New builds a channel for the given socket endpoint (ws:// or wss://).
func New(endpoint string, tokens TokenSource, handlers Handlers, opts Options, log zerolog.Logger) *Channel {
	opts.applyDefaults()
	return &Channel{
		endpoint: endpoint,
		tokens:   tokens,
		handlers: handlers,
		opts:     opts,
		log:      log.With().Str("component", "realtime").Logger(),
	}
}

// State reports the current connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the socket with the current access token in the
// handshake path. A dial that never establishes fails here; drops after
// establishment go through the reconnect path instead. Concurrent
// callers share one in-flight attempt and its outcome.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting {
		done := c.connectDone
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateConnected {
			return nil
		}
		return c.connectErr
	}
	c.state = StateConnecting
	c.closed = false
	c.connectDone = make(chan struct{})
	c.mu.Unlock()

	err := c.dial(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
	}
	c.connectErr = err
	close(c.connectDone)
	c.connectDone = nil
	c.mu.Unlock()
	return err
}

func (c *Channel) dial(ctx context.Context) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	target, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("socket endpoint: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("socket connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.stopTick = make(chan struct{})
	stop := c.stopTick
	c.mu.Unlock()

	connectsTotal.Inc()
	connectedGauge.Set(1)
	c.log.Info().Msg("socket connected")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2*c.opts.HeartbeatInterval + time.Second))
	})
	_ = conn.SetReadDeadline(time.Now().Add(2*c.opts.HeartbeatInterval + time.Second))

	go c.readLoop(conn)
	go c.tickLoop(stop)
	return nil
}

// Disconnect tears the socket down deliberately: timers are cleared so
// nothing drives a reconnect afterwards.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.mu.Unlock()

	connectedGauge.Set(0)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}
}

// SendCommand batches property writes into one outbound message and
// schedules a follow-up status request to reconcile against the cloud's
// authoritative value. Connects first if the socket is down.
func (c *Channel) SendCommand(ctx context.Context, mac, command string, props map[string]string) error {
	if c.State() != StateConnected {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	err := c.write(message{
		Action:     "operation",
		MAC:        mac,
		Command:    command,
		Properties: props,
	})
	if err != nil {
		return err
	}
	commandsTotal.Inc()

	c.afterFunc(c.opts.FollowUpDelay, func() {
		if err := c.RequestStatus(context.Background(), mac); err != nil {
			c.log.Debug().Err(err).Msg("follow-up status request failed")
		}
	})
	return nil
}

// WriteProperties implements the device engines' command contract.
func (c *Channel) WriteProperties(ctx context.Context, mac, command string, props map[string]string) error {
	return c.SendCommand(ctx, mac, command, props)
}

// RequestStatus asks the cloud for a full status push. An empty mac
// requests every device.
func (c *Channel) RequestStatus(_ context.Context, mac string) error {
	return c.write(message{Action: "status", MAC: mac})
}

func (c *Channel) write(msg message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("socket not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound message by its discriminant field. A
// malformed or unrecognized message is logged and dropped, never fatal.
func (c *Channel) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("unparseable socket message dropped")
		return
	}

	messagesTotal.WithLabelValues(msg.discriminant()).Inc()

	switch msg.discriminant() {
	case "status":
		c.dispatchStatus(msg)
	case "commandResponse", "commandAck":
		ok := msg.Success == nil || *msg.Success
		if c.handlers.CommandAck != nil {
			c.handlers.CommandAck(msg.MAC, ok, msg.Message)
		}
	case "deviceOnline":
		if c.handlers.Availability != nil {
			c.handlers.Availability(msg.MAC, true)
		}
	case "deviceOffline":
		if c.handlers.Availability != nil {
			c.handlers.Availability(msg.MAC, false)
		}
	case "error":
		c.log.Warn().Str("message", msg.Message).Msg("cloud reported socket error")
		if c.handlers.Error != nil {
			c.handlers.Error(fmt.Errorf("cloud error: %s", msg.Message))
		}
	default:
		c.log.Debug().Str("discriminant", msg.discriminant()).Msg("unrecognized socket message dropped")
	}
}

func (c *Channel) dispatchStatus(msg message) {
	if c.handlers.Status == nil {
		return
	}
	// Single-device form: properties inline next to the address.
	if len(msg.Properties) > 0 && msg.MAC != "" {
		c.handlers.Status(msg.MAC, msg.Properties)
		return
	}
	if len(msg.Payload) == 0 {
		return
	}
	var payload statusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.log.Warn().Err(err).Msg("malformed status payload dropped")
		return
	}
	for _, status := range payload.Statuses {
		c.handlers.Status(status.MAC, status.Properties)
	}
}

// handleClose runs when the read loop dies. Deliberate disconnects were
// already marked closed; anything else schedules a reconnect.
func (c *Channel) handleClose(conn *websocket.Conn, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
	c.mu.Unlock()

	connectedGauge.Set(0)
	c.log.Warn().Err(cause).Msg("socket dropped, scheduling reconnect")
	if c.handlers.Error != nil {
		c.handlers.Error(cause)
	}
	c.scheduleReconnect()
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	c.attempts++
	attempts := c.attempts
	var delay time.Duration
	if attempts > c.opts.MaxReconnects {
		// Ceiling reached: rest for the long pause and start the backoff
		// series over.
		c.attempts = 0
		delay = c.opts.LongRetryPause
	} else {
		base := math.Min(math.Pow(2, float64(attempts))*1000, float64(c.opts.BackoffCap/time.Millisecond))
		jitter := 1 + (rand.Float64()*0.4 - 0.2)
		delay = time.Duration(base*jitter) * time.Millisecond
	}
	c.mu.Unlock()

	reconnectsTotal.Inc()
	c.log.Info().Int("attempt", attempts).Dur("delay", delay).Msg("reconnect scheduled")

	c.afterFunc(delay, func() {
		c.mu.Lock()
		// A manual Connect may have re-established the socket while this
		// timer was pending; dialing again would orphan that connection.
		if c.closed || c.state == StateConnected || c.state == StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout+5*time.Second)
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			c.log.Warn().Err(err).Msg("reconnect failed")
			c.scheduleReconnect()
		}
	})
}

// tickLoop drives the heartbeat and the periodic full-status poll for
// the lifetime of one connection.
func (c *Channel) tickLoop(stop chan struct{}) {
	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	poll := time.NewTicker(c.opts.StatusInterval)
	initial := time.NewTimer(c.opts.InitialStatusDelay)
	defer heartbeat.Stop()
	defer poll.Stop()
	defer initial.Stop()

	for {
		select {
		case <-stop:
			return
		case <-initial.C:
			if err := c.RequestStatus(context.Background(), ""); err != nil {
				c.log.Debug().Err(err).Msg("initial status request failed")
			}
		case <-heartbeat.C:
			c.ping()
		case <-poll.C:
			if err := c.RequestStatus(context.Background(), ""); err != nil {
				c.log.Debug().Err(err).Msg("status poll failed")
			}
		}
	}
}

func (c *Channel) ping() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// afterFunc tracks timers so a deliberate disconnect can clear them and
// nothing fires after shutdown. Fired timers drop out of the tracking
// list so it does not grow for the daemon's lifetime.
func (c *Channel) afterFunc(d time.Duration, fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		for i, tracked := range c.timers {
			if tracked == timer {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		fn()
	})
	c.timers = append(c.timers, timer)
	c.mu.Unlock()
}
