// Package realtime subscribes to committed row changes over the backend's
// websocket channel protocol.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zfogg/daredrop/pkg/config"
	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
)

var (
	// ErrNotConnected is returned when a frame is sent without an open connection
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrJoinRejected wraps an error reply to a channel join
	ErrJoinRejected = errors.New("realtime: join rejected")

	// ErrJoinTimeout is returned when no join reply arrives in time
	ErrJoinTimeout = errors.New("realtime: join timed out")

	// ErrChannelClosed ends a channel the server closed or errored
	ErrChannelClosed = errors.New("realtime: channel closed by server")

	// ErrClientClosed ends every channel when the client disconnects
	ErrClientClosed = errors.New("realtime: client disconnected")
)

// TokenSource supplies the access token sent with channel joins
type TokenSource interface {
	AccessToken() string
}

// Config holds realtime client configuration
type Config struct {
	URL                  string
	APIKey               string
	ConnectTimeoutMs     int
	HeartbeatIntervalMs  int
	ReconnectBaseDelayMs int
	ReconnectMaxDelayMs  int
	MaxReconnectAttempts int
	JoinTimeoutMs        int
	BufferSize           int
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:54321/realtime/v1/websocket",
		ConnectTimeoutMs:     15000,
		HeartbeatIntervalMs:  30000,
		ReconnectBaseDelayMs: 2000,
		ReconnectMaxDelayMs:  30000,
		MaxReconnectAttempts: -1, // unlimited
		JoinTimeoutMs:        10000,
		BufferSize:           64,
	}
}

// ConfigFromSettings reads realtime.* and api.key
func ConfigFromSettings() Config {
	cfg := DefaultConfig()
	cfg.URL = config.RealtimeURL()
	cfg.APIKey = config.GetString("api.key")
	cfg.HeartbeatIntervalMs = config.GetInt("realtime.heartbeat_ms")
	cfg.ReconnectBaseDelayMs = config.GetInt("realtime.reconnect_base_ms")
	cfg.ReconnectMaxDelayMs = config.GetInt("realtime.reconnect_max_ms")
	cfg.JoinTimeoutMs = config.GetInt("realtime.join_timeout_ms")
	cfg.BufferSize = config.GetInt("realtime.buffer")
	return cfg
}

// ConnectionState represents the state of the websocket connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "error"
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	MessagesSent     int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

// Client owns one websocket connection multiplexing every joined channel
type Client struct {
	config Config
	tokens TokenSource

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	state atomic.Value // ConnectionState
	ref   atomic.Uint64

	channelsMu sync.RWMutex
	channels   map[string]*Channel

	pendingMu sync.Mutex
	pending   map[string]chan reply

	reconnectAttempts int
	reconnectDelay    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// NewClient creates a realtime client
func NewClient(cfg Config, tokens TokenSource) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:         cfg,
		tokens:         tokens,
		channels:       make(map[string]*Channel),
		pending:        make(map[string]chan reply),
		reconnectDelay: cfg.ReconnectBaseDelayMs,
		ctx:            ctx,
		cancel:         cancel,
	}
	c.state.Store(StateDisconnected)
	return c
}

// Connect dials the websocket and starts the read and heartbeat loops
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError)
		c.recordError(err.Error())
		return fmt.Errorf("failed to connect realtime: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.reconnectAttempts = 0
	c.reconnectDelay = c.config.ReconnectBaseDelayMs
	c.recordConnected()

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.heartbeatLoop()

	logger.Debug("Realtime connected", "url", c.config.URL)
	return nil
}

// EnsureConnected connects if the client has never connected or was disconnected
func (c *Client) EnsureConnected(ctx context.Context) error {
	switch c.getState() {
	case StateConnected:
		return nil
	case StateDisconnected, StateError:
		if c.ctx.Err() != nil {
			return ErrClientClosed
		}
		return c.Connect(ctx)
	default:
		return ErrNotConnected
	}
}

// Disconnect closes the connection and ends every channel
func (c *Client) Disconnect() error {
	c.cancel()

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.channelsMu.Lock()
	channels := c.channels
	c.channels = make(map[string]*Channel)
	c.channelsMu.Unlock()
	for _, ch := range channels {
		ch.finish(ErrClientClosed)
	}

	c.wg.Wait()
	c.setState(StateDisconnected)
	c.recordDisconnected()

	logger.Debug("Realtime disconnected")
	return nil
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// State returns the connection state
func (c *Client) State() ConnectionState {
	return c.getState()
}

// GetStats returns connection statistics
func (c *Client) GetStats() ConnectionStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.stats
}

// Subscribe joins a channel for filter and waits for the server to accept it.
// A rejected or timed-out join leaves nothing registered.
func (c *Client) Subscribe(ctx context.Context, filter ChangeFilter) (*Channel, error) {
	filter = filter.withDefaults()
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change filter: %w", err)
	}
	if err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	topic := topicPrefix + filter.Table + ":" + uuid.NewString()[:8]
	ch := newChannel(c, topic, filter, c.config.BufferSize)

	c.channelsMu.Lock()
	c.channels[topic] = ch
	c.channelsMu.Unlock()

	if err := c.join(ctx, ch); err != nil {
		c.forget(ch)
		ch.finish(err)
		return nil, err
	}

	logger.Debug("Channel joined", "topic", topic, "table", filter.Table, "filter", filter.Filter)
	return ch, nil
}

func (c *Client) join(ctx context.Context, ch *Channel) error {
	ref := c.nextRef()
	ch.setJoinRef(ref)

	wait := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[ref] = wait
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, ref)
		c.pendingMu.Unlock()
	}()

	token := c.config.APIKey
	if c.tokens != nil {
		if t := c.tokens.AccessToken(); t != "" {
			token = t
		}
	}

	if err := c.sendFrame(frame{
		Topic:   ch.topic,
		Event:   eventJoin,
		Payload: mustMarshal(newJoinPayload(ch.filter, token)),
		Ref:     ref,
		JoinRef: ref,
	}); err != nil {
		return err
	}

	timer := time.NewTimer(c.joinTimeout())
	defer timer.Stop()

	select {
	case r := <-wait:
		return r.err()
	case <-timer.C:
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClientClosed
	}
}

func (c *Client) joinTimeout() time.Duration {
	if c.config.JoinTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.config.JoinTimeoutMs) * time.Millisecond
}

// forget removes ch from routing
func (c *Client) forget(ch *Channel) {
	c.channelsMu.Lock()
	if c.channels[ch.topic] == ch {
		delete(c.channels, ch.topic)
	}
	c.channelsMu.Unlock()
}

func (c *Client) channel(topic string) *Channel {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()
	return c.channels[topic]
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Client) send(topic, event string, payload interface{}, joinRef string) error {
	return c.sendFrame(frame{
		Topic:   topic,
		Event:   event,
		Payload: mustMarshal(payload),
		Ref:     c.nextRef(),
		JoinRef: joinRef,
	})
}

func (c *Client) sendFrame(f frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.recordMessageSent()
	return nil
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	if c.config.APIKey != "" {
		q.Set("apikey", c.config.APIKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	timeout := time.Duration(c.config.ConnectTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	return conn, err
}

func (c *Client) readDeadline() time.Duration {
	interval := time.Duration(c.config.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return 2*interval + 5*time.Second
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.readDeadline()))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.recordError(err.Error())
			logger.Error("Realtime read error", "error", err)
			c.wg.Add(1)
			go c.handleDisconnect(conn)
			return
		}

		c.recordMessageReceived()

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn("Dropping undecodable frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case eventReply:
		var r reply
		if err := json.Unmarshal(f.Payload, &r); err != nil {
			logger.Warn("Dropping undecodable reply", "topic", f.Topic, "error", err)
			return
		}
		c.pendingMu.Lock()
		wait, ok := c.pending[f.Ref]
		c.pendingMu.Unlock()
		if ok {
			select {
			case wait <- r:
			default:
			}
		}

	case eventChanges:
		ch := c.channel(f.Topic)
		if ch == nil {
			return
		}
		var p changesPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			logger.Warn("Dropping undecodable change", "topic", f.Topic, "error", err)
			ch.signalResync()
			return
		}
		ch.deliver(p.Data)

	case eventClose, eventError:
		ch := c.channel(f.Topic)
		if ch == nil || (f.JoinRef != "" && f.JoinRef != ch.currentJoinRef()) {
			return
		}
		logger.Warn("Channel ended by server", "topic", f.Topic, "event", f.Event)
		c.forget(ch)
		ch.finish(ErrChannelClosed)

	case eventSystem:
		logger.Debug("Realtime system message", "topic", f.Topic, "payload", string(f.Payload))

	default:
		logger.Debug("Ignoring realtime frame", "topic", f.Topic, "event", f.Event)
	}
}

func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	interval := time.Duration(c.config.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				if err := c.send(heartbeatTopic, eventHeartbeat, struct{}{}, ""); err != nil {
					logger.Debug("Failed to send heartbeat", "error", err)
				}
			}
		}
	}
}

func (c *Client) handleDisconnect(dead *websocket.Conn) {
	defer c.wg.Done()

	c.mu.Lock()
	if c.conn == dead {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.recordDisconnected()

	for {
		if c.config.MaxReconnectAttempts >= 0 && c.reconnectAttempts >= c.config.MaxReconnectAttempts {
			c.setState(StateError)
			logger.Error("Max reconnection attempts reached")
			c.endAll(ErrNotConnected)
			return
		}

		backoff := time.Duration(c.reconnectDelay) * time.Millisecond
		jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
		waitTime := backoff + jitter

		logger.Debug("Reconnecting realtime", "attempt", c.reconnectAttempts+1, "wait_ms", waitTime.Milliseconds())

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(waitTime):
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.reconnectAttempts++
			c.recordError(err.Error())
			c.reconnectDelay = int(math.Min(
				float64(c.reconnectDelay*2),
				float64(c.config.ReconnectMaxDelayMs),
			))
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.setState(StateConnected)
		c.reconnectAttempts = 0
		c.reconnectDelay = c.config.ReconnectBaseDelayMs
		c.recordConnected()
		c.recordReconnect()
		metrics.Get().RealtimeReconnectsTotal.Inc()

		logger.Info("Realtime reconnected")

		c.wg.Add(1)
		go c.readLoop(conn)
		c.rejoinAll()
		return
	}
}

// rejoinAll joins every open channel again and asks owners to resync, since
// changes committed while disconnected were never delivered
func (c *Client) rejoinAll() {
	c.channelsMu.RLock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channelsMu.RUnlock()

	for _, ch := range channels {
		c.wg.Add(1)
		go func(ch *Channel) {
			defer c.wg.Done()
			if err := c.join(c.ctx, ch); err != nil {
				logger.Error("Channel rejoin failed", "topic", ch.topic, "error", err)
				c.forget(ch)
				ch.finish(err)
				return
			}
			ch.signalResync()
		}(ch)
	}
}

func (c *Client) endAll(err error) {
	c.channelsMu.Lock()
	channels := c.channels
	c.channels = make(map[string]*Channel)
	c.channelsMu.Unlock()
	for _, ch := range channels {
		ch.finish(err)
	}
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(state)
}

func (c *Client) getState() ConnectionState {
	return c.state.Load().(ConnectionState)
}

func (c *Client) recordMessageReceived() {
	c.statsLock.Lock()
	c.stats.MessagesReceived++
	c.statsLock.Unlock()
}

func (c *Client) recordMessageSent() {
	c.statsLock.Lock()
	c.stats.MessagesSent++
	c.statsLock.Unlock()
}

func (c *Client) recordError(errMsg string) {
	c.statsLock.Lock()
	c.stats.LastError = errMsg
	c.statsLock.Unlock()
}

func (c *Client) recordConnected() {
	c.statsLock.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordDisconnected() {
	c.statsLock.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordReconnect() {
	c.statsLock.Lock()
	c.stats.ReconnectCount++
	c.statsLock.Unlock()
}
