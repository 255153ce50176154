// Package transport is the MQTT pub/sub client behind the sync engine.
//
// It owns the connection lifecycle (Disconnected → Connecting → Connected),
// topic subscription, retained presence announcements, the connect-time last
// will, and a fixed-interval reconnect timer. Paho's built-in auto-reconnect
// is disabled; the state machine here is the single source of truth so the
// engine can observe every transition.
//
// Malformed inbound messages are dropped and logged. Nothing in this package
// tears down the connection on a per-message error.
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"go.klb.dev/copier/internal/wire"
)

// ErrNotConnected is returned by publish calls while the broker is unreachable.
var ErrNotConnected = errors.New("transport: not connected")

const (
	// DefaultReconnectInterval is the fixed retry spacing while disconnected.
	DefaultReconnectInterval = 5 * time.Second

	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	shutdownTimeout = 2 * time.Second

	// inboundBuffer bounds the channel between paho's network goroutine and
	// the engine's event loop.
	inboundBuffer = 64
)

// State is the connection state visible to the engine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Inbound is one raw message delivered from the broker.
type Inbound struct {
	Topic   string
	Payload []byte
}

// Config holds broker connection parameters.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string

	// TLS enables an encrypted broker connection when non-nil.
	TLS *tls.Config

	// ReconnectInterval overrides DefaultReconnectInterval when positive.
	ReconnectInterval time.Duration
}

// BrokerURL returns the paho broker URL for the config.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	if c.TLS != nil {
		scheme = "ssl"
	}
	port := c.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, port)
}

// pahoClient is the slice of mqtt.Client the transport uses, split out so
// tests can substitute a fake broker connection.
type pahoClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

// Client is a pub/sub transport bound to one topic prefix.
type Client struct {
	cfg       Config
	interval  time.Duration
	newClient func(*mqtt.ClientOptions) pahoClient

	msgCh   chan Inbound
	onState func(State, string)

	mu      sync.Mutex
	paho    pahoClient
	state   State
	timer   *time.Timer
	ticking bool
	closed  bool
}

// New returns an unconnected Client. onState is invoked on every state
// transition with a short human-readable detail; it must not block.
func New(cfg Config, onState func(State, string)) *Client {
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &Client{
		cfg:      cfg,
		interval: interval,
		newClient: func(o *mqtt.ClientOptions) pahoClient {
			return mqtt.NewClient(o)
		},
		msgCh:   make(chan Inbound, inboundBuffer),
		onState: onState,
	}
}

// Messages returns the channel inbound broker messages are delivered on.
func (c *Client) Messages() <-chan Inbound { return c.msgCh }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection lifecycle with one immediate attempt.
// A failed attempt arms the reconnect timer; Connect never blocks longer
// than a single broker handshake.
func (c *Client) Connect() {
	c.attempt()
}

// attempt performs one connection attempt and updates the state machine.
func (c *Client) attempt() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	if c.paho == nil {
		c.paho = c.newClient(c.options())
	}
	paho := c.paho
	c.mu.Unlock()

	c.notify(StateConnecting, "connecting to "+c.cfg.BrokerURL())

	token := paho.Connect()
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		detail := "connect timeout"
		if err := token.Error(); err != nil {
			detail = err.Error()
		}
		slog.Warn("broker connect failed", "broker", c.cfg.BrokerURL(), "err", detail)
		c.toDisconnected(detail, true)
		return
	}

	if err := c.afterConnect(paho); err != nil {
		slog.Warn("broker session setup failed", "err", err)
		paho.Disconnect(0)
		c.toDisconnected(err.Error(), true)
		return
	}

	c.mu.Lock()
	c.state = StateConnected
	c.stopTimerLocked()
	c.mu.Unlock()

	slog.Info("connected to broker",
		"broker", c.cfg.BrokerURL(),
		"prefix", c.cfg.TopicPrefix,
		"client_id", c.cfg.ClientID,
	)
	c.notify(StateConnected, "connected to "+c.cfg.BrokerURL())
}

// afterConnect subscribes under the prefix and announces presence. Runs once
// per successful connect, before the state flips to Connected.
func (c *Client) afterConnect(paho pahoClient) error {
	filter := wire.SubscriptionFilter(c.cfg.TopicPrefix)
	token := paho.Subscribe(filter, 1, c.handleMessage)
	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.New("subscribe timeout")
		}
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	online, err := wire.NewPresenceMessage(c.cfg.ClientID, wire.StatusOnline).Encode()
	if err != nil {
		return fmt.Errorf("presence encode: %w", err)
	}
	// Presence is retained and superseded by every reconnect; at-most-once
	// delivery is enough.
	paho.Publish(wire.StatusTopic(c.cfg.TopicPrefix), 0, true, online)
	return nil
}

// toDisconnected flips the state and optionally arms the reconnect timer.
func (c *Client) toDisconnected(detail string, retry bool) {
	c.mu.Lock()
	c.state = StateDisconnected
	if retry && !c.closed {
		c.startTimerLocked()
	}
	c.mu.Unlock()
	c.notify(StateDisconnected, detail)
}

// startTimerLocked arms the reconnect timer. Arming an already-running timer
// is a no-op. Caller holds c.mu.
func (c *Client) startTimerLocked() {
	if c.ticking {
		return
	}
	c.ticking = true
	c.timer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		c.ticking = false
		c.mu.Unlock()
		c.attempt()
	})
}

// stopTimerLocked cancels a pending reconnect. Caller holds c.mu.
func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.ticking = false
}

// connectionLost is installed as paho's connection-lost handler.
func (c *Client) connectionLost(err error) {
	detail := "connection lost"
	if err != nil {
		detail = err.Error()
	}
	slog.Warn("broker connection lost", "err", detail)
	c.toDisconnected(detail, true)
}

// handleMessage runs on paho's network goroutine; it hands the raw message to
// the engine's channel and never blocks the receive loop.
func (c *Client) handleMessage(_ mqtt.Client, m mqtt.Message) {
	select {
	case c.msgCh <- Inbound{Topic: m.Topic(), Payload: m.Payload()}:
	default:
		slog.Warn("inbound message buffer full, dropping", "topic", m.Topic())
	}
}

// PublishContent publishes a content envelope at QoS 1. Delivery completion
// is observed on a background goroutine so the caller's loop is never blocked
// on broker backpressure; failures are logged and dropped.
func (c *Client) PublishContent(envelope []byte) error {
	c.mu.Lock()
	paho, state := c.paho, c.state
	c.mu.Unlock()
	if state != StateConnected || paho == nil {
		return ErrNotConnected
	}

	topic := wire.ContentTopic(c.cfg.TopicPrefix)
	token := paho.Publish(topic, 1, false, envelope)
	go func() {
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			slog.Warn("content publish failed", "topic", topic, "err", token.Error())
		}
	}()
	return nil
}

// PublishContentWait publishes a content envelope at QoS 1 and waits up to
// timeout for broker acknowledgement. Used by one-shot CLI publishes where
// blocking is the point.
func (c *Client) PublishContentWait(envelope []byte, timeout time.Duration) error {
	c.mu.Lock()
	paho, state := c.paho, c.state
	c.mu.Unlock()
	if state != StateConnected || paho == nil {
		return ErrNotConnected
	}

	topic := wire.ContentTopic(c.cfg.TopicPrefix)
	token := paho.Publish(topic, 1, false, envelope)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close publishes a best-effort offline presence, cancels any pending
// reconnect, and disconnects. The client cannot be reused afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	paho, state := c.paho, c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	if paho != nil && state == StateConnected {
		if offline, err := wire.NewPresenceMessage(c.cfg.ClientID, wire.StatusOffline).Encode(); err == nil {
			token := paho.Publish(wire.StatusTopic(c.cfg.TopicPrefix), 0, true, offline)
			token.WaitTimeout(shutdownTimeout)
		}
		paho.Disconnect(uint(shutdownTimeout.Milliseconds()))
	}
	c.notify(StateDisconnected, "shutdown")
}

// notify forwards a state change to the engine, if a callback is registered.
func (c *Client) notify(s State, detail string) {
	if c.onState != nil {
		c.onState(s, detail)
	}
}

// options builds the paho client options. The last will is registered here so
// the broker delivers our retained offline presence if we die ungracefully.
func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL()).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connectionLost(err)
		})

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.cfg.TLS != nil {
		opts.SetTLSConfig(c.cfg.TLS)
	}

	if will, err := wire.NewPresenceMessage(c.cfg.ClientID, wire.StatusOffline).Encode(); err == nil {
		opts.SetBinaryWill(wire.StatusTopic(c.cfg.TopicPrefix), will, 0, true)
	}
	return opts
}
