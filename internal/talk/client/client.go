// Package client owns the streaming connection to the platform's
// real-time endpoint: the connection state machine, session handshake,
// keep-alive, stanza decode, and the outbound send primitives.
package client

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"talkwire/internal/talk/wire"
)

// State is the connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOnline       State = "online"
	StateOffline      State = "offline"
	StateDisconnected State = "disconnected"
)

// LifecycleEvent is one state transition, delivered to the single
// subscriber. No listener registration; one channel, typed events.
type LifecycleEvent struct {
	State  State
	Reason string
}

const (
	// DefaultEndpoint is the platform's streaming endpoint.
	DefaultEndpoint = "wss://stream.talkapp.chat/ws"

	// DefaultOrigin is the non-standard Origin header the platform
	// requires on the websocket upgrade. Platform quirk, not a general
	// default.
	DefaultOrigin = "https://web.talkapp.chat"

	defaultKeepAlive    = 30 * time.Second
	defaultWriteTimeout = 5 * time.Second

	handshakeTimeout  = 15 * time.Second
	keepAliveProbeTTL = 10 * time.Second

	eventQueueSize = 256
)

// Config carries the per-connection parameters.
type Config struct {
	Endpoint string
	Origin   string

	// InsecureTLS tolerates the platform's non-standard server
	// certificate. Off by default; a platform quirk to preserve, not a
	// security default.
	InsecureTLS bool

	UserID    string
	ChatToken string
	Resource  string

	KeepAlive    time.Duration
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Origin == "" {
		c.Origin = DefaultOrigin
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Client is the streaming protocol client. One logical connection per
// account: concurrent callers may send, but each stanza is written
// whole under a lock, never interleaved.
type Client struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	// writeMu serializes whole-stanza writes onto the transport.
	writeMu sync.Mutex

	// keepalive lifecycle; stop is closed to cancel, done is closed by
	// the keepalive goroutine on exit so teardown can wait synchronously.
	kaStop chan struct{}
	kaDone chan struct{}

	readCancel context.CancelFunc

	events    chan wire.Event
	lifecycle chan LifecycleEvent
	errs      chan error
}

// New constructs a Client in StateIdle.
func New(cfg Config, log *slog.Logger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		log:       log,
		state:     StateIdle,
		events:    make(chan wire.Event, eventQueueSize),
		lifecycle: make(chan LifecycleEvent, 16),
		errs:      make(chan error, 16),
	}
}

// Events returns decoded inbound message events.
func (c *Client) Events() <-chan wire.Event { return c.events }

// Lifecycle returns connection state transitions.
func (c *Client) Lifecycle() <-chan LifecycleEvent { return c.lifecycle }

// Errors returns transport and protocol errors. Decode runs in an
// event-delivery context with no natural caller, so errors surface here
// instead of being thrown across the read loop.
func (c *Client) Errors() <-chan error { return c.errs }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the streaming endpoint, authenticates, and runs the
// session setup sequence. Calling Connect while already connected or
// connecting is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOnline {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting, "dialing")
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.toState(StateOffline, "dial failed")
		return fmt.Errorf("client: dial: %w", err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake failed")
		c.toState(StateOffline, "handshake failed")
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.readCancel = cancel
	c.kaStop = make(chan struct{})
	c.kaDone = make(chan struct{})
	c.setStateLocked(StateOnline, "session established")
	kaStop, kaDone := c.kaStop, c.kaDone
	c.mu.Unlock()

	go c.keepAlive(conn, kaStop, kaDone)
	go c.readLoop(readCtx, conn)

	c.log.Info("xmpp.online", "endpoint", c.cfg.Endpoint, "resource", c.cfg.Resource)
	return nil
}

// Disconnect tears the connection down deliberately.
func (c *Client) Disconnect() {
	c.teardown(StateDisconnected, "explicit disconnect", websocket.StatusNormalClosure)
}

// ---- connection setup ----

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Origin", c.cfg.Origin)

	httpClient := http.DefaultClient
	if c.cfg.InsecureTLS {
		httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.Endpoint, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// handshake authenticates and runs the session setup sequence, in
// order: session-establishment, initial presence (the platform does not
// deliver messages to absent-presence connections), carbons enable, and
// the roster request (fire-and-forget).
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	auth := wire.NewSASLAuth(c.cfg.UserID, c.cfg.ChatToken, c.cfg.Resource)
	if err := writeStanza(hsCtx, conn, auth); err != nil {
		return fmt.Errorf("client: send auth: %w", err)
	}

	if err := awaitSASLResult(hsCtx, conn); err != nil {
		return err
	}

	now := time.Now().UTC()
	setup := []any{
		wire.NewSessionIQ(wire.NewID(now)),
		wire.Presence{ID: wire.NewID(now)},
		wire.NewCarbonsEnableIQ(wire.NewID(now)),
		wire.NewRosterIQ(wire.NewID(now)),
	}
	for _, stanza := range setup {
		if err := writeStanza(hsCtx, conn, stanza); err != nil {
			return fmt.Errorf("client: session setup: %w", err)
		}
	}
	return nil
}

// awaitSASLResult reads until the server accepts or rejects the
// authentication. Non-SASL stanzas arriving early are skipped.
func awaitSASLResult(ctx context.Context, conn *websocket.Conn) error {
	for i := 0; i < 8; i++ {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("client: await auth result: %w", err)
		}

		var ok wire.SASLSuccess
		if xml.Unmarshal(data, &ok) == nil {
			return nil
		}
		var bad wire.SASLFailure
		if xml.Unmarshal(data, &bad) == nil {
			if bad.Text != "" {
				return fmt.Errorf("%w: %s", ErrAuthFailed, bad.Text)
			}
			return ErrAuthFailed
		}
	}
	return ErrAuthFailed
}

// ---- loops ----

// keepAlive probes the transport every KeepAlive interval while Online.
// Probe failures are ignored: only transport-level closure signals a
// disconnect, a failed probe does not.
func (c *Client) keepAlive(conn *websocket.Conn, stop, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(c.cfg.KeepAlive)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), keepAliveProbeTTL)
			if err := conn.Ping(ctx); err != nil {
				c.log.Debug("xmpp.keepalive.fail", "err", err)
			}
			cancel()
		}
	}
}

// readLoop services inbound stanzas until transport closure. Decoded
// events go to the events channel; handlers downstream hand long work
// off asynchronously so this loop keeps draining.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate teardown already set the state.
				return
			}
			c.emitErr(fmt.Errorf("client: transport closed: %w", err))
			c.teardown(StateOffline, "transport closed", websocket.StatusAbnormalClosure)
			return
		}

		ev, ok := wire.DecodeMessage(c.cfg.UserID, data, time.Now().UTC())
		if !ok {
			// Non-content stanza (receipt, iq result, chat state) or a
			// self echo. Intentionally ignored.
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// ---- send primitives ----

// SendText sends a text message wrapped in the platform's JSON body
// envelope and returns the envelope's embedded id.
func (c *Client) SendText(ctx context.Context, addr, text, displayName string) (string, error) {
	conn, err := c.online()
	if err != nil {
		return "", err
	}

	msg, envID, err := wire.NewTextMessage(addr, displayName, text, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("client: encode text: %w", err)
	}
	if err := c.write(ctx, conn, msg); err != nil {
		return "", err
	}
	return envID, nil
}

// SendMedia sends a media-reference stanza with an optional caption and
// nickname, returning the stanza id.
func (c *Client) SendMedia(ctx context.Context, addr string, media wire.Media, caption, displayName string) (string, error) {
	conn, err := c.online()
	if err != nil {
		return "", err
	}

	msg, id := wire.NewMediaMessage(addr, media, caption, displayName, time.Now().UTC())
	if err := c.write(ctx, conn, msg); err != nil {
		return "", err
	}
	return id, nil
}

// SendComposing sends a composing chat-state notification. Best effort:
// silently no-ops when not connected.
func (c *Client) SendComposing(ctx context.Context, addr string) {
	c.sendChatState(ctx, wire.NewComposing(addr))
}

// SendPaused sends a paused chat-state notification. Best effort.
func (c *Client) SendPaused(ctx context.Context, addr string) {
	c.sendChatState(ctx, wire.NewPaused(addr))
}

func (c *Client) sendChatState(ctx context.Context, msg wire.Message) {
	conn, err := c.online()
	if err != nil {
		return
	}
	if err := c.write(ctx, conn, msg); err != nil {
		c.log.Debug("xmpp.chatstate.fail", "err", err)
	}
}

func (c *Client) online() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOnline || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// write marshals and writes one whole stanza under the write lock, so
// concurrent senders never interleave partial stanzas on the stream.
func (c *Client) write(ctx context.Context, conn *websocket.Conn, stanza any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeStanzaTimeout(ctx, conn, stanza, c.cfg.WriteTimeout)
}

// ---- teardown & state ----

// teardown moves to the target terminal-ish state, stopping keep-alive
// synchronously (no probe fires after this returns) and closing the
// transport. Safe to call from any goroutine; repeat calls no-op.
func (c *Client) teardown(target State, reason string, code websocket.StatusCode) {
	c.mu.Lock()
	if c.state != StateOnline && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	kaStop, kaDone := c.kaStop, c.kaDone
	readCancel := c.readCancel
	c.conn = nil
	c.kaStop, c.kaDone = nil, nil
	c.readCancel = nil
	c.setStateLocked(target, reason)
	c.mu.Unlock()

	if kaStop != nil {
		close(kaStop)
		<-kaDone
	}
	if readCancel != nil {
		readCancel()
	}
	if conn != nil {
		_ = conn.Close(code, reason)
	}
}

func (c *Client) toState(s State, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s, reason)
}

// setStateLocked updates the state and emits the lifecycle event.
// Callers hold c.mu.
func (c *Client) setStateLocked(s State, reason string) {
	if c.state == s {
		return
	}
	c.state = s
	select {
	case c.lifecycle <- LifecycleEvent{State: s, Reason: reason}:
	default:
		// Subscriber is behind; state is still queryable via State().
	}
}

func (c *Client) emitErr(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// ---- stanza IO ----

func writeStanza(ctx context.Context, conn *websocket.Conn, stanza any) error {
	b, err := xml.Marshal(stanza)
	if err != nil {
		return fmt.Errorf("client: marshal stanza: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func writeStanzaTimeout(parent context.Context, conn *websocket.Conn, stanza any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return writeStanza(ctx, conn, stanza)
}
