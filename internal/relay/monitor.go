package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"talkwire/internal/metrics"
	"talkwire/internal/policy"
	"talkwire/internal/talk/client"
	"talkwire/internal/talk/wire"
)

// Streamer is the slice of the protocol client the monitor drives.
type Streamer interface {
	Connect(ctx context.Context) error
	Disconnect()
	Events() <-chan wire.Event
	Lifecycle() <-chan client.LifecycleEvent
	Errors() <-chan error
	SendText(ctx context.Context, addr, text, displayName string) (string, error)
	SendMedia(ctx context.Context, addr string, media wire.Media, caption, displayName string) (string, error)
	SendComposing(ctx context.Context, addr string)
	SendPaused(ctx context.Context, addr string)
}

// Config carries the monitor's per-account parameters.
type Config struct {
	Channel     string
	AccountID   string
	DisplayName string

	// ChunkLimit caps outbound message length in runes. Zero means
	// DefaultChunkLimit.
	ChunkLimit int

	// ReconnectDelay is the fixed pause before each reconnect attempt.
	ReconnectDelay time.Duration

	// OnSendError, when set, is called once per failed outbound send.
	OnSendError func(error)
}

const defaultReconnectDelay = 5 * time.Second

// Monitor pumps the stream: gate inbound events, hand admitted ones to
// the responder asynchronously, send replies back, and reconnect after
// transport loss. One Monitor per connection.
type Monitor struct {
	cfg       Config
	stream    Streamer
	gate      *policy.Gate
	responder Responder
	met       *metrics.Metrics
	log       *slog.Logger

	wg sync.WaitGroup
}

func NewMonitor(cfg Config, stream Streamer, gate *policy.Gate, responder Responder, met *metrics.Metrics, log *slog.Logger) *Monitor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if met == nil {
		met = metrics.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		stream:    stream,
		gate:      gate,
		responder: responder,
		met:       met,
		log:       log,
	}
}

// Run connects and services the stream until ctx is cancelled or the
// client is deliberately disconnected elsewhere. In-flight responder
// calls are waited out before returning.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.wg.Wait()

	if err := m.stream.Connect(ctx); err != nil {
		m.log.Warn("relay.connect.fail", "err", err)
		if err := m.reconnect(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.stream.Disconnect()
			return ctx.Err()

		case ev := <-m.stream.Events():
			m.dispatch(ctx, ev)

		case lc := <-m.stream.Lifecycle():
			m.met.SetConnState(string(lc.State))
			switch lc.State {
			case client.StateOffline:
				m.log.Warn("relay.stream.offline", "reason", lc.Reason)
				if err := m.reconnect(ctx); err != nil {
					return err
				}
			case client.StateDisconnected:
				return nil
			}

		case err := <-m.stream.Errors():
			m.log.Error("relay.stream.err", "err", err)
		}
	}
}

// reconnect retries at a fixed delay until the connection is back or
// ctx ends. The client itself never reconnects; that is this loop's job.
func (m *Monitor) reconnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ReconnectDelay):
		}

		m.met.Reconnects.Inc()
		if err := m.stream.Connect(ctx); err != nil {
			m.log.Warn("relay.reconnect.fail", "err", err)
			continue
		}
		m.log.Info("relay.reconnect.ok")
		return nil
	}
}

// ---- inbound ----

func (m *Monitor) dispatch(ctx context.Context, ev wire.Event) {
	d := m.gate.Decide(ctx, ev)
	if d.PairingCodeIssued != "" {
		m.met.PairingIssued.Inc()
	}
	if !d.Admit {
		m.met.PolicyDenials.WithLabelValues(d.Reason).Inc()
		m.log.Info("relay.gate.deny", "from", ev.From, "reason", d.Reason)
		return
	}

	m.met.InboundMessages.WithLabelValues(string(ev.Kind)).Inc()

	// Responder calls can be slow; hand off so the pump keeps draining.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.handle(ctx, ev, d)
	}()
}

func (m *Monitor) handle(ctx context.Context, ev wire.Event, d policy.Decision) {
	replyTo := wire.Bare(ev.From)

	env := Envelope{
		Channel:           m.cfg.Channel,
		AccountID:         m.cfg.AccountID,
		SessionKey:        string(ev.Kind) + ":" + replyTo,
		ChatType:          string(ev.Kind),
		ChatID:            replyTo,
		From:              ev.From,
		SenderName:        ev.SenderName,
		Body:              ev.Body,
		Timestamp:         ev.Timestamp,
		Mention:           d.Mentioned,
		CommandAuthorized: d.CommandAuthorized,
	}

	m.stream.SendComposing(ctx, replyTo)
	defer m.stream.SendPaused(ctx, replyTo)

	replies, err := m.responder.Respond(ctx, env)
	if err != nil {
		m.log.Error("relay.respond.fail", "from", ev.From, "err", err)
		return
	}
	for _, r := range replies {
		m.deliver(ctx, replyTo, ev.Kind, r)
	}
}

func (m *Monitor) deliver(ctx context.Context, to string, kind wire.ChatKind, r Reply) {
	if r.Text != "" {
		for _, chunk := range chunkText(r.Text, m.cfg.ChunkLimit) {
			if _, err := m.stream.SendText(ctx, to, chunk, m.cfg.DisplayName); err != nil {
				m.sendFailed(err)
				return
			}
			m.met.OutboundMessages.WithLabelValues(string(kind)).Inc()
		}
	}
	if r.MediaURL != "" {
		media := wire.Media{URL: r.MediaURL}
		if _, err := m.stream.SendMedia(ctx, to, media, "", m.cfg.DisplayName); err != nil {
			m.sendFailed(err)
			return
		}
		m.met.OutboundMessages.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Monitor) sendFailed(err error) {
	m.met.SendFailures.Inc()
	m.log.Error("relay.send.fail", "err", err)
	if m.cfg.OnSendError != nil {
		m.cfg.OnSendError(err)
	}
}
