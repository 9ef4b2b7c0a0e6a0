// Package app wires the talkwire runtime: config, logging, credential
// and pairing storage, the streaming client, and the relay monitor.
//
// Everything is constructed here and passed down by injection; no
// package-level singletons.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"talkwire/internal/auth/creds"
	"talkwire/internal/auth/session"
	"talkwire/internal/directory"
	"talkwire/internal/metrics"
	"talkwire/internal/pairing"
	"talkwire/internal/policy"
	"talkwire/internal/relay"
	"talkwire/internal/talk/api"
	"talkwire/internal/talk/client"
)

// App is the talkwire runtime: it owns the long-lived dependencies and
// builds the per-connection pieces when Run starts.
type App struct {
	cfg Config
	log *slog.Logger

	creds    *creds.Store
	api      *api.Client
	sessions *session.Manager
	pairing  pairing.Store
	policies *PolicyProvider
	resolver *directory.Resolver
	met      *metrics.Metrics

	dbPool *pgxpool.Pool
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	credStore, err := creds.NewStore(cfg.StateDir, cfg.Account)
	if err != nil {
		return nil, err
	}

	apiClient := api.NewClient(cfg.APIBaseURL, log)
	met := metrics.New()

	sessions := session.NewManager(credStore, apiClient, log)
	sessions.OnRefresh(func(outcome string) {
		met.SessionRefreshes.WithLabelValues(outcome).Inc()
	})

	pairStore, pool, err := newPairingStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	policies, err := NewPolicyProvider(cfg.PolicyFile, log)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		creds:    credStore,
		api:      apiClient,
		sessions: sessions,
		pairing:  pairStore,
		policies: policies,
		resolver: directory.NewResolver(&apiLister{api: apiClient, sessions: sessions}, log),
		met:      met,
		dbPool:   pool,
	}, nil
}

// Close releases pooled resources. Safe after a failed Run.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// Run connects the stream and relays messages until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	sess, err := a.sessions.GetValidSession(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotLoggedIn) {
			return errors.New("app: not logged in; run `talkwire login` first")
		}
		return err
	}

	dev, err := a.creds.LoadOrCreateDevice()
	if err != nil {
		return err
	}
	displayName := a.displayName()

	stream := a.newStream(sess, dev)

	notify := func(ctx context.Context, addr, notice string) error {
		_, err := stream.SendText(ctx, addr, notice, displayName)
		return err
	}
	gate := policy.NewGate(a.policies.Get, a.pairing, notify, a.log)

	var responder relay.Responder = nopResponder{}
	if a.cfg.ResponderURL != "" {
		responder = relay.NewHTTPResponder(a.cfg.ResponderURL)
	} else {
		a.log.Warn("relay.responder.absent", "hint", "set TW_RESPONDER_URL to generate replies")
	}

	mon := relay.NewMonitor(relay.Config{
		Channel:        a.policies.Get().Channel,
		AccountID:      sess.UserID,
		DisplayName:    displayName,
		ChunkLimit:     a.cfg.ChunkLimit,
		ReconnectDelay: a.cfg.ReconnectDelay,
	}, stream, gate, responder, a.met, a.log)

	stopMetrics := a.serveMetrics()
	defer stopMetrics()

	a.log.Info("app.start", "account", a.cfg.Account, "user_id", sess.UserID)

	err = mon.Run(ctx)
	if errors.Is(err, context.Canceled) {
		a.log.Info("app.stop", "reason", "context_done")
		return nil
	}
	return err
}

func (a *App) newStream(sess creds.Session, dev creds.DeviceIdentity) *client.Client {
	return client.New(client.Config{
		Endpoint:    a.cfg.StreamURL,
		Origin:      a.cfg.Origin,
		InsecureTLS: a.cfg.InsecureTLS,
		UserID:      sess.UserID,
		ChatToken:   sess.ChatAccessToken,
		Resource:    dev.Resource,
		KeepAlive:   a.cfg.KeepAlive,
	}, a.log)
}

// displayName resolves the outbound envelope name: env override, then
// the persisted profile, then the account name.
func (a *App) displayName() string {
	if a.cfg.DisplayName != "" {
		return a.cfg.DisplayName
	}
	if p, err := a.creds.LoadProfile(); err == nil && p.DisplayName != "" {
		return p.DisplayName
	}
	return a.cfg.Account
}

func (a *App) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           a.met.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.Info("metrics.listen", "addr", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics.fail", "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// newPairingStore decides between Postgres-backed shared pairing state
// and the in-process store.
//
// Ownership model:
// - app owns the pool lifecycle; the pairing store never closes it.
func newPairingStore(ctx context.Context, cfg Config, log *slog.Logger) (pairing.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("pairing.store.memory")
		return pairing.NewMemoryStore(), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := pairing.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("pairing.store.postgres")
	return st, pool, nil
}

// nopResponder drops every envelope. Used when no responder endpoint is
// configured; the gate and pairing flow still run.
type nopResponder struct{}

func (nopResponder) Respond(context.Context, relay.Envelope) ([]relay.Reply, error) {
	return nil, nil
}
