package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/auth"
	"github.com/vovakirdan/chatgenie-server/internal/config"
	"github.com/vovakirdan/chatgenie-server/internal/core"
	applog "github.com/vovakirdan/chatgenie-server/internal/log"
	"github.com/vovakirdan/chatgenie-server/internal/metrics"
	"github.com/vovakirdan/chatgenie-server/internal/service/messages"
	"github.com/vovakirdan/chatgenie-server/internal/store"
	"github.com/vovakirdan/chatgenie-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatgenie-server/internal/transport/http"
	"github.com/vovakirdan/chatgenie-server/internal/utils"
)

const defaultChannelDescription = "General discussion channel"

// ErrCrashed is returned by Run when a server goroutine panicked.
var ErrCrashed = errors.New("server crashed")

// App wires together store, core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	crashExitDelay  time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger

	// crash holds the first recovered panic; later ones are dropped.
	crash chan any
}

// New constructs the application with provided configuration.
// The schema is migrated and the default channel created before it returns.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	collector := metrics.New()
	hub := core.NewHub(core.NewRegistry(), logger, collector)

	msgService := messages.New(st, hub, messages.Options{
		MaxContentBytes: cfg.MaxContentBytes,
		StoreTimeout:    cfg.StoreTimeout,
	}, logger)

	if _, err := msgService.EnsureDefaultChannel(ctx, cfg.DefaultChannel, defaultChannelDescription); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ensure default channel: %w", err)
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		crashExitDelay:  cfg.CrashExitDelay,
		hub:             hub,
		store:           st,
		log:             logger,
		crash:           make(chan any, 1),
	}
	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:      hub,
		Auth:     authService,
		Store:    st,
		Messages: msgService,
		Metrics:  collector,
		OnPanic:  a.reportPanic,
	}, cfg, logger)

	return a, nil
}

// Migrate applies pending schema migrations and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return st.Close()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if err := st.Migrate(ctx, applog.NewGooseLogger(logger)); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	return st, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation, a fatal
// server error or a crash. A crash returns ErrCrashed after crash_exit_delay.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	// The hub outlives ctx so sessions can drain before it stops.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	utils.SafeGo(a.reportPanic, func() {
		a.hub.Run(hubCtx)
	})

	utils.SafeGo(a.reportPanic, func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	})

	select {
	case err := <-serverErr:
		_ = a.shutdown(stopHub)
		return err
	case r := <-a.crash:
		a.log.Error().Interface("panic", r).Dur("exit_delay", a.crashExitDelay).Msg("server crashed")
		time.Sleep(a.crashExitDelay)
		_ = a.shutdown(stopHub)
		return fmt.Errorf("%w: %v", ErrCrashed, r)
	case <-ctx.Done():
		a.log.Info().Msg("shutting down http server")
		if err := a.shutdown(stopHub); err != nil {
			return err
		}
		return <-serverErr
	}
}

func (a *App) reportPanic(r any) {
	select {
	case a.crash <- r:
	default:
	}
}

// shutdown stops intake, ends websocket sessions, stops the hub and only then
// closes the store.
func (a *App) shutdown(stopHub context.CancelFunc) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if sessErr := a.server.CloseSessions(shutdownCtx); sessErr != nil {
		a.log.Warn().Err(sessErr).Msg("websocket sessions did not close in time")
	}

	stopHub()
	select {
	case <-a.hub.Done():
	case <-shutdownCtx.Done():
		a.log.Warn().Msg("hub did not stop in time")
	}

	a.cleanup()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
