package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatgenie-server/internal/auth"
	"github.com/vovakirdan/chatgenie-server/internal/config"
	"github.com/vovakirdan/chatgenie-server/internal/core"
	"github.com/vovakirdan/chatgenie-server/internal/metrics"
	"github.com/vovakirdan/chatgenie-server/internal/service/messages"
	"github.com/vovakirdan/chatgenie-server/internal/store/sqlite"
)

type testEnv struct {
	cfg      config.Config
	store    *sqlite.SQLiteStore
	auth     *auth.Service
	hub      *core.Hub
	messages *messages.Service
	metrics  *metrics.Collector
	server   *Server
	ts       *httptest.Server
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.AuthTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		return sqlite.Migrate(context.Background(), db, nil)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})

	disabledLogger := zerolog.Nop()
	collector := metrics.New()
	hub := core.NewHub(core.NewRegistry(), &disabledLogger, collector)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	msgService := messages.New(st, hub, messages.Options{
		MaxContentBytes: cfg.MaxContentBytes,
		StoreTimeout:    cfg.StoreTimeout,
	}, &disabledLogger)
	_, err = msgService.EnsureDefaultChannel(context.Background(), cfg.DefaultChannel, "General discussion channel")
	require.NoError(t, err)

	server := NewServer(Deps{
		Hub:      hub,
		Auth:     authService,
		Store:    st,
		Messages: msgService,
		Metrics:  collector,
	}, &cfg, &disabledLogger)

	ts := httptest.NewUnstartedServer(server.Handler)
	ts.Config.BaseContext = server.BaseContext
	ts.Start()
	t.Cleanup(ts.Close)

	return &testEnv{
		cfg:      cfg,
		store:    st,
		auth:     authService,
		hub:      hub,
		messages: msgService,
		metrics:  collector,
		server:   server,
		ts:       ts,
	}
}

// registerUser creates a user through the auth service and returns its id and token.
func (e *testEnv) registerUser(t *testing.T, username string) (int64, string) {
	t.Helper()

	user, token, err := e.auth.Register(context.Background(), username, "password123")
	require.NoError(t, err)
	return user.ID, token
}

// do runs a request against the router in-process.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), v), resp.Body.String())
}
