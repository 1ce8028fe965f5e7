package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/auth"
	"github.com/vovakirdan/chatgenie-server/internal/config"
	"github.com/vovakirdan/chatgenie-server/internal/core"
	"github.com/vovakirdan/chatgenie-server/internal/metrics"
	"github.com/vovakirdan/chatgenie-server/internal/service/messages"
	"github.com/vovakirdan/chatgenie-server/internal/store"
)

// Deps are the components the HTTP layer is built on.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Store    store.Store
	Messages *messages.Service
	// Metrics is optional; /metrics is not mounted without it.
	Metrics *metrics.Collector
	// OnPanic receives panics recovered from websocket goroutines.
	OnPanic func(any)
}

// Server is the HTTP server plus the websocket sessions it has hijacked.
type Server struct {
	*stdhttp.Server

	ws         *WSHandler
	cancelBase context.CancelFunc
}

// NewServer builds the HTTP server with REST, websocket and ops routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	channelHandlers := NewChannelHandlers(deps.Messages, logger)
	messageHandlers := NewMessageHandlers(deps.Messages, logger)
	userHandlers := NewUserHandlers(deps.Store, deps.Hub.Registry(), logger)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", apiHandlers.Register)
		authGroup.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(deps.Auth, cfg.AuthTimeout, logger))

		protected.GET("/channels", channelHandlers.ListChannels)
		protected.POST("/channels", channelHandlers.CreateChannel)

		protected.GET("/messages/direct/:userId", messageHandlers.DirectMessages)
		protected.GET("/messages/:channelId", messageHandlers.ChannelMessages)
		protected.POST("/messages", messageHandlers.SendChannelMessage)
		protected.POST("/messages/direct", messageHandlers.SendDirectMessage)

		protected.GET("/users", userHandlers.ListUsers)
		protected.GET("/users/online", userHandlers.OnlineUsers)
	}

	// The upgrade runs outside gin so the handshake reaches the raw writer.
	ws := NewWSHandler(deps.Hub, deps.Auth, cfg, logger, deps.OnPanic)
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	base, cancel := context.WithCancel(context.Background())
	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           withCORS(mux, cfg.CORSOrigins),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		ws:         ws,
		cancelBase: cancel,
	}
}

// CloseSessions cancels every request context, which ends websocket
// sessions, and waits for them to return or for ctx to expire. Call it
// after Shutdown.
func (s *Server) CloseSessions(ctx context.Context) error {
	s.cancelBase()
	return s.ws.Wait(ctx)
}

func withCORS(h stdhttp.Handler, origins []string) stdhttp.Handler {
	if len(origins) == 0 {
		return h
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{stdhttp.MethodGet, stdhttp.MethodPost, stdhttp.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(h)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
