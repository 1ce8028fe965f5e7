package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatgenie-server/internal/config"
	"github.com/vovakirdan/chatgenie-server/internal/core"
	"github.com/vovakirdan/chatgenie-server/internal/proto"
	"github.com/vovakirdan/chatgenie-server/internal/utils"
)

const rejectWriteTimeout = time.Second

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	hub      *core.Hub
	verifier core.Verifier
	cfg      *config.Config
	log      *zerolog.Logger
	onPanic  func(any)

	// active tracks hijacked connections, which http.Server.Shutdown does not wait for.
	active sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler. onPanic receives panics
// recovered from connection goroutines and may be nil.
func NewWSHandler(hub *core.Hub, verifier core.Verifier, cfg *config.Config, logger *zerolog.Logger, onPanic func(any)) *WSHandler {
	return &WSHandler{hub: hub, verifier: verifier, cfg: cfg, log: logger, onPanic: onPanic}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Counted before the upgrade so Shutdown, which waits for requests up to
	// the hijack, orders every Add before Wait.
	h.active.Add(1)
	defer h.active.Done()

	credential := credentialFromRequest(r)

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := utils.NewID()
	session := core.NewSession(h.hub, h.verifier, connID, core.SessionOptions{
		AuthTimeout: h.cfg.AuthTimeout,
	}, h.log)

	if credential == "" {
		credential, err = h.readHello(ctx, conn)
		if err != nil {
			h.reject(conn, connID, err)
			return
		}
	}

	client, err := session.Open(ctx, credential)
	if err != nil {
		h.reject(conn, connID, err)
		return
	}
	defer session.Close()

	h.log.Debug().Int64("user_id", client.UserID).Str("conn_id", client.ID).Msg("ws session active")

	errCh := make(chan error, 2)
	h.spawn(errCh, func() error { return h.readLoop(ctx, conn, session, client) })
	h.spawn(errCh, func() error { return h.writeLoop(ctx, conn, client) })

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	_ = conn.Close(status, reason)
}

// spawn runs fn and always delivers exactly one result to errCh, including
// when fn panics.
func (h *WSHandler) spawn(errCh chan<- error, fn func() error) {
	utils.SafeGo(func(r any) {
		errCh <- fmt.Errorf("connection goroutine panic: %v", r)
		if h.onPanic != nil {
			h.onPanic(r)
		}
	}, func() {
		errCh <- fn()
	})
}

// Wait blocks until every upgraded connection has returned or ctx is done.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if len(h.cfg.CORSOrigins) == 0 || slices.Contains(h.cfg.CORSOrigins, "*") {
		opts.InsecureSkipVerify = true
		return opts
	}
	opts.OriginPatterns = h.cfg.CORSOrigins
	return opts
}

// readHello waits for the hello frame that carries the credential.
func (h *WSHandler) readHello(ctx context.Context, conn *websocket.Conn) (string, error) {
	helloCtx, cancel := context.WithTimeout(ctx, h.cfg.AuthTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(helloCtx, conn, &inbound); err != nil {
		return "", fmt.Errorf("read hello: %v: %w", err, core.ErrUnauthorized)
	}
	if inbound.Type != proto.InboundTypeHello {
		return "", fmt.Errorf("expected hello, got %q: %w", inbound.Type, core.ErrUnauthorized)
	}

	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return "", fmt.Errorf("decode hello: %v: %w", err, core.ErrUnauthorized)
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return "", core.NewError("unsupported_version", "protocol version %d is not supported", hello.Protocol)
	}
	return hello.Token, nil
}

// reject reports a failed handshake to the peer and closes the connection.
func (h *WSHandler) reject(conn *websocket.Conn, connID string, err error) {
	ce := core.ErrorFor(err)
	status := websocket.StatusPolicyViolation
	if ce.Code == core.ErrCodeInternal {
		status = websocket.StatusInternalError
	}

	h.log.Info().Err(err).Str("conn_id", connID).Str("code", ce.Code).Msg("ws handshake rejected")

	ctx, cancel := context.WithTimeout(context.Background(), rejectWriteTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, errorOutbound(ce.Code, ce.Message))
	_ = conn.Close(status, ce.Code)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, errorOutbound(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		if err := session.Handle(cmd); err != nil {
			if errors.Is(err, core.ErrHubStopped) {
				return err
			}
			ce := core.ErrorFor(err)
			if writeErr := wsjson.Write(ctx, conn, errorOutbound(ce.Code, ce.Message)); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// credentialFromRequest extracts a bearer token from the upgrade request, if any.
func credentialFromRequest(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
