package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatgenie-server/internal/config"
	"github.com/vovakirdan/chatgenie-server/internal/proto"
)

// testOutbound mirrors proto.Outbound with a raw payload for typed decoding.
type testOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWithToken(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, env.wsURL(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// readUntil reads frames until one matches, failing after a deadline.
func readUntil(t *testing.T, conn *websocket.Conn, match func(testOutbound) bool) testOutbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		var out testOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

func isEvent(name string) func(testOutbound) bool {
	return func(o testOutbound) bool { return o.Type == proto.OutboundTypeEvent && o.Event == name }
}

func usersWith(t *testing.T, names ...string) func(testOutbound) bool {
	return func(o testOutbound) bool {
		if !isEvent(proto.EventUsers)(o) {
			return false
		}
		var users []proto.UserEntry
		require.NoError(t, json.Unmarshal(o.Data, &users))
		if len(users) != len(names) {
			return false
		}
		for i, u := range users {
			if u.Username != names[i] {
				return false
			}
		}
		return true
	}
}

func decodeUsers(t *testing.T, o testOutbound) []proto.UserEntry {
	t.Helper()
	var users []proto.UserEntry
	require.NoError(t, json.Unmarshal(o.Data, &users))
	return users
}

func decodeMessage(t *testing.T, o testOutbound) proto.MessagePayload {
	t.Helper()
	var msg proto.MessagePayload
	require.NoError(t, json.Unmarshal(o.Data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	inbound := proto.Inbound{Type: typ}
	if data != nil {
		payload, err := json.Marshal(data)
		require.NoError(t, err)
		inbound.Data = payload
	}
	require.NoError(t, wsjson.Write(ctx, conn, inbound))
}

func TestWebSocketChannelMessageReachesEveryone(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")
	channelID := generalChannelID(t, env, aliceToken)

	alice := dialWithToken(t, env, aliceToken)
	readUntil(t, alice, usersWith(t, "alice"))

	bob := dialWithToken(t, env, bobToken)
	readUntil(t, bob, usersWith(t, "alice", "bob"))
	readUntil(t, alice, usersWith(t, "alice", "bob"))

	resp := env.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]any{
		"content":   "hello everyone",
		"channelId": channelID,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := decodeMessage(t, readUntil(t, conn, isEvent(proto.EventMessage)))
		assert.Equal(t, "hello everyone", msg.Content)
		assert.Equal(t, "alice", msg.Sender.Username)
		require.NotNil(t, msg.ChannelID)
		assert.Equal(t, channelID, *msg.ChannelID)
	}
}

func TestWebSocketDirectMessageToOfflineUser(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.registerUser(t, "alice")
	bobID, bobToken := env.registerUser(t, "bob")

	alice := dialWithToken(t, env, aliceToken)
	readUntil(t, alice, usersWith(t, "alice"))

	resp := env.do(t, http.MethodPost, "/api/messages/direct", aliceToken, map[string]any{
		"content":    "you there?",
		"receiverId": bobID,
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	// The sender still gets its own copy.
	msg := decodeMessage(t, readUntil(t, alice, isEvent(proto.EventMessage)))
	assert.Equal(t, "you there?", msg.Content)

	// Bob finds it in history after connecting.
	bob := dialWithToken(t, env, bobToken)
	readUntil(t, bob, usersWith(t, "alice", "bob"))

	resp = env.do(t, http.MethodGet, "/api/messages/direct/"+itoa(aliceID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var history []proto.MessagePayload
	decodeBody(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "you there?", history[0].Content)
}

func TestWebSocketInvalidCredentialIsRejected(t *testing.T) {
	env := newTestEnv(t)

	conn := dialWithToken(t, env, "not-a-jwt")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out testOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, proto.OutboundTypeError, out.Type)
	require.NotNil(t, out.Error)
	assert.Equal(t, "unauthorized", out.Error.Code)

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	assert.Zero(t, env.hub.Registry().Len())
}

func TestWebSocketHelloFrameAndQueryToken(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "alice")
	_, bobToken := env.registerUser(t, "bob")

	alice := dialWithToken(t, env, "")
	send(t, alice, proto.InboundTypeHello, proto.HelloData{Token: aliceToken, Protocol: proto.ProtocolVersion})
	readUntil(t, alice, usersWith(t, "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	bob, _, err := websocket.Dial(ctx, env.wsURL()+"?token="+bobToken, nil)
	require.NoError(t, err)
	defer bob.CloseNow()
	readUntil(t, bob, usersWith(t, "alice", "bob"))
}

func TestWebSocketProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "alice")

	conn := dialWithToken(t, env, "")
	send(t, conn, proto.InboundTypeHello, proto.HelloData{Token: token, Protocol: proto.ProtocolVersion + 1})

	out := readUntil(t, conn, func(o testOutbound) bool { return o.Type == proto.OutboundTypeError })
	require.NotNil(t, out.Error)
	assert.Equal(t, "unsupported_version", out.Error.Code)
}

func TestWebSocketHandshakeTimeout(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AuthTimeout = 100 * time.Millisecond
	})

	conn := dialWithToken(t, env, "")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	require.NoError(t, ctx.Err(), "server should close the silent connection")
	assert.Zero(t, env.hub.Registry().Len())
}

func TestWebSocketGetUsersAndUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "alice")

	conn := dialWithToken(t, env, token)
	readUntil(t, conn, usersWith(t, "alice"))

	send(t, conn, "bogus", nil)
	out := readUntil(t, conn, func(o testOutbound) bool { return o.Type == proto.OutboundTypeError })
	assert.Equal(t, "bad_request", out.Error.Code)

	// The session keeps working after a bad frame.
	send(t, conn, proto.InboundTypeGetUsers, nil)
	users := decodeUsers(t, readUntil(t, conn, isEvent(proto.EventUsers)))
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
	assert.NotEmpty(t, users[0].ConnectionID)

	send(t, conn, proto.InboundTypeMessage, proto.ClientMessageData{Content: "informational"})
	send(t, conn, proto.InboundTypeGetUsers, nil)
	readUntil(t, conn, isEvent(proto.EventUsers))
}

func TestWebSocketReconnectKeepsNewestConnection(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "alice")

	first := dialWithToken(t, env, token)
	firstUsers := decodeUsers(t, readUntil(t, first, usersWith(t, "alice")))

	second := dialWithToken(t, env, token)
	secondUsers := decodeUsers(t, readUntil(t, second, usersWith(t, "alice")))
	require.NotEqual(t, firstUsers[0].ConnectionID, secondUsers[0].ConnectionID)

	// Closing the superseded connection must not take alice offline.
	require.NoError(t, first.Close(websocket.StatusNormalClosure, "bye"))
	time.Sleep(100 * time.Millisecond)

	send(t, second, proto.InboundTypeGetUsers, nil)
	users := decodeUsers(t, readUntil(t, second, isEvent(proto.EventUsers)))
	require.Len(t, users, 1)
	assert.Equal(t, secondUsers[0].ConnectionID, users[0].ConnectionID)

	resp := env.do(t, http.MethodGet, "/api/users/online", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var online []proto.UserEntry
	decodeBody(t, resp, &online)
	require.Len(t, online, 1)

	// Closing the current connection does.
	require.NoError(t, second.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return env.hub.Registry().Len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocketRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 1
	})
	_, token := env.registerUser(t, "alice")

	conn := dialWithToken(t, env, token)
	readUntil(t, conn, usersWith(t, "alice"))

	send(t, conn, proto.InboundTypeGetUsers, nil)
	readUntil(t, conn, isEvent(proto.EventUsers))

	send(t, conn, proto.InboundTypeGetUsers, nil)
	out := readUntil(t, conn, func(o testOutbound) bool { return o.Type == proto.OutboundTypeError })
	assert.Equal(t, "rate_limited", out.Error.Code)
}

func TestWebSocketSessionsCloseOnShutdown(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "alice")

	conn := dialWithToken(t, env, token)
	readUntil(t, conn, usersWith(t, "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.server.CloseSessions(ctx))
	require.Eventually(t, func() bool { return env.hub.Registry().Len() == 0 }, 2*time.Second, 20*time.Millisecond)

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	for {
		var out testOutbound
		if err := wsjson.Read(readCtx, conn, &out); err != nil {
			assert.NotErrorIs(t, err, context.DeadlineExceeded)
			return
		}
	}
}

func TestConnectionGoroutinePanicIsReported(t *testing.T) {
	reported := make(chan any, 1)
	h := &WSHandler{onPanic: func(r any) { reported <- r }}

	errCh := make(chan error, 1)
	h.spawn(errCh, func() error { panic("read loop") })

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read loop")
	case <-time.After(time.Second):
		t.Fatal("panicking goroutine produced no result")
	}
	assert.Equal(t, "read loop", <-reported)
}
