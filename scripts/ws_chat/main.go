package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatgenie-server/internal/proto"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

type channel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type client struct {
	api   string
	token string
	http  *http.Client
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "password123", "password")
	channelName := flag.String("channel", "General", "channel to post into")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	c := &client{api: strings.TrimRight(*api, "/"), http: &http.Client{Timeout: 10 * time.Second}}
	if err := c.authenticate(ctx, *user, *password); err != nil {
		return err
	}

	channelID, err := c.findChannel(ctx, *channelName)
	if err != nil {
		return err
	}

	wsURL := "ws" + strings.TrimPrefix(c.api, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as %s, posting to #%s\n", wsURL, *user, *channelName)
	fmt.Println("Type a message and press Enter. /users lists online users, /dm <id> <text> sends a direct message. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, c, channelID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// authenticate logs in, registering the user first when it does not exist.
func (c *client) authenticate(ctx context.Context, user, password string) error {
	body := map[string]string{"username": user, "password": password}

	var resp authResponse
	status, err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if status == http.StatusNotFound {
		status, err = c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("authenticate: unexpected status %d", status)
	}
	c.token = resp.Token
	return nil
}

func (c *client) findChannel(ctx context.Context, name string) (int64, error) {
	var channels []channel
	status, err := c.do(ctx, http.MethodGet, "/api/channels", nil, &channels)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("list channels: unexpected status %d", status)
	}
	for _, ch := range channels {
		if ch.Name == name {
			return ch.ID, nil
		}
	}
	return 0, fmt.Errorf("channel %q not found", name)
}

func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.api+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventMessage:
			var msg proto.MessagePayload
			if err := json.Unmarshal(outbound.Data, &msg); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			where := "dm"
			if msg.ChannelID != nil {
				where = "#" + strconv.FormatInt(*msg.ChannelID, 10)
			}
			fmt.Printf("[%s] %s: %s\n", where, msg.Sender.Username, msg.Content)
		case proto.EventUsers:
			var users []proto.UserEntry
			if err := json.Unmarshal(outbound.Data, &users); err != nil {
				log.Printf("unmarshal users: %v", err)
				continue
			}
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, fmt.Sprintf("%s(%d)", u.Username, u.ID))
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, c *client, channelID int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if text == "/users" {
				if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeGetUsers}); err != nil {
					log.Printf("send error: %v", err)
					return
				}
				continue
			}

			path, body := "/api/messages", map[string]any{"content": text, "channelId": channelID}
			if rest, ok := strings.CutPrefix(text, "/dm "); ok {
				idStr, content, found := strings.Cut(rest, " ")
				receiverID, err := strconv.ParseInt(idStr, 10, 64)
				if !found || err != nil {
					fmt.Println("usage: /dm <user id> <text>")
					continue
				}
				path, body = "/api/messages/direct", map[string]any{"content": content, "receiverId": receiverID}
			}

			status, err := c.do(ctx, http.MethodPost, path, body, nil)
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
			if status != http.StatusCreated {
				fmt.Printf("send failed: status %d\n", status)
			}
		}
	}
}
