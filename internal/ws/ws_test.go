package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tree_ton/internal/domain"
	"tree_ton/internal/service"
	"tree_ton/internal/session"
	"tree_ton/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type fixture struct {
	url     string
	hub     *Hub
	manager *session.Manager
	user    domain.User
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("ws-test-secret")

	st := store.NewMemory()
	u := domain.NewUser(9001, "streamer", "Stream", "", time.Now())
	if err := st.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	hub := NewHub()
	m := session.NewManager(st, session.ManagerOptions{Session: session.Options{
		Clock:    clockwork.NewFakeClock(),
		OnChange: hub.Publish,
	}})
	t.Cleanup(m.CloseAll)

	r := gin.New()
	r.GET("/ws", HandleWS(hub, m, "", 5))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.CloseAll)

	token, err := service.GenerateJWT(u.ID, service.RoleUser)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	return &fixture{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:     hub,
		manager: m,
		user:    u,
		token:   token,
	}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?token="+f.token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

func readState(t *testing.T, conn *websocket.Conn) domain.User {
	t.Helper()
	msg := readMessage(t, conn)
	if msg.Type != MsgState {
		t.Fatalf("expected state, got %s (%s)", msg.Type, msg.Data)
	}
	var p StatePayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return p.User
}

func TestStreamSendsInitialStateAndTaps(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	initial := readState(t, conn)
	if initial.ID != f.user.ID || initial.Energy != domain.DefaultEnergy {
		t.Fatalf("unexpected initial state %+v", initial)
	}

	if err := conn.WriteJSON(Message{Type: MsgTap}); err != nil {
		t.Fatalf("write: %v", err)
	}
	after := readState(t, conn)
	if after.Points != 1 || after.Energy != domain.DefaultEnergy-1 {
		t.Fatalf("tap not applied: points=%d energy=%d", after.Points, after.Energy)
	}

	if err := conn.WriteJSON(Message{Type: MsgPing}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MsgPong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}
}

func TestStreamReceivesServerSideChanges(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	readState(t, a)
	readState(t, b)

	if n := f.hub.Connections(f.user.ID); n != 2 {
		t.Fatalf("connections = %d", n)
	}

	_, err := f.manager.Update(context.Background(), f.user.ID, "credit", func(u domain.User) (domain.User, error) {
		u.Coins += 100
		return u, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		if got := readState(t, conn); got.Coins != 100 {
			t.Fatalf("coins = %d", got.Coins)
		}
	}
}

func TestUnknownMessageGetsError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readState(t, conn)

	if err := conn.WriteJSON(Message{Type: "move"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MsgError {
		t.Fatalf("expected error, got %s", msg.Type)
	}
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(f.url+q, nil)
		if err == nil {
			t.Fatalf("dial %q succeeded", q)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("dial %q: expected 401, got %v", q, resp)
		}
	}
}
