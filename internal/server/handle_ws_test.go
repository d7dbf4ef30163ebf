package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestHandleWSEvents(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "ABC123", "081234567890")

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws/events?token=" + token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	w := env.do(http.MethodPost, "/api/locations/main_lobby/scan", token, ScanRequest{Code: "TREASURE_MAIN_LOBBY"})
	if w.Code != http.StatusOK {
		t.Fatalf("scan: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "scan_accepted" || ev.LocationID != "main_lobby" || ev.Stage != "AWAITING_PHOTO" {
		t.Errorf("unexpected event: %+v", ev)
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestHandleWSEventsRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"/ws/events", nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}
