package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// tickServer is an httptest websocket host that records incoming subscription
// messages and lets each test script the frames it sends back.
type tickServer struct {
	*httptest.Server
	dials   atomic.Int64
	handler func(conn *websocket.Conn, r *http.Request)
}

func newTickServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *tickServer {
	t.Helper()
	ts := &tickServer{handler: handler}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ts.dials.Add(1)
		ts.handler(conn, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tickServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// readSub consumes the client's {"symbols": [...]} subscription message.
func readSub(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	var msg map[string][]string
	if err := conn.ReadJSON(&msg); err != nil {
		t.Errorf("read subscription message: %v", err)
		return nil
	}
	return msg["symbols"]
}

func waitTick(t *testing.T, sub *TickSubscription) Tick {
	t.Helper()
	select {
	case tk, ok := <-sub.Ticks:
		if !ok {
			t.Fatalf("tick channel closed unexpectedly")
		}
		return tk
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick within 2s")
		return Tick{}
	}
}

func waitConnectivity(t *testing.T, sub *TickSubscription, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case up, ok := <-sub.Connectivity:
			if !ok {
				t.Fatalf("connectivity channel closed while waiting for %v", want)
			}
			if up == want {
				return
			}
		case <-deadline:
			t.Fatalf("no connectivity=%v transition within 2s", want)
		}
	}
}

func TestSubscribeTicksDeliversQuotes(t *testing.T) {
	subs := make(chan []string, 1)
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.URL.Query().Get("terminal_id"); got != "term-1" {
			t.Errorf("terminal_id=%q, expected term-1", got)
		}
		subs <- readSub(t, conn)
		conn.WriteJSON(map[string]any{"type": "tick", "symbol": "R_10", "price": 6312.45, "timestamp": 1700000000})
		conn.WriteJSON(map[string]any{"type": "tick", "symbol": "R_25", "price": 991.2, "timestamp": 1700000001})
		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewStreamClient(srv.wsURL(), "term-1")
	sub := c.SubscribeTicks(context.Background(), []string{"R_10", "R_25"})
	defer sub.Close()

	waitConnectivity(t, sub, true)

	select {
	case got := <-subs:
		if len(got) != 2 || got[0] != "R_10" {
			t.Fatalf("subscription symbols=%v, expected [R_10 R_25]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the subscription message")
	}

	first := waitTick(t, sub)
	if first.Symbol != "R_10" || first.Price != 6312.45 || first.Timestamp != 1700000000 {
		t.Fatalf("first tick=%+v, expected R_10/6312.45", first)
	}
	second := waitTick(t, sub)
	if second.Symbol != "R_25" {
		t.Fatalf("second tick symbol=%s, expected R_25", second.Symbol)
	}
}

func TestSubscribeTicksDropsMalformedFrames(t *testing.T) {
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		readSub(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`))
		conn.WriteJSON(map[string]any{"type": "heartbeat"})
		conn.WriteJSON(map[string]any{"type": "tick", "price": 1.0}) // missing symbol
		conn.WriteJSON(map[string]any{"type": "tick", "symbol": "R_10", "price": 42.0, "timestamp": 1})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewStreamClient(srv.wsURL(), "term-1")
	sub := c.SubscribeTicks(context.Background(), []string{"R_10"})
	defer sub.Close()

	got := waitTick(t, sub)
	if got.Symbol != "R_10" || got.Price != 42.0 {
		t.Fatalf("tick=%+v, expected the one well-formed frame", got)
	}
}

func TestSubscribeTicksReconnectsAndResubscribes(t *testing.T) {
	var conns atomic.Int64
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		n := conns.Add(1)
		readSub(t, conn)
		if n == 1 {
			conn.WriteJSON(map[string]any{"type": "tick", "symbol": "R_10", "price": 1.0, "timestamp": 1})
			return // hang up; the client must redial
		}
		conn.WriteJSON(map[string]any{"type": "tick", "symbol": "R_10", "price": 2.0, "timestamp": 2})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewStreamClient(srv.wsURL(), "term-1")
	c.ReconnectDelay = 20 * time.Millisecond
	sub := c.SubscribeTicks(context.Background(), []string{"R_10"})
	defer sub.Close()

	waitConnectivity(t, sub, true)
	if got := waitTick(t, sub); got.Price != 1.0 {
		t.Fatalf("pre-drop tick price=%v, expected 1.0", got.Price)
	}

	// The drop and the re-established connection both surface as transitions.
	waitConnectivity(t, sub, false)
	waitConnectivity(t, sub, true)

	if got := waitTick(t, sub); got.Price != 2.0 {
		t.Fatalf("post-reconnect tick price=%v, expected 2.0", got.Price)
	}
	if dials := srv.dials.Load(); dials < 2 {
		t.Fatalf("dials=%d, expected a reconnect", dials)
	}
}

func TestCloseStopsReconnecting(t *testing.T) {
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		readSub(t, conn)
		// Hang up immediately so the client enters its reconnect loop.
	})

	c := NewStreamClient(srv.wsURL(), "term-1")
	c.ReconnectDelay = 30 * time.Millisecond
	sub := c.SubscribeTicks(context.Background(), []string{"R_10"})

	waitConnectivity(t, sub, true)
	sub.Close()
	sub.Close() // idempotent

	settled := srv.dials.Load()
	time.Sleep(150 * time.Millisecond)
	if after := srv.dials.Load(); after != settled {
		t.Fatalf("dials grew from %d to %d after Close", settled, after)
	}
}

func TestContextCancelStopsStream(t *testing.T) {
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		readSub(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := NewStreamClient(srv.wsURL(), "term-1")
	c.ReconnectDelay = 20 * time.Millisecond
	sub := c.SubscribeTicks(ctx, []string{"R_10"})

	waitConnectivity(t, sub, true)
	cancel()

	// Both channels close once the loop exits; give the teardown a moment.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Ticks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("tick channel still open after context cancel")
		}
	}
}

func TestNotifyCoalescesWhenBufferFull(t *testing.T) {
	ch := make(chan bool, 1)

	notify(ch, true)
	// Buffer is full: the stale true must give way to the newer false.
	notify(ch, false)

	select {
	case got := <-ch:
		if got != false {
			t.Fatalf("connectivity=%v, expected the latest transition false", got)
		}
	default:
		t.Fatalf("no connectivity value buffered")
	}

	select {
	case got := <-ch:
		t.Fatalf("second value %v buffered, expected coalescing to keep one", got)
	default:
	}
}

func TestSubscribeContractStreamsUpdates(t *testing.T) {
	srv := newTickServer(t, func(conn *websocket.Conn, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/ws/contracts/c-7") {
			t.Errorf("path=%s, expected contract channel for c-7", r.URL.Path)
		}
		conn.WriteJSON(map[string]any{"type": "contract", "contract_id": "c-7", "status": "open", "profit": 0.5})
		conn.WriteJSON(map[string]any{"type": "heartbeat"})
		conn.WriteJSON(map[string]any{"type": "contract", "contract_id": "c-7", "status": "sold", "profit": 1.25})
		time.Sleep(100 * time.Millisecond)
	})

	c := NewStreamClient(srv.wsURL(), "term-1")
	sub, err := c.SubscribeContract(context.Background(), "c-7")
	if err != nil {
		t.Fatalf("SubscribeContract returned error: %v", err)
	}
	defer sub.Close()

	var got []ContractUpdate
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case u, ok := <-sub.Updates:
			if !ok {
				t.Fatalf("updates channel closed after %d frames, expected 2", len(got))
			}
			got = append(got, u)
		case <-deadline:
			t.Fatalf("received %d frames within 2s, expected 2", len(got))
		}
	}

	if got[0].Status != "open" || got[1].Status != "sold" {
		t.Fatalf("statuses=%s,%s, expected open,sold", got[0].Status, got[1].Status)
	}
	if got[1].Profit != 1.25 {
		t.Fatalf("final profit=%v, expected 1.25", got[1].Profit)
	}
}

func TestSubscribeContractDialFailure(t *testing.T) {
	c := NewStreamClient("ws://127.0.0.1:1", "term-1")
	if _, err := c.SubscribeContract(context.Background(), "c-1"); err == nil {
		t.Fatalf("SubscribeContract accepted an unreachable host")
	}
}
