package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trading-runtime/internal/events"
	"trading-runtime/internal/monitor"
	"trading-runtime/internal/oms"
	"trading-runtime/internal/strategy"
	"trading-runtime/pkg/objects"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *events.Engine, *oms.Engine) {
	t.Helper()
	engine := events.NewEngine(time.Hour)
	store := oms.NewEngine(engine)
	metrics := monitor.NewCollector(engine, monitor.NewSystemMetrics())
	srv := NewServer(engine, store, metrics, SystemMeta{
		Venue:   "PAPER",
		Symbols: []string{"AAPL"},
		Version: "test",
	})
	engine.Start()
	t.Cleanup(engine.Stop)
	return srv, engine, store
}

func drain(t *testing.T, engine *events.Engine) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if engine.QueueLen() == 0 {
			time.Sleep(10 * time.Millisecond)
			if engine.QueueLen() == 0 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("queue did not drain")
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestHealthAndStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}

	w = doRequest(srv, http.MethodGet, "/api/system/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["venue"] != "PAPER" || status["version"] != "test" {
		t.Fatalf("status = %v", status)
	}
}

func TestStateEndpointsReflectOMS(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	engine.Put(events.Event{Type: events.EventOrder, Data: objects.OrderData{
		Symbol: "AAPL", OrderID: "PAPER000001",
		Direction: objects.DirectionLong, Status: objects.StatusNotTraded,
	}})
	engine.Put(events.Event{Type: events.EventTrade, Data: objects.TradeData{
		Symbol: "AAPL", OrderID: "PAPER000001", TradeID: "t1",
		Direction: objects.DirectionLong, Price: 150, Volume: 10,
	}})
	engine.Put(events.Event{Type: events.EventAccount, Data: objects.AccountData{
		AccountID: "PAPER", Balance: 98500,
	}})
	drain(t, engine)

	var orders struct {
		Orders []objects.OrderData `json:"orders"`
	}
	w := doRequest(srv, http.MethodGet, "/api/orders", "")
	if err := json.Unmarshal(w.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode orders: %v", err)
	}
	if len(orders.Orders) != 1 || orders.Orders[0].OrderID != "PAPER000001" {
		t.Fatalf("orders = %+v", orders)
	}

	w = doRequest(srv, http.MethodGet, "/api/orders/active", "")
	if err := json.Unmarshal(w.Body.Bytes(), &orders); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if len(orders.Orders) != 1 {
		t.Fatalf("active orders = %+v", orders)
	}

	var positions struct {
		Positions []objects.PositionData `json:"positions"`
	}
	w = doRequest(srv, http.MethodGet, "/api/positions", "")
	if err := json.Unmarshal(w.Body.Bytes(), &positions); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if len(positions.Positions) != 1 || positions.Positions[0].Volume != 10 {
		t.Fatalf("positions = %+v", positions)
	}

	var account map[string]any
	w = doRequest(srv, http.MethodGet, "/api/account", "")
	if w.Code != http.StatusOK {
		t.Fatalf("account = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account["balance"].(float64) != 98500 {
		t.Fatalf("account = %v", account)
	}
}

func TestAccountBeforeSnapshotIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if w := doRequest(srv, http.MethodGet, "/api/account", ""); w.Code != http.StatusNotFound {
		t.Fatalf("account = %d, expected 404", w.Code)
	}
}

func TestPostSignalPublishesEvent(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	var mu sync.Mutex
	var received strategy.Signal
	engine.Register(events.EventSignal, func(ev events.Event) {
		if sig, ok := ev.Data.(strategy.Signal); ok {
			mu.Lock()
			received = sig
			mu.Unlock()
		}
	})

	w := doRequest(srv, http.MethodPost, "/api/signal",
		`{"AAPL": {"action": "buy", "quantity": 100, "confidence": 85}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("signal = %d body=%s", w.Code, w.Body.String())
	}
	drain(t, engine)

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("signal event not published")
	}
	if d := received["AAPL"]; d.Action != "buy" || d.Quantity != 100 || d.Confidence != 85 {
		t.Fatalf("decision = %+v", d)
	}
}

func TestPostSignalValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := map[string]string{
		"unknown action":      `{"AAPL": {"action": "yolo", "quantity": 1}}`,
		"negative quantity":   `{"AAPL": {"action": "buy", "quantity": -1}}`,
		"confidence overflow": `{"AAPL": {"action": "buy", "quantity": 1, "confidence": 200}}`,
		"empty body":          `{}`,
		"not json":            `not json`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if w := doRequest(srv, http.MethodPost, "/api/signal", body); w.Code != http.StatusBadRequest {
				t.Fatalf("code = %d, expected 400", w.Code)
			}
		})
	}
}

func TestWebsocketStreamsEvents(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the connection's general handler time to register.
	time.Sleep(50 * time.Millisecond)

	engine.Put(events.Event{Type: events.EventTick, Data: objects.TickData{
		Symbol: "AAPL", LastPrice: 151,
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != events.EventTick {
		t.Fatalf("frame type = %q", msg.Type)
	}
	var tick objects.TickData
	if err := json.Unmarshal(msg.Data, &tick); err != nil {
		t.Fatalf("decode tick: %v", err)
	}
	if tick.Symbol != "AAPL" || tick.LastPrice != 151 {
		t.Fatalf("tick = %+v", tick)
	}
}
