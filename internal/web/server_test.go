package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gpsclock/internal/gps"
)

type fakeSource struct {
	mu  sync.Mutex
	pos gps.Position
}

func (f *fakeSource) Position() gps.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeSource) Status() gps.Status {
	return gps.Status{Position: f.Position(), Frames: 7, ClockEnabled: true}
}

func fixedPosition() gps.Position {
	return gps.Position{
		Lon: 11.516667, Lat: 48.1173, Alt: 545.4,
		XYValid: true, ZValid: true, TValid: true,
		GPSTime: time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC),
	}
}

func TestAPIPosition(t *testing.T) {
	src := &fakeSource{pos: fixedPosition()}
	ts := httptest.NewServer(Handler(src, NewHub(), "test"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/position")
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var p gps.Position
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if p.Lat != 48.1173 || !p.XYValid || !p.GPSTime.Equal(fixedPosition().GPSTime) {
		t.Fatalf("position=%+v", p)
	}
}

func TestAPIStatus(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeSource{pos: fixedPosition()}, nil, "test"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var st gps.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if st.Frames != 7 || !st.ClockEnabled || st.Position.Lon != 11.516667 {
		t.Fatalf("status=%+v", st)
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeSource{}, nil, "test"))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodGet {
		t.Fatalf("status code=%d allow=%q", resp.StatusCode, resp.Header.Get("Allow"))
	}
}

func TestHealthz(t *testing.T) {
	src := &fakeSource{pos: gps.InitialPosition()}
	ts := httptest.NewServer(Handler(src, nil, "test"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("stale status code=%d", resp.StatusCode)
	}

	src.mu.Lock()
	src.pos = fixedPosition()
	src.mu.Unlock()
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fresh status code=%d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeSource{pos: fixedPosition()}, nil, "test"))
	defer ts.Close()

	// One request through the middleware so the request counter has a series.
	if resp, err := http.Get(ts.URL + "/api/position"); err == nil {
		resp.Body.Close()
	}
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"gpsclock_stale_transitions_total", "gpsclock_http_requests_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics missing %s", name)
		}
	}
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeSource{pos: fixedPosition()}, nil, "test"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "lat=48.117300") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}

	resp2, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d", resp2.StatusCode)
	}
}

func TestPositionWebSocket(t *testing.T) {
	hub := NewHub()
	_ = hub.Update(fixedPosition())
	ts := httptest.NewServer(Handler(&fakeSource{}, hub, "test"))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/position/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first gps.Position
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Lat != 48.1173 {
		t.Fatalf("first=%+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	next := fixedPosition()
	next.Stale = true
	_ = hub.Update(next)

	var second gps.Position
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !second.Stale {
		t.Fatalf("second=%+v", second)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	id, ch := hub.Subscribe(1)
	for i := 0; i < 10; i++ {
		_ = hub.Update(fixedPosition())
	}
	if len(ch) != 1 {
		t.Fatalf("buffered=%d", len(ch))
	}
	hub.Unsubscribe(id)
	if _, ok := <-ch; !ok {
		t.Fatalf("expected buffered value before close")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", hub.Subscribers())
	}
}

func TestAPIAbout(t *testing.T) {
	rec := httptest.NewRecorder()
	AboutHandler("1.2.3").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/about", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code=%d", rec.Code)
	}
	var resp AboutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if resp.Service != "gpsclock" || resp.Version != "1.2.3" || resp.GoVersion == "" {
		t.Fatalf("about=%+v", resp)
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	_, ch := hub.Subscribe(1)
	hub.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if err := hub.Update(fixedPosition()); err != nil {
		t.Fatalf("update after close: %v", err)
	}
	_, late := hub.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close should get a closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", hub.Subscribers())
	}
	hub.Close()
}

func TestPositionWebSocket_HubCloseEndsStream(t *testing.T) {
	hub := NewHub()
	_ = hub.Update(fixedPosition())
	ts := httptest.NewServer(Handler(&fakeSource{}, hub, "test"))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/position/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first gps.Position
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}

	hub.Close()

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err=%v want going-away close", err)
	}
}
