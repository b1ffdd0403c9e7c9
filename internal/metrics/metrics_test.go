package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(publishTotal.WithLabelValues("error"))
	Publish(errors.New("boom"))
	if got := testutil.ToFloat64(publishTotal.WithLabelValues("error")); got != before+1 {
		t.Fatalf("publish error=%v want %v", got, before+1)
	}

	before = testutil.ToFloat64(fixesTotal.WithLabelValues("GGA", "void"))
	Fix("GGA", false)
	if got := testutil.ToFloat64(fixesTotal.WithLabelValues("GGA", "void")); got != before+1 {
		t.Fatalf("fixes=%v want %v", got, before+1)
	}

	ClockAction("smooth_adjust", -250*time.Millisecond)
	if got := testutil.ToFloat64(clockDeltaSeconds); got != -0.25 {
		t.Fatalf("delta=%v", got)
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/brew", http.MethodGet, "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("code=%d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/brew", http.MethodGet, "418")); got != before+1 {
		t.Fatalf("requests=%v want %v", got, before+1)
	}
}

func TestMiddleware_HijackUnsupported(t *testing.T) {
	var hijackErr error
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("wrapper does not implement http.Hijacker")
			return
		}
		_, _, hijackErr = hj.Hijack()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if hijackErr == nil {
		t.Fatalf("expected hijack error from recorder")
	}
}

func TestHandler_Exposes(t *testing.T) {
	Pulse("timeout")
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(b), `gpsclock_pulses_total{outcome="timeout"}`) {
		t.Fatalf("pulses metric missing from scrape")
	}
}
