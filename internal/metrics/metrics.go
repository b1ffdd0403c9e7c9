package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_frames_total",
			Help: "NMEA frames by framing result.",
		},
		[]string{"result"},
	)

	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_decode_errors_total",
			Help: "Sentences that failed field decoding, by reason.",
		},
		[]string{"reason"},
	)

	fixesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_fixes_total",
			Help: "Decoded sentences by sentence type and usefulness.",
		},
		[]string{"type", "status"},
	)

	clockActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_clock_actions_total",
			Help: "Clock discipline decisions by kind.",
		},
		[]string{"kind"},
	)

	clockDeltaSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gpsclock_clock_delta_seconds",
		Help: "Last measured GPS minus host clock offset.",
	})

	pulsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_pulses_total",
			Help: "Pulse gate outcomes: pulse, timeout, missed.",
		},
		[]string{"outcome"},
	)

	staleTransitionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gpsclock_stale_transitions_total",
		Help: "Times the published position became stale.",
	})

	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_publish_total",
			Help: "Position publications by result.",
		},
		[]string{"result"},
	)

	fixAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gpsclock_fix_age_seconds",
		Help: "Seconds since the last accepted fix.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpsclock_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpsclock_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(decodeErrorsTotal)
	prometheus.MustRegister(fixesTotal)
	prometheus.MustRegister(clockActionsTotal)
	prometheus.MustRegister(clockDeltaSeconds)
	prometheus.MustRegister(pulsesTotal)
	prometheus.MustRegister(staleTransitionsTotal)
	prometheus.MustRegister(publishTotal)
	prometheus.MustRegister(fixAgeSeconds)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Frame counts one framing result ("ready" or a discard reason).
func Frame(result string) {
	framesTotal.WithLabelValues(result).Inc()
}

func DecodeError(reason string) {
	decodeErrorsTotal.WithLabelValues(reason).Inc()
}

func Fix(sentence string, active bool) {
	status := "void"
	if active {
		status = "active"
	}
	fixesTotal.WithLabelValues(sentence, status).Inc()
}

func ClockAction(kind string, delta time.Duration) {
	clockActionsTotal.WithLabelValues(kind).Inc()
	clockDeltaSeconds.Set(delta.Seconds())
}

func Pulse(outcome string) {
	pulsesTotal.WithLabelValues(outcome).Inc()
}

func StaleTransition() {
	staleTransitionsTotal.Inc()
}

func Publish(err error) {
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		return
	}
	publishTotal.WithLabelValues("ok").Inc()
}

func FixAge(d time.Duration) {
	fixAgeSeconds.Set(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer cannot hijack")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
