package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gpsclock/internal/gps"
	"gpsclock/internal/metrics"
)

// StatusSource is implemented by *gps.Service.
type StatusSource interface {
	Position() gps.Position
	Status() gps.Status
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func Handler(src StatusSource, hub *Hub, version string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/position", getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.Position())
	}))

	mux.HandleFunc("/api/status", getOnly(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.Status())
	}))

	if hub != nil {
		mux.HandleFunc("/api/position/ws", positionStream(hub))
	}

	mux.Handle("/api/about", AboutHandler(version))
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if src.Position().Stale {
			http.Error(w, "stale", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/", getOnly(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		p := src.Position()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpsclock</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>gpsclock</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/metrics\">/metrics</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>lon=%.6f lat=%.6f alt=%.1f\nxy_valid=%t z_valid=%t t_valid=%t stale=%t\ngps_time=%s</pre>",
			p.Lon, p.Lat, p.Alt, p.XYValid, p.ZValid, p.TValid, p.Stale, p.GPSTime.Format(time.RFC3339Nano))
		_, _ = fmt.Fprintf(w, "</body></html>")
	}))

	return metrics.Middleware(mux)
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
