package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpsclock/internal/config"
	"gpsclock/internal/gps"
	"gpsclock/internal/publish"
)

func main() {
	var (
		configPath string
		interval   time.Duration
	)
	flag.StringVar(&configPath, "config", "./gpsclock.yaml", "Path to YAML config")
	flag.DurationVar(&interval, "interval", time.Second, "Poll interval")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sub, err := publish.Subscribe(publish.Config{
		Backend: cfg.Publish.Backend,
		SHMPath: cfg.Publish.SHMPath,
		MQTT:    publish.MQTTConfig{Broker: cfg.Publish.MQTT.Broker, Topic: cfg.Publish.MQTT.Topic, ClientID: cfg.Publish.MQTT.ClientID + "-client"},
		Redis:   publish.RedisConfig{Addr: cfg.Publish.Redis.Addr, Key: cfg.Publish.Redis.Key},
		UDP:     publish.UDPConfig{Listen: cfg.Publish.UDP.Listen},
	})
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	poll(ctx, sub, interval, os.Stdout)
}

type currentReader interface {
	Current() (gps.Position, error)
}

// poll prints the current position once per interval until ctx is done.
func poll(ctx context.Context, sub currentReader, interval time.Duration, out io.Writer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p, err := sub.Current()
		switch {
		case err == nil:
			fmt.Fprintln(out, formatPosition(p))
		case errors.Is(err, publish.ErrNoData):
			fmt.Fprintln(out, "currentPosition: none")
		default:
			log.Printf("read position: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func formatPosition(p gps.Position) string {
	s := fmt.Sprintf("currentPosition: %f:%f:%f", p.Lon, p.Lat, p.Alt)
	if p.Stale {
		s += " (stale)"
	}
	return s
}
