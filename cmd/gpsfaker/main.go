package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpsclock/internal/config"
	"gpsclock/internal/faker"
	"gpsclock/internal/gps"
	"gpsclock/internal/publish"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./gpsclock.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Printf("gpsfaker stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	f, err := faker.New(faker.Config{
		Kind:     faker.Kind(cfg.Faker.Kind),
		Lon:      cfg.Faker.Lon,
		Lat:      cfg.Faker.Lat,
		EndLon:   cfg.Faker.EndLon,
		EndLat:   cfg.Faker.EndLat,
		Duration: cfg.Faker.Duration,
		Flaky:    cfg.Faker.Flaky,
	}, time.Now())
	if err != nil {
		return err
	}

	emit, closeFn, err := emitter(cfg, out)
	if err != nil {
		return err
	}
	defer closeFn()

	log.Printf("gpsfaker starting kind=%s flaky=%t interval=%s nmea_out=%t", cfg.Faker.Kind, cfg.Faker.Flaky, cfg.Faker.Interval, cfg.Faker.NMEAOut)
	return f.Run(ctx, cfg.Faker.Interval, emit)
}

// emitter renders fixes as NMEA on out, or publishes them on the configured channel.
func emitter(cfg config.Config, out io.Writer) (func(gps.Position) error, func(), error) {
	if cfg.Faker.NMEAOut {
		return func(p gps.Position) error {
			for _, s := range faker.Sentences(p) {
				if _, err := io.WriteString(out, s); err != nil {
					return err
				}
			}
			return nil
		}, func() {}, nil
	}

	pub, err := publish.Open(publish.Config{
		Backend: cfg.Publish.Backend,
		SHMPath: cfg.Publish.SHMPath,
		MQTT:    publish.MQTTConfig{Broker: cfg.Publish.MQTT.Broker, Topic: cfg.Publish.MQTT.Topic, ClientID: cfg.Publish.MQTT.ClientID + "-faker"},
		Redis:   publish.RedisConfig{Addr: cfg.Publish.Redis.Addr, Key: cfg.Publish.Redis.Key, Channel: cfg.Publish.Redis.Channel},
		UDP:     publish.UDPConfig{Dest: cfg.Publish.UDP.Dest},
	})
	if err != nil {
		return nil, nil, err
	}
	return func(p gps.Position) error {
		if err := pub.Update(p); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	}, func() { _ = pub.Close() }, nil
}
