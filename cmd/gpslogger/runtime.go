package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"gpsclock/internal/clock"
	"gpsclock/internal/config"
	"gpsclock/internal/fixlog"
	"gpsclock/internal/gps"
	"gpsclock/internal/publish"
	"gpsclock/internal/web"
)

func serviceConfig(cfg config.Config) gps.Config {
	return gps.Config{
		PulseTimeout:    cfg.Pulse.Timeout,
		MaxSentences:    cfg.NMEA.MaxSentences,
		RequireChecksum: cfg.NMEA.RequireChecksum,
		RejectPre2000:   cfg.NMEA.RejectPre2000,
		SetClock:        cfg.Clock.Set,
		ForceClock:      cfg.Clock.Force,
		OneShotUnpulsed: cfg.Clock.OneShotUnpulsed == nil || *cfg.Clock.OneShotUnpulsed,
		StaleThreshold:  cfg.Stale.Threshold,
		AltitudeMaxAge:  cfg.Altitude.MaxAge,
		Debug:           cfg.NMEA.Debug,
	}
}

func publishConfig(c config.PublishConfig) publish.Config {
	return publish.Config{
		Backend: c.Backend,
		SHMPath: c.SHMPath,
		MQTT:    publish.MQTTConfig{Broker: c.MQTT.Broker, Topic: c.MQTT.Topic, ClientID: c.MQTT.ClientID},
		Redis:   publish.RedisConfig{Addr: c.Redis.Addr, Key: c.Redis.Key, Channel: c.Redis.Channel},
		UDP:     publish.UDPConfig{Dest: c.UDP.Dest, Listen: c.UDP.Listen},
	}
}

// run wires the configured collaborators and blocks until the acquisition
// loop ends. Resources are released in reverse order of acquisition.
func run(ctx context.Context, cfg config.Config) error {
	src, err := gps.OpenSource(gps.SourceConfig{
		Driver:      cfg.Serial.Driver,
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
		GPSDAddr:    cfg.Serial.GPSDAddr,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	var gate gps.Gate
	if cfg.Pulse.Enable {
		gate, err = gps.OpenGate(gps.GateConfig{
			Source:   cfg.Pulse.Source,
			GPIOChip: cfg.Pulse.GPIOChip,
			GPIOLine: cfg.Pulse.GPIOLine,
		}, src)
		if err != nil {
			return err
		}
		defer gate.Close()
		log.Printf("pulse enabled source=%s timeout=%s", cfg.Pulse.Source, cfg.Pulse.Timeout)
	}

	pub, err := publish.Open(publishConfig(cfg.Publish))
	if err != nil {
		return err
	}
	defer pub.Close()

	var hub *web.Hub
	if cfg.Web.Enable {
		hub = web.NewHub()
		pub = publish.Tee(pub, hub)
	}

	deps := gps.Deps{
		Source:    src,
		Gate:      gate,
		Publisher: pub,
		Adjuster:  clock.New(cfg.Clock.DryRun),
	}
	if cfg.FixLog.Enable {
		fl, err := fixlog.Create(cfg.FixLog.Path)
		if err != nil {
			return fmt.Errorf("fix log: %w", err)
		}
		defer fl.Close()
		deps.FixLog = fl
	}

	svc := gps.New(serviceConfig(cfg), deps)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	webErr := make(chan error, 1)
	if cfg.Web.Enable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("web listening addr=%s", cfg.Web.Listen)
			if err := web.Serve(runCtx, cfg.Web.Listen, web.Handler(svc, hub, version)); err != nil {
				webErr <- fmt.Errorf("web: %w", err)
				cancel()
			}
		}()
	}

	err = svc.Run(runCtx)
	cancel()
	if hub != nil {
		// Hijacked websocket connections outlive the server's Shutdown.
		hub.Close()
	}
	wg.Wait()

	select {
	case werr := <-webErr:
		err = errors.Join(err, werr)
	default:
	}
	return err
}
