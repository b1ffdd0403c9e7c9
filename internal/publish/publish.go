// Package publish makes the latest gps.Position available to other processes.
//
// Backends: shm (memory-mapped file with a sequence lock), mqtt (retained
// message), redis (key plus pub/sub notification), udp (datagrams) and none.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gpsclock/internal/gps"
)

var (
	// ErrChannel wraps failures to create or use a publication channel.
	ErrChannel = errors.New("publication channel")
	// ErrNoData is returned by Subscriber.Current before anything was published.
	ErrNoData = errors.New("no position published yet")
)

type Publisher interface {
	Update(gps.Position) error
	Close() error
}

type Subscriber interface {
	// Current returns the most recently published position.
	Current() (gps.Position, error)
	Close() error
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

type RedisConfig struct {
	Addr    string
	Key     string
	Channel string
}

type UDPConfig struct {
	// Dest is where publishers send datagrams.
	Dest string
	// Listen is where subscribers receive them.
	Listen string
}

type Config struct {
	// Backend is one of "shm", "mqtt", "redis", "udp" or "none".
	Backend string
	SHMPath string
	MQTT    MQTTConfig
	Redis   RedisConfig
	UDP     UDPConfig
}

// Open creates the configured publisher. Errors wrap ErrChannel.
func Open(cfg Config) (Publisher, error) {
	var (
		p   Publisher
		err error
	)
	switch backend(cfg) {
	case "shm":
		p, err = openSHM(cfg.SHMPath)
	case "mqtt":
		p, err = openMQTT(cfg.MQTT)
	case "redis":
		p, err = openRedis(cfg.Redis)
	case "udp":
		p, err = openUDP(cfg.UDP.Dest)
	case "none":
		p = Discard{}
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrChannel, cfg.Backend, err)
	}
	return p, nil
}

// Subscribe attaches to the configured channel as a reader. Errors wrap ErrChannel.
func Subscribe(cfg Config) (Subscriber, error) {
	var (
		s   Subscriber
		err error
	)
	switch backend(cfg) {
	case "shm":
		s, err = subscribeSHM(cfg.SHMPath)
	case "mqtt":
		s, err = subscribeMQTT(cfg.MQTT)
	case "redis":
		s, err = subscribeRedis(cfg.Redis)
	case "udp":
		s, err = subscribeUDP(cfg.UDP.Listen)
	default:
		err = fmt.Errorf("backend %q cannot be subscribed to", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrChannel, cfg.Backend, err)
	}
	return s, nil
}

func backend(cfg Config) string {
	b := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if b == "" {
		return "shm"
	}
	return b
}

// Discard accepts and drops every update.
type Discard struct{}

func (Discard) Update(gps.Position) error { return nil }
func (Discard) Close() error              { return nil }

// Tee forwards every update to p and to each extra receiver. The error of p
// is returned; extra receivers' errors are joined to it.
func Tee(p Publisher, extra ...gps.Publisher) Publisher {
	return &tee{Publisher: p, extra: extra}
}

type tee struct {
	Publisher
	extra []gps.Publisher
}

func (t *tee) Update(pos gps.Position) error {
	errs := []error{t.Publisher.Update(pos)}
	for _, e := range t.extra {
		errs = append(errs, e.Update(pos))
	}
	return errors.Join(errs...)
}

func encode(pos gps.Position) ([]byte, error) {
	return json.Marshal(pos)
}

func decode(b []byte) (gps.Position, error) {
	var pos gps.Position
	if err := json.Unmarshal(b, &pos); err != nil {
		return gps.Position{}, fmt.Errorf("decode position: %w", err)
	}
	return pos, nil
}
