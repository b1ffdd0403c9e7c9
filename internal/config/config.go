package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Pulse    PulseConfig    `yaml:"pulse"`
	NMEA     NMEAConfig     `yaml:"nmea"`
	Clock    ClockConfig    `yaml:"clock"`
	Stale    StaleConfig    `yaml:"stale"`
	Altitude AltitudeConfig `yaml:"altitude"`
	Publish  PublishConfig  `yaml:"publish"`
	FixLog   FixLogConfig   `yaml:"fix_log"`
	Web      WebConfig      `yaml:"web"`
	Faker    FakerConfig    `yaml:"faker"`
}

type SerialConfig struct {
	// Driver is termios, bugst, gpsd or file.
	Driver      string        `yaml:"driver"`
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	GPSDAddr    string        `yaml:"gpsd_addr"`
}

type PulseConfig struct {
	Enable bool `yaml:"enable"`
	// Source is dcd or gpio.
	Source   string        `yaml:"source"`
	GPIOChip string        `yaml:"gpio_chip"`
	GPIOLine int           `yaml:"gpio_line"`
	Timeout  time.Duration `yaml:"timeout"`
}

type NMEAConfig struct {
	RequireChecksum bool   `yaml:"require_checksum"`
	MaxSentences    int    `yaml:"max_sentences"`
	Protocol        string `yaml:"protocol"`
	RejectPre2000   bool   `yaml:"reject_pre2000"`
	Debug           bool   `yaml:"debug"`
}

type ClockConfig struct {
	Set    bool `yaml:"set"`
	Force  bool `yaml:"force"`
	DryRun bool `yaml:"dry_run"`
	// OneShotUnpulsed defaults to true; a pointer distinguishes unset.
	OneShotUnpulsed *bool `yaml:"oneshot_unpulsed"`
}

type StaleConfig struct {
	Threshold time.Duration `yaml:"threshold"`
}

type AltitudeConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

type PublishConfig struct {
	Backend string      `yaml:"backend"`
	SHMPath string      `yaml:"shm_path"`
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Redis   RedisConfig `yaml:"redis"`
	UDP     UDPConfig   `yaml:"udp"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Key     string `yaml:"key"`
	Channel string `yaml:"channel"`
}

type UDPConfig struct {
	Dest   string `yaml:"dest"`
	Listen string `yaml:"listen"`
}

type FixLogConfig struct {
	Enable bool `yaml:"enable"`
	// Path "-" or empty writes to stdout.
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type FakerConfig struct {
	// Kind is static or line.
	Kind     string        `yaml:"kind"`
	Lon      float64       `yaml:"lon"`
	Lat      float64       `yaml:"lat"`
	EndLon   float64       `yaml:"end_lon"`
	EndLat   float64       `yaml:"end_lat"`
	Duration time.Duration `yaml:"duration"`
	Flaky    bool          `yaml:"flaky"`
	Interval time.Duration `yaml:"interval"`
	// NMEAOut renders RMC/GGA sentences to stdout instead of publishing.
	NMEAOut bool `yaml:"nmea_out"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Serial.Driver = strings.ToLower(strings.TrimSpace(cfg.Serial.Driver))
	if cfg.Serial.Driver == "" {
		cfg.Serial.Driver = "termios"
	}
	switch cfg.Serial.Driver {
	case "termios", "bugst":
		if cfg.Serial.Device == "" {
			cfg.Serial.Device = "/dev/ttyS0"
		}
	case "gpsd":
		if cfg.Serial.GPSDAddr == "" {
			cfg.Serial.GPSDAddr = "127.0.0.1:2947"
		}
	case "file":
		if cfg.Serial.Device == "" {
			return Config{}, fmt.Errorf("serial.device is required when serial.driver is file")
		}
	default:
		return Config{}, fmt.Errorf("serial.driver must be termios, bugst, gpsd or file")
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 4800
	}
	if cfg.Serial.Baud < 0 {
		return Config{}, fmt.Errorf("serial.baud must be > 0")
	}
	if cfg.Serial.ReadTimeout <= 0 {
		cfg.Serial.ReadTimeout = 2 * time.Second
	}

	if cfg.Pulse.Enable {
		cfg.Pulse.Source = strings.ToLower(strings.TrimSpace(cfg.Pulse.Source))
		if cfg.Pulse.Source == "" {
			cfg.Pulse.Source = "dcd"
		}
		switch cfg.Pulse.Source {
		case "dcd":
			if cfg.Serial.Driver != "termios" && cfg.Serial.Driver != "bugst" {
				return Config{}, fmt.Errorf("pulse.source dcd requires serial.driver termios or bugst")
			}
		case "gpio":
			if cfg.Pulse.GPIOLine < 0 {
				return Config{}, fmt.Errorf("pulse.gpio_line must be >= 0")
			}
		default:
			return Config{}, fmt.Errorf("pulse.source must be dcd or gpio")
		}
	}
	if cfg.Pulse.Timeout <= 0 {
		cfg.Pulse.Timeout = 10 * time.Second
	}

	if cfg.NMEA.Protocol == "" {
		cfg.NMEA.Protocol = "nmea"
	}
	if cfg.NMEA.Protocol != "nmea" {
		return Config{}, fmt.Errorf("nmea.protocol %q is not supported", cfg.NMEA.Protocol)
	}
	if cfg.NMEA.MaxSentences == 0 {
		cfg.NMEA.MaxSentences = 4
	}
	if cfg.NMEA.MaxSentences < 0 {
		return Config{}, fmt.Errorf("nmea.max_sentences must be > 0")
	}

	if cfg.Clock.Force && !cfg.Clock.Set {
		return Config{}, fmt.Errorf("clock.force requires clock.set")
	}
	if cfg.Clock.OneShotUnpulsed == nil {
		on := true
		cfg.Clock.OneShotUnpulsed = &on
	}

	if cfg.Stale.Threshold <= 0 {
		cfg.Stale.Threshold = 30 * time.Second
	}
	if cfg.Altitude.MaxAge < 0 {
		return Config{}, fmt.Errorf("altitude.max_age must be >= 0")
	}

	cfg.Publish.Backend = strings.ToLower(strings.TrimSpace(cfg.Publish.Backend))
	switch cfg.Publish.Backend {
	case "", "shm":
		cfg.Publish.Backend = "shm"
		if cfg.Publish.SHMPath == "" {
			cfg.Publish.SHMPath = "/dev/shm/gpsclock"
		}
	case "mqtt":
		if cfg.Publish.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("publish.mqtt.broker is required")
		}
		if cfg.Publish.MQTT.Topic == "" {
			cfg.Publish.MQTT.Topic = "gpsclock/position"
		}
		if cfg.Publish.MQTT.ClientID == "" {
			cfg.Publish.MQTT.ClientID = "gpsclock"
		}
	case "redis":
		if cfg.Publish.Redis.Addr == "" {
			return Config{}, fmt.Errorf("publish.redis.addr is required")
		}
		if cfg.Publish.Redis.Key == "" {
			cfg.Publish.Redis.Key = "gpsclock:position"
		}
	case "udp":
		if cfg.Publish.UDP.Dest == "" {
			return Config{}, fmt.Errorf("publish.udp.dest is required")
		}
		if cfg.Publish.UDP.Listen == "" {
			cfg.Publish.UDP.Listen = cfg.Publish.UDP.Dest
		}
	case "none":
	default:
		return Config{}, fmt.Errorf("publish.backend must be shm, mqtt, redis, udp or none")
	}

	if cfg.FixLog.Enable && cfg.FixLog.Path == "" {
		cfg.FixLog.Path = "-"
	}

	if cfg.Web.Enable && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	// Faker defaults (safe even if the faker is not used).
	cfg.Faker.Kind = strings.ToLower(strings.TrimSpace(cfg.Faker.Kind))
	if cfg.Faker.Kind == "" {
		cfg.Faker.Kind = "static"
	}
	if cfg.Faker.Kind != "static" && cfg.Faker.Kind != "line" {
		return Config{}, fmt.Errorf("faker.kind must be static or line")
	}
	if cfg.Faker.Kind == "line" && cfg.Faker.Duration <= 0 {
		return Config{}, fmt.Errorf("faker.duration is required when faker.kind is line")
	}
	if cfg.Faker.Interval <= 0 {
		cfg.Faker.Interval = time.Second
	}

	return cfg, nil
}
