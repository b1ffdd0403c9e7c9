package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Driver != "termios" || cfg.Serial.Device != "/dev/ttyS0" || cfg.Serial.Baud != 4800 {
		t.Fatalf("serial=%+v", cfg.Serial)
	}
	if cfg.Serial.ReadTimeout != 2*time.Second {
		t.Fatalf("read_timeout=%s", cfg.Serial.ReadTimeout)
	}
	if cfg.Pulse.Enable || cfg.Pulse.Timeout != 10*time.Second {
		t.Fatalf("pulse=%+v", cfg.Pulse)
	}
	if cfg.NMEA.MaxSentences != 4 || cfg.NMEA.Protocol != "nmea" || cfg.NMEA.RequireChecksum {
		t.Fatalf("nmea=%+v", cfg.NMEA)
	}
	if cfg.Clock.Set || cfg.Clock.OneShotUnpulsed == nil || !*cfg.Clock.OneShotUnpulsed {
		t.Fatalf("clock=%+v", cfg.Clock)
	}
	if cfg.Stale.Threshold != 30*time.Second || cfg.Altitude.MaxAge != 0 {
		t.Fatalf("stale=%+v altitude=%+v", cfg.Stale, cfg.Altitude)
	}
	if cfg.Publish.Backend != "shm" || cfg.Publish.SHMPath != "/dev/shm/gpsclock" {
		t.Fatalf("publish=%+v", cfg.Publish)
	}
	if cfg.Faker.Kind != "static" || cfg.Faker.Interval != time.Second {
		t.Fatalf("faker=%+v", cfg.Faker)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	body := `
serial:
  driver: bugst
  device: /dev/ttyUSB0
  baud: 9600
pulse:
  enable: true
  timeout: 3s
nmea:
  require_checksum: true
  max_sentences: 6
clock:
  set: true
  force: true
  oneshot_unpulsed: false
altitude:
  max_age: 5s
publish:
  backend: mqtt
  mqtt:
    broker: tcp://broker:1883
fix_log:
  enable: true
web:
  enable: true
`
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Driver != "bugst" || cfg.Serial.Baud != 9600 {
		t.Fatalf("serial=%+v", cfg.Serial)
	}
	if cfg.Pulse.Source != "dcd" || cfg.Pulse.Timeout != 3*time.Second {
		t.Fatalf("pulse=%+v", cfg.Pulse)
	}
	if !cfg.Clock.Set || !cfg.Clock.Force || *cfg.Clock.OneShotUnpulsed {
		t.Fatalf("clock=%+v", cfg.Clock)
	}
	if cfg.Publish.MQTT.Topic != "gpsclock/position" || cfg.Publish.MQTT.ClientID != "gpsclock" {
		t.Fatalf("mqtt=%+v", cfg.Publish.MQTT)
	}
	if cfg.FixLog.Path != "-" || cfg.Web.Listen != ":8080" {
		t.Fatalf("fix_log=%+v web=%+v", cfg.FixLog, cfg.Web)
	}
	if cfg.Altitude.MaxAge != 5*time.Second {
		t.Fatalf("max_age=%s", cfg.Altitude.MaxAge)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "UnknownDriver",
			body: "serial:\n  driver: usb\n",
			want: "serial.driver must be termios, bugst, gpsd or file",
		},
		{
			name: "FileNeedsDevice",
			body: "serial:\n  driver: file\n",
			want: "serial.device is required when serial.driver is file",
		},
		{
			name: "NegativeBaud",
			body: "serial:\n  baud: -1\n",
			want: "serial.baud must be > 0",
		},
		{
			name: "DCDNeedsSerial",
			body: "serial:\n  driver: gpsd\npulse:\n  enable: true\n",
			want: "pulse.source dcd requires serial.driver termios or bugst",
		},
		{
			name: "UnknownPulseSource",
			body: "pulse:\n  enable: true\n  source: radio\n",
			want: "pulse.source must be dcd or gpio",
		},
		{
			name: "BinaryProtocol",
			body: "nmea:\n  protocol: binary\n",
			want: `nmea.protocol "binary" is not supported`,
		},
		{
			name: "ForceWithoutSet",
			body: "clock:\n  force: true\n",
			want: "clock.force requires clock.set",
		},
		{
			name: "NegativeMaxAge",
			body: "altitude:\n  max_age: -1s\n",
			want: "altitude.max_age must be >= 0",
		},
		{
			name: "MQTTNeedsBroker",
			body: "publish:\n  backend: mqtt\n",
			want: "publish.mqtt.broker is required",
		},
		{
			name: "RedisNeedsAddr",
			body: "publish:\n  backend: redis\n",
			want: "publish.redis.addr is required",
		},
		{
			name: "UDPNeedsDest",
			body: "publish:\n  backend: udp\n",
			want: "publish.udp.dest is required",
		},
		{
			name: "UnknownBackend",
			body: "publish:\n  backend: dbus\n",
			want: "publish.backend must be shm, mqtt, redis, udp or none",
		},
		{
			name: "LineNeedsDuration",
			body: "faker:\n  kind: line\n",
			want: "faker.duration is required when faker.kind is line",
		},
		{
			name: "UnknownFakerKind",
			body: "faker:\n  kind: circle\n",
			want: "faker.kind must be static or line",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_GPIOPulseWithGPSD(t *testing.T) {
	body := "serial:\n  driver: gpsd\npulse:\n  enable: true\n  source: gpio\n  gpio_line: 18\n"
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.GPSDAddr != "127.0.0.1:2947" || cfg.Pulse.GPIOLine != 18 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_UDPListenDefaultsToDest(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "publish:\n  backend: udp\n  udp:\n    dest: 127.0.0.1:4100\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Publish.UDP.Listen != "127.0.0.1:4100" {
		t.Fatalf("listen=%q", cfg.Publish.UDP.Listen)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load(writeTempConfig(t, "serial:\n  speed: 4800\n"))
	if err == nil || !strings.Contains(err.Error(), "field speed not found") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "gpsclock.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyS0" || cfg.Serial.Baud != 4800 {
		t.Fatalf("serial=%+v", cfg.Serial)
	}
	if cfg.Publish.Backend != "shm" || cfg.Publish.SHMPath != "/dev/shm/gpsclock" {
		t.Fatalf("publish=%+v", cfg.Publish)
	}
	if !cfg.Web.Enable || cfg.Stale.Threshold != 30*time.Second {
		t.Fatalf("web=%+v stale=%+v", cfg.Web, cfg.Stale)
	}
}
