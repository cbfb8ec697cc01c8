package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	GPS      GPSConfig      `yaml:"gps"`
	Source   SourceConfig   `yaml:"source"`
	Web      WebConfig      `yaml:"web"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	UDP      UDPConfig      `yaml:"udp"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// BufferLines is how many log lines /api/logs keeps.
	BufferLines int `yaml:"buffer_lines"`
}

type GPSConfig struct {
	Name           string `yaml:"name"`
	QueueSize      int    `yaml:"queue_size"`
	MaxLineBytes   int    `yaml:"max_line_bytes"`
	VerifyChecksum bool   `yaml:"verify_checksum"`

	AccuracyThresholdM     float64       `yaml:"accuracy_threshold_m"`
	GGAHorizontalAccuracyM float64       `yaml:"gga_horizontal_accuracy_m"`
	GGAVerticalAccuracyM   float64       `yaml:"gga_vertical_accuracy_m"`
	MinFixInterval         time.Duration `yaml:"min_fix_interval"`
	MinUpdateDistanceM     float64       `yaml:"min_update_distance_m"`
}

// SourceConfig selects where NMEA bytes come from.
//
//	tcp:    connect to addr and reconnect on loss
//	replay: read path line by line at rate_hz
//	stdin:  read standard input until EOF
type SourceConfig struct {
	Mode           string        `yaml:"mode"`
	Addr           string        `yaml:"addr"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Path           string        `yaml:"path"`
	RateHz         int           `yaml:"rate_hz"`
	Loop           bool          `yaml:"loop"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	Format string `yaml:"format"`
}

type WatchdogConfig struct {
	// FixTimeout warns when no fix has been notified for this long.
	FixTimeout     time.Duration `yaml:"fix_timeout"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// SlogLevel maps log.level onto a slog level. Load has already validated it.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			msgs := make([]string, 0, len(te.Errors))
			for _, m := range te.Errors {
				msgs = append(msgs, yamlLinePrefix.ReplaceAllString(m, ""))
			}
			if strings.Contains(te.Error(), "not found in type") {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
			}
			return Config{}, fmt.Errorf("config is invalid: %s", strings.Join(msgs, "; "))
		}
		return Config{}, err
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	if cfg.GPS.Name == "" {
		cfg.GPS.Name = "gps"
	}
	if cfg.GPS.QueueSize < 0 {
		return Config{}, fmt.Errorf("gps.queue_size must be > 0")
	}
	if cfg.GPS.QueueSize == 0 {
		cfg.GPS.QueueSize = 64
	}
	if cfg.GPS.MaxLineBytes == 0 {
		cfg.GPS.MaxLineBytes = 4096
	}
	if cfg.GPS.MaxLineBytes < 16 {
		return Config{}, fmt.Errorf("gps.max_line_bytes must be >= 16")
	}
	if cfg.GPS.AccuracyThresholdM < 0 || cfg.GPS.GGAHorizontalAccuracyM < 0 || cfg.GPS.GGAVerticalAccuracyM < 0 {
		return Config{}, fmt.Errorf("gps accuracy values must be >= 0")
	}
	if cfg.GPS.MinFixInterval < 0 {
		return Config{}, fmt.Errorf("gps.min_fix_interval must be >= 0")
	}
	if cfg.GPS.MinUpdateDistanceM < 0 {
		return Config{}, fmt.Errorf("gps.min_update_distance_m must be >= 0")
	}

	cfg.Source.Mode = strings.ToLower(strings.TrimSpace(cfg.Source.Mode))
	switch cfg.Source.Mode {
	case "", "stdin":
		cfg.Source.Mode = "stdin"
	case "tcp":
		if strings.TrimSpace(cfg.Source.Addr) == "" {
			return Config{}, fmt.Errorf("source.addr is required when source.mode is 'tcp'")
		}
		if cfg.Source.ReconnectDelay <= 0 {
			cfg.Source.ReconnectDelay = 1 * time.Second
		}
	case "replay":
		if strings.TrimSpace(cfg.Source.Path) == "" {
			return Config{}, fmt.Errorf("source.path is required when source.mode is 'replay'")
		}
		if cfg.Source.RateHz < 0 {
			return Config{}, fmt.Errorf("source.rate_hz must be > 0")
		}
		if cfg.Source.RateHz == 0 {
			cfg.Source.RateHz = 10
		}
	default:
		return Config{}, fmt.Errorf("source.mode must be one of tcp, replay, stdin")
	}

	if cfg.Web.Enable && strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.MQTT.Enable {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return Config{}, fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "gnssfix/fix"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "gnssfix"
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return Config{}, fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if cfg.UDP.Enable {
		if strings.TrimSpace(cfg.UDP.Dest) == "" {
			return Config{}, fmt.Errorf("udp.dest is required when udp.enable is true")
		}
		cfg.UDP.Format = strings.ToLower(strings.TrimSpace(cfg.UDP.Format))
		switch cfg.UDP.Format {
		case "":
			cfg.UDP.Format = "json"
		case "json", "nmea":
		default:
			return Config{}, fmt.Errorf("udp.format must be 'json' or 'nmea'")
		}
	}

	if cfg.Watchdog.FixTimeout < 0 || cfg.Watchdog.StatusInterval < 0 {
		return Config{}, fmt.Errorf("watchdog durations must be >= 0")
	}
	if cfg.Watchdog.FixTimeout == 0 {
		cfg.Watchdog.FixTimeout = 10 * time.Second
	}
	if cfg.Watchdog.StatusInterval == 0 {
		cfg.Watchdog.StatusInterval = 30 * time.Second
	}

	return cfg, nil
}
