package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backpressure policies for a full worker queue.
const (
	BackpressureDrop  = "drop"
	BackpressureBlock = "block"
)

// CaptureConfig holds the live capture and worker pool settings.
type CaptureConfig struct {
	SnapshotLen  int32         `yaml:"snapshot_len"`
	Promiscuous  bool          `yaml:"promiscuous"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	BPFFilter    string        `yaml:"bpf_filter"`
	NumWorkers   int           `yaml:"num_workers"`
	QueueSize    int           `yaml:"queue_size"`
	Backpressure string        `yaml:"backpressure"`
	JoinTimeout  time.Duration `yaml:"join_timeout"`
}

// ClassifierConfig describes how to reach the classification service.
type ClassifierConfig struct {
	ServerURL   string        `yaml:"server_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// SessionConfig holds defaults for capture sessions.
type SessionConfig struct {
	MaxPackets uint64 `yaml:"max_packets"`
}

// APIConfig holds the status API settings.
type APIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	HttpListenAddr string        `yaml:"http_listen_addr"`
	GrpcListenAddr string        `yaml:"grpc_listen_addr"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// PersistenceConfig holds the settings for the detection log.
type PersistenceConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	Encoding          string `yaml:"encoding"`
	NumWorkers        int    `yaml:"num_workers"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
	AttacksOnly       bool   `yaml:"attacks_only"`
}

// NATSConfig holds the settings for publishing detection events.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AlerterRule defines a single threshold over session statistics.
type AlerterRule struct {
	Name        string  `yaml:"name"`
	MinAttacks  uint64  `yaml:"min_attacks"`
	AttackRatio float64 `yaml:"attack_ratio"`
}

// AlerterConfig holds the configuration for the alerter.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the configuration for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture     CaptureConfig     `yaml:"capture"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Session     SessionConfig     `yaml:"session"`
	API         APIConfig         `yaml:"api"`
	Persistence PersistenceConfig `yaml:"persistence"`
	NATS        NATSConfig        `yaml:"nats"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Alerter     AlerterConfig     `yaml:"alerter"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapshotLen:  65536,
			Promiscuous:  true,
			ReadTimeout:  time.Second,
			NumWorkers:   4,
			QueueSize:    1024,
			Backpressure: BackpressureDrop,
			JoinTimeout:  2 * time.Second,
		},
		Classifier: ClassifierConfig{
			ServerURL:   "http://localhost:8888/predict",
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			BackoffBase: time.Second,
		},
		API: APIConfig{
			HttpListenAddr: ":9100",
			GrpcListenAddr: ":9101",
			HealthInterval: 30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Path:              "detections",
			Encoding:          "text",
			NumWorkers:        1,
			ChannelBufferSize: 10000,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "ids.detections",
		},
		ClickHouse: ClickHouseConfig{
			Host:          "localhost",
			Port:          9000,
			Database:      "default",
			Username:      "default",
			BatchSize:     500,
			FlushInterval: 5 * time.Second,
		},
		Alerter: AlerterConfig{
			CheckInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads the configuration from a YAML file over the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that can never work.
func (c *Config) Validate() error {
	var errs []error
	if c.Classifier.ServerURL == "" {
		errs = append(errs, errors.New("classifier.server_url must not be empty"))
	}
	if c.Classifier.MaxRetries <= 0 {
		errs = append(errs, errors.New("classifier.max_retries must be positive"))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}
	if c.Capture.NumWorkers <= 0 {
		errs = append(errs, errors.New("capture.num_workers must be positive"))
	}
	if c.Capture.QueueSize <= 0 {
		errs = append(errs, errors.New("capture.queue_size must be positive"))
	}
	switch c.Capture.Backpressure {
	case BackpressureDrop, BackpressureBlock:
	default:
		errs = append(errs, fmt.Errorf("capture.backpressure: unknown policy '%s'", c.Capture.Backpressure))
	}
	if c.Persistence.Enabled {
		switch c.Persistence.Encoding {
		case "text", "gob", "pcap":
		default:
			errs = append(errs, fmt.Errorf("persistence.encoding: unknown encoding '%s'", c.Persistence.Encoding))
		}
	}
	if c.Alerter.Enabled && c.Alerter.CheckInterval <= 0 {
		errs = append(errs, errors.New("alerter.check_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
