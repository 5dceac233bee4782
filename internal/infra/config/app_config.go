// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/ctpgate/internal/infra/telemetry"
)

// EventbusConfig sets in-memory event bus sizing characteristics.
type EventbusConfig struct {
	BufferSize    int                 `yaml:"bufferSize"`
	FanoutWorkers FanoutWorkerSetting `yaml:"fanoutWorkers"`
}

type fanoutWorkerKind int

const (
	fanoutWorkerUnset fanoutWorkerKind = iota
	fanoutWorkerExplicit
	fanoutWorkerAuto
	fanoutWorkerDefault
)

// FanoutWorkerSetting accepts either a positive integer or one of "auto" and "default".
type FanoutWorkerSetting struct {
	kind  fanoutWorkerKind
	value int
}

// UnmarshalYAML supports integer, "auto", and "default" values for fanout workers.
func (s *FanoutWorkerSetting) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = FanoutWorkerSetting{}
		return nil
	}
	text := strings.TrimSpace(node.Value)
	switch strings.ToLower(text) {
	case "":
		*s = FanoutWorkerSetting{}
		return nil
	case "auto":
		*s = FanoutWorkerSetting{kind: fanoutWorkerAuto}
		return nil
	case "default":
		*s = FanoutWorkerSetting{kind: fanoutWorkerDefault}
		return nil
	}
	val, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("fanoutWorkers: invalid value %q", node.Value)
	}
	if val <= 0 {
		return fmt.Errorf("fanoutWorkers: numeric value must be > 0")
	}
	*s = FanoutWorkerSetting{kind: fanoutWorkerExplicit, value: val}
	return nil
}

func (s FanoutWorkerSetting) resolve() int {
	switch s.kind {
	case fanoutWorkerExplicit:
		return s.value
	case fanoutWorkerAuto:
		if cores := runtime.NumCPU(); cores > 0 {
			return cores
		}
		return 4
	default:
		return 4
	}
}

// FanoutWorkerCount returns the resolved worker count.
func (c EventbusConfig) FanoutWorkerCount() int {
	return c.FanoutWorkers.resolve()
}

// APIServerConfig configures the HTTP control surface.
type APIServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig selects the structured logger level and encoder.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// JournalConfig controls the PostgreSQL execution journal.
type JournalConfig struct {
	Enabled           bool          `yaml:"enabled"`
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
	Workers           int           `yaml:"workers"`
}

func (c *JournalConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/ctpgate"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

func (c JournalConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// KafkaConfig enables event export when at least one broker is listed.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	EventTypes   []string      `yaml:"eventTypes"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
}

// Enabled reports whether a sink should be started.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// SupervisorConfig tunes caller-side reconnect supervision.
type SupervisorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CheckInterval   time.Duration `yaml:"checkInterval"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// AppConfig is the unified application configuration sourced from YAML and the environment.
type AppConfig struct {
	Environment Environment      `yaml:"environment"`
	Gateways    []GatewayConfig  `yaml:"gateways"`
	Eventbus    EventbusConfig   `yaml:"eventbus"`
	APIServer   APIServerConfig  `yaml:"apiServer"`
	Logging     LoggingConfig    `yaml:"logging"`
	Telemetry   telemetry.Config `yaml:"telemetry"`
	Journal     JournalConfig    `yaml:"journal"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Supervisor  SupervisorConfig `yaml:"supervisor"`
}

// DefaultAppConfig returns the configuration used before any file or environment is applied.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Environment: EnvDev,
		Eventbus: EventbusConfig{
			BufferSize:    1024,
			FanoutWorkers: FanoutWorkerSetting{kind: fanoutWorkerDefault},
		},
		APIServer: APIServerConfig{Addr: ":8880"},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Kafka: KafkaConfig{
			Topic:        "ctpgate.events",
			BatchTimeout: 50 * time.Millisecond,
		},
		Supervisor: SupervisorConfig{
			Enabled:         true,
			CheckInterval:   time.Second,
			InitialInterval: time.Second,
			MaxInterval:     time.Minute,
		},
	}
}

// Load reads the YAML file over the defaults, applies CTPGATE_ environment
// overrides and validates the result. A .env file next to the config is loaded
// into the process environment first when present.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	if err := loadDotEnv(filepath.Join(filepath.Dir(strings.TrimSpace(configPath)), ".env")); err != nil {
		return AppConfig{}, err
	}

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultAppConfig()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := applyEnvOverrides(&cfg, nil); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.APIServer.Addr = strings.TrimSpace(c.APIServer.Addr)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	c.Telemetry.Environment = string(c.Environment)

	seen := make(map[string]struct{}, len(c.Gateways))
	for i := range c.Gateways {
		gw := &c.Gateways[i]
		gw.applyDefaults()
		if _, dup := seen[gw.Name]; dup {
			return fmt.Errorf("duplicate gateway name %q", gw.Name)
		}
		seen[gw.Name] = struct{}{}
	}

	c.Kafka.Topic = strings.TrimSpace(c.Kafka.Topic)
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Kafka.Brokers = brokers

	if c.Supervisor.CheckInterval <= 0 {
		c.Supervisor.CheckInterval = time.Second
	}
	if c.Supervisor.InitialInterval <= 0 {
		c.Supervisor.InitialInterval = time.Second
	}
	if c.Supervisor.MaxInterval < c.Supervisor.InitialInterval {
		c.Supervisor.MaxInterval = c.Supervisor.InitialInterval
	}

	c.Journal.applyDefaults()
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if len(c.Gateways) == 0 {
		return fmt.Errorf("at least one gateway required")
	}
	for _, gw := range c.Gateways {
		if err := gw.validate(); err != nil {
			return fmt.Errorf("gateway %q: %w", gw.Name, err)
		}
	}
	if c.Eventbus.BufferSize <= 0 {
		return fmt.Errorf("eventbus bufferSize must be >0")
	}
	if c.Eventbus.FanoutWorkerCount() <= 0 {
		return fmt.Errorf("eventbus fanoutWorkers must be >0")
	}
	if c.APIServer.Addr == "" {
		return fmt.Errorf("apiServer addr required")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic required when brokers are set")
	}
	if err := c.Journal.validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Gateway returns the named gateway entry.
func (c AppConfig) Gateway(name string) (GatewayConfig, bool) {
	key := normalizeGatewayName(name)
	for _, gw := range c.Gateways {
		if gw.Name == key {
			return gw, true
		}
	}
	return GatewayConfig{}, false
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
