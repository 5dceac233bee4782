package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "CTPGATE_"

// envOverrides lists the settings operators may replace without editing YAML.
// Unset variables leave the pointer nil and the YAML value in place.
type envOverrides struct {
	Environment      *string  `env:"ENVIRONMENT"`
	APIAddr          *string  `env:"API_ADDR"`
	LogLevel         *string  `env:"LOG_LEVEL"`
	JournalEnabled   *bool    `env:"JOURNAL_ENABLED"`
	JournalDSN       *string  `env:"JOURNAL_DSN"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       *string  `env:"KAFKA_TOPIC"`
	TelemetryEnabled *bool    `env:"TELEMETRY_ENABLED"`
	OTLPEndpoint     *string  `env:"OTLP_ENDPOINT"`
}

// applyEnvOverrides reads CTPGATE_* variables. A nil environ reads the process environment.
func applyEnvOverrides(cfg *AppConfig, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{Prefix: envPrefix, Environment: environ}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.Environment != nil {
		cfg.Environment = Environment(*o.Environment)
	}
	if o.APIAddr != nil {
		cfg.APIServer.Addr = *o.APIAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.JournalEnabled != nil {
		cfg.Journal.Enabled = *o.JournalEnabled
	}
	if o.JournalDSN != nil {
		cfg.Journal.DSN = *o.JournalDSN
	}
	if len(o.KafkaBrokers) > 0 {
		cfg.Kafka.Brokers = o.KafkaBrokers
	}
	if o.KafkaTopic != nil {
		cfg.Kafka.Topic = *o.KafkaTopic
	}
	if o.TelemetryEnabled != nil {
		cfg.Telemetry.Enabled = *o.TelemetryEnabled
	}
	if o.OTLPEndpoint != nil {
		cfg.Telemetry.OTLPEndpoint = *o.OTLPEndpoint
	}
	return nil
}
