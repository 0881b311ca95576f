// Package config loads bgpstream-go's configuration, layering a YAML file
// under an environment-variable overlay, exactly as the teacher's
// internal/config package does.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

// Config is the root configuration document.
type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Backend  BackendConfig  `koanf:"backend"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Postgres PostgresConfig `koanf:"postgres"`
	Catalog  CatalogConfig  `koanf:"catalog"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// BackendConfig selects and configures a Data Interface backend (§6's
// backend options, one identifier + option set per concrete backend).
type BackendConfig struct {
	ID string `koanf:"id"` // "singlefile" | "manifest" | "catalog" | "broker" | "kafka"

	RIBFile string `koanf:"rib-file"`
	UpdFile string `koanf:"upd-file"`

	CSVFile string `koanf:"csv-file"`

	BrokerURL    string   `koanf:"url"`
	BrokerParams []string `koanf:"param"`

	Project   string `koanf:"project"`
	Collector string `koanf:"collector"`

	Live bool `koanf:"live"`
}

type KafkaConfig struct {
	Brokers  []string       `koanf:"brokers"`
	ClientID string         `koanf:"client_id"`
	TLS      TLSConfig      `koanf:"tls"`
	SASL     SASLConfig     `koanf:"sasl"`
	Notify   ConsumerConfig `koanf:"notify"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type ConsumerConfig struct {
	GroupID string   `koanf:"group_id"`
	Topics  []string `koanf:"topics"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// CatalogConfig governs catalog-backend housekeeping (a supplemented
// feature: any real embedded-SQL catalog needs retention, even though the
// spec never discusses it).
type CatalogConfig struct {
	RetentionDays int    `koanf:"retention_days"`
	Timezone      string `koanf:"timezone"`
}

// Load reads path (if non-empty) as YAML, overlays BGPSTREAM_-prefixed
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// BGPSTREAM_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPSTREAM_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPSTREAM_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpstream-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Backend: BackendConfig{
			ID: "singlefile",
		},
		Kafka: KafkaConfig{
			ClientID: "bgpstream",
			Notify: ConsumerConfig{
				GroupID: "bgpstream-notify",
			},
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		Catalog: CatalogConfig{
			RetentionDays: 90,
			Timezone:      "UTC",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.Notify.Topics) == 1 && strings.Contains(cfg.Kafka.Notify.Topics[0], ",") {
		cfg.Kafka.Notify.Topics = strings.Split(cfg.Kafka.Notify.Topics[0], ",")
	}
	if len(cfg.Backend.BrokerParams) == 1 && strings.Contains(cfg.Backend.BrokerParams[0], ",") {
		cfg.Backend.BrokerParams = strings.Split(cfg.Backend.BrokerParams[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields required by the selected backend and the
// ambient service/catalog settings.
func (c *Config) Validate() error {
	switch c.Backend.ID {
	case "singlefile":
		if c.Backend.RIBFile == "" && c.Backend.UpdFile == "" {
			return fmt.Errorf("config: backend.rib-file or backend.upd-file is required for the singlefile backend")
		}
	case "manifest":
		if c.Backend.CSVFile == "" {
			return fmt.Errorf("config: backend.csv-file is required for the manifest backend")
		}
	case "catalog":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres.dsn is required for the catalog backend")
		}
	case "broker":
		if c.Backend.BrokerURL == "" {
			return fmt.Errorf("config: backend.url is required for the broker backend")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers is required for the kafka backend")
		}
		if c.Kafka.Notify.GroupID == "" {
			return fmt.Errorf("config: kafka.notify.group_id is required for the kafka backend")
		}
		if len(c.Kafka.Notify.Topics) == 0 {
			return fmt.Errorf("config: kafka.notify.topics is required for the kafka backend")
		}
	default:
		return fmt.Errorf("config: unknown backend.id %q", c.Backend.ID)
	}

	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Catalog.RetentionDays <= 0 {
		return fmt.Errorf("config: catalog.retention_days must be > 0 (got %d)", c.Catalog.RetentionDays)
	}
	if _, err := time.LoadLocation(c.Catalog.Timezone); err != nil {
		return fmt.Errorf("config: catalog.timezone is invalid: %w", err)
	}
	if c.Postgres.DSN != "" {
		if c.Postgres.MaxConns <= 0 {
			return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
		}
		if c.Postgres.MinConns < 0 {
			return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
		}
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns
// nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings.
// Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
