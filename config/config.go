// Package config loads and validates the gateway configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hauswerk/mqtt-gateway/errs"
)

// SourceType names a supported device protocol family.
type SourceType string

const (
	// SourceShelly handles Shelly switch/cover status messages.
	SourceShelly SourceType = "shelly"
	// SourceSensor handles the klimalogger environmental sensor bus.
	SourceSensor SourceType = "sensor"
	// SourceOpenDTU handles OpenDTU solar inverter telemetry.
	SourceOpenDTU SourceType = "opendtu"
	// SourceOpenMqttGateway handles OpenMQTTGateway BLE bridge messages.
	SourceOpenMqttGateway SourceType = "openmqttgateway"
	// SourceDebug logs every message without parsing or forwarding.
	SourceDebug SourceType = "debug"
)

// TargetType names a supported sink destination.
type TargetType string

const (
	// TargetInfluxDB writes batched line-protocol points.
	TargetInfluxDB TargetType = "influxdb"
	// TargetPostgres writes one row per event.
	TargetPostgres TargetType = "postgresql"
	// TargetDebug logs every event.
	TargetDebug TargetType = "debug"
)

// FailureMode selects what a writer does when a sink write fails.
type FailureMode string

const (
	// FailureAbort terminates the process on a failed write.
	FailureAbort FailureMode = "abort"
	// FailureDrop logs the failure and drops the event.
	FailureDrop FailureMode = "drop"
)

// Target describes one sink destination for a source. The variant is tagged
// by Type; only the fields of the matching variant are consulted.
type Target struct {
	Type TargetType `yaml:"type"`

	// influxdb
	URL      string `yaml:"url,omitempty"`
	Database string `yaml:"database,omitempty"`
	Token    string `yaml:"token,omitempty"`

	// postgresql
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// shared credentials (influxdb optional, postgresql required)
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`

	// OnFailure overrides the per-sink default write-failure policy.
	OnFailure FailureMode `yaml:"onFailure,omitempty"`
}

// FailurePolicy resolves the effective write-failure policy for the target.
// InfluxDB defaults to abort (silent data loss is worse than a visible
// crash-and-restart), PostgreSQL and debug default to drop.
func (t Target) FailurePolicy() FailureMode {
	if t.OnFailure != "" {
		return t.OnFailure
	}
	if t.Type == TargetInfluxDB {
		return FailureAbort
	}
	return FailureDrop
}

// Validate checks the target variant for completeness.
func (t Target) Validate() error {
	switch t.Type {
	case TargetInfluxDB:
		if t.URL == "" || t.Database == "" {
			return errs.New("config", errs.CodeConfig, errs.WithMessage("influxdb target requires url and database"))
		}
	case TargetPostgres:
		if t.Host == "" || t.Port == 0 || t.User == "" || t.Database == "" {
			return errs.New("config", errs.CodeConfig, errs.WithMessage("postgresql target requires host, port, user and database"))
		}
	case TargetDebug:
	default:
		return errs.New("config", errs.CodeConfig, errs.WithMessage(fmt.Sprintf("unknown target type %q", t.Type)))
	}
	switch t.OnFailure {
	case "", FailureAbort, FailureDrop:
	default:
		return errs.New("config", errs.CodeConfig, errs.WithMessage(fmt.Sprintf("unknown failure mode %q", t.OnFailure)))
	}
	return nil
}

// Source binds a topic-prefix namespace to one protocol family and its sinks.
type Source struct {
	Name    string     `yaml:"name"`
	Type    SourceType `yaml:"type"`
	Prefix  string     `yaml:"prefix"`
	Targets []Target   `yaml:"targets,omitempty"`
}

// Validate checks the source definition.
func (s Source) Validate() error {
	if s.Name == "" {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("source name required"))
	}
	if s.Prefix == "" || strings.Contains(s.Prefix, "/") || strings.ContainsAny(s.Prefix, "#+") {
		return errs.New("config", errs.CodeConfig,
			errs.WithMessage(fmt.Sprintf("source %s: prefix must be a single non-wildcard topic segment", s.Name)))
	}
	switch s.Type {
	case SourceShelly, SourceSensor, SourceOpenDTU, SourceOpenMqttGateway, SourceDebug:
	default:
		return errs.New("config", errs.CodeConfig,
			errs.WithMessage(fmt.Sprintf("source %s: unknown source type %q", s.Name, s.Type)))
	}
	for _, target := range s.Targets {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", s.Name, err)
		}
		// BLE readings carry arbitrary field sets, not the single value
		// column the postgres schema stores.
		if s.Type == SourceOpenMqttGateway && target.Type == TargetPostgres {
			return errs.New("config", errs.CodeConfig,
				errs.WithMessage(fmt.Sprintf("source %s: openmqttgateway readings cannot be written to postgresql", s.Name)))
		}
	}
	return nil
}

// Telemetry configures the optional OTLP metrics exporter.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}

// Config is the gateway configuration tree.
type Config struct {
	MQTTURL      string    `yaml:"mqttUrl"`
	MQTTClientID string    `yaml:"mqttClientId"`
	Sources      []Source  `yaml:"sources"`
	Telemetry    Telemetry `yaml:"telemetry,omitempty"`
}

// Validate checks the whole configuration tree.
func (c Config) Validate() error {
	if c.MQTTURL == "" {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("mqttUrl required"))
	}
	if len(c.Sources) == 0 {
		return errs.New("config", errs.CodeConfig, errs.WithMessage("at least one source required"))
	}
	seen := make(map[string]string, len(c.Sources))
	for _, source := range c.Sources {
		if err := source.Validate(); err != nil {
			return err
		}
		if other, ok := seen[source.Prefix]; ok {
			return errs.New("config", errs.CodeConfig,
				errs.WithMessage(fmt.Sprintf("sources %s and %s share prefix %q", other, source.Name, source.Prefix)))
		}
		seen[source.Prefix] = source.Name
	}
	return nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML configuration document.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errs.New("config", errs.CodeConfig, errs.WithMessage("decode config"), errs.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
