package config

import (
	"time"

	"edgewatch/internal/edgeapi"
	"edgewatch/internal/notifier"
	"edgewatch/internal/obs"
	"edgewatch/internal/probe"
	"edgewatch/internal/repository/state"
	"edgewatch/internal/services/healthcheck"
	"edgewatch/internal/services/incidents"
	"edgewatch/internal/services/threshold"
	"edgewatch/internal/statuspage"
)

type AppCfg struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogCfg struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OTELCfg struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type StateCfg struct {
	Backend string         `mapstructure:"backend"` // "file" or "postgres"
	Dir     string         `mapstructure:"dir"`
	DB      state.PGConfig `mapstructure:"db"`
}

type KafkaCfg struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NotifyCfg struct {
	Telegram    notifier.TelegramConfig `mapstructure:"telegram"`
	AlertChatID string                  `mapstructure:"alert_chat_id"`
	Admins      []string                `mapstructure:"admins"`
}

// SeedOrigin pre-registers an origin at startup; a URL already present
// in the loaded state keeps its accumulated counters.
type SeedOrigin struct {
	URL      string        `mapstructure:"url"`
	Owner    string        `mapstructure:"owner"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HealthCfg struct {
	healthcheck.Config `mapstructure:",squash"`
	Seed               []SeedOrigin `mapstructure:"seed"`
}

type TrafficCfg struct {
	threshold.Config `mapstructure:",squash"`
	Enabled          bool             `mapstructure:"enabled"`
	Thresholds       map[string]int64 `mapstructure:"thresholds"`
}

type StatusCfg struct {
	incidents.Config `mapstructure:",squash"`
	Feed             statuspage.Config `mapstructure:"feed"`
}

type Config struct {
	App         AppCfg         `mapstructure:"app"`
	Log         LogCfg         `mapstructure:"log"`
	OTEL        OTELCfg        `mapstructure:"otel"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	State       StateCfg       `mapstructure:"state"`
	Kafka       KafkaCfg       `mapstructure:"kafka"`
	Notify      NotifyCfg      `mapstructure:"notify"`
	Probe       probe.Config   `mapstructure:"probe"`
	Health      HealthCfg      `mapstructure:"health"`
	Traffic     TrafficCfg     `mapstructure:"traffic"`
	Status      StatusCfg      `mapstructure:"status"`
	Analytics   edgeapi.Config `mapstructure:"analytics"`
}

func (c *Config) AsLoggerConfig() *obs.LogConfig {
	return &obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
	}
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	name := c.OTEL.ServiceName
	if name == "" {
		name = c.App.Name
	}
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: name,
		SampleRatio: c.OTEL.SampleRatio,
	}
}
