package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flashbots/tdesoracle/client"
	"github.com/flashbots/tdesoracle/protocol"
	"github.com/flashbots/tdesoracle/services"
)

// LogConfig selects the log level and format.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SessionConfig bounds individual TCP sessions.
type SessionConfig struct {
	Lifetime     time.Duration `yaml:"lifetime"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

// ServerConfig is the server binary's configuration file.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	AdminAddr   string `yaml:"admin_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	// AdminCORSOrigins are browser origins allowed to read admin routes.
	AdminCORSOrigins []string `yaml:"admin_cors_origins"`

	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`

	// Attestation selects a TEE provider: "", "dummy", "tdx" or
	// "remote:<url>".
	Attestation string `yaml:"attestation"`

	// ExpectedMeasurements pins hex register values (0 MRTD, 1-4 RTMR0-3)
	// that the startup quote must carry.
	ExpectedMeasurements map[int]string `yaml:"expected_measurements"`

	Oracle   protocol.OracleConfig    `yaml:"oracle"`
	Session  SessionConfig            `yaml:"session"`
	Postgres *services.PostgresConfig `yaml:"postgres"`
	Log      LogConfig                `yaml:"log"`
}

// DefaultServerConfig returns the reference challenge settings on :4000.
func DefaultServerConfig() *ServerConfig {
	oracle := protocol.DefaultOracleConfig()
	return &ServerConfig{
		ListenAddr: ":4000",
		SecretFile: "string.txt",
		Oracle:     *oracle,
		Session: SessionConfig{
			Lifetime:     oracle.SessionLifetime,
			ReadTimeout:  oracle.ReadTimeout,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// OracleConfig returns the oracle settings with the session bounds applied.
func (c *ServerConfig) OracleConfig() *protocol.OracleConfig {
	oc := c.Oracle
	oc.SessionLifetime = c.Session.Lifetime
	oc.ReadTimeout = c.Session.ReadTimeout
	return &oc
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Secret == "" && c.SecretFile == "" {
		return fmt.Errorf("secret or secret_file is required")
	}
	if c.Session.RateLimit < 0 || c.Session.RateBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return c.OracleConfig().Validate()
}

// LoadServerConfig reads a YAML file over DefaultServerConfig.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientConfig is the client binary's configuration file.
type ClientConfig struct {
	Strategy protocol.StrategyConfig `yaml:"strategy"`
	Retry    client.RetryPolicy      `yaml:"retry"`
	Timeouts client.Options          `yaml:"timeouts"`

	// Deadline bounds the whole recovery. Zero disables it.
	Deadline time.Duration `yaml:"deadline"`

	Log LogConfig `yaml:"log"`
}

// DefaultClientConfig returns the reference strategy.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Strategy: *protocol.DefaultStrategyConfig(),
		Retry:    *client.DefaultRetryPolicy(),
		Timeouts: *client.DefaultOptions(),
		Deadline: 5 * time.Minute,
		Log:      LogConfig{Level: "info"},
	}
}

// LoadClientConfig reads a YAML file over DefaultClientConfig.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}
