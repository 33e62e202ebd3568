// Package config provides environment-variable-first configuration
// loading with optional YAML file fallback.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Config holds the complete application configuration.
type Config struct {
	SMTP    SMTPConfig    `yaml:"smtp"`
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`

	// Domains lists the recipient domains the relay may deliver for.
	// At least one is required.
	Domains []string `yaml:"domains"`

	// ShutdownTimeout bounds the whole stop sequence, as a duration
	// string like "30s".
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// SMTPConfig holds the mail listener configuration.
type SMTPConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	MaxRecipients  int    `yaml:"max_recipients"`
}

// APIConfig holds the HTTP listener configuration.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig holds the MongoDB connection settings.
type StoreConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible
// defaults. Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, cfg.Validate()
}

// Validate reports the first problem that would keep the service from
// starting.
func (c *Config) Validate() error {
	if len(c.Domains) == 0 {
		return errors.New("at least one allowed domain is required")
	}
	if c.Store.URI == "" || c.Store.Database == "" || c.Store.Collection == "" {
		return errors.New("store uri, database and collection are required")
	}
	if _, err := c.SMTPPort(); err != nil {
		return err
	}
	if _, err := c.ShutdownGrace(); err != nil {
		return err
	}
	return nil
}

// SMTPPort returns the port component of the SMTP listen address. The
// relay authorization response reports it as Auth-Port.
func (c *Config) SMTPPort() (string, error) {
	_, port, err := net.SplitHostPort(c.SMTP.Listen)
	if err != nil {
		return "", fmt.Errorf("smtp listen address %q: %w", c.SMTP.Listen, err)
	}
	return port, nil
}

// ShutdownGrace returns the parsed shutdown timeout.
func (c *Config) ShutdownGrace() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("shutdown_timeout %q: %w", c.ShutdownTimeout, err)
	}
	return d, nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Listen = ":8025"
	c.SMTP.Hostname = "localhost"
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.MaxRecipients = 50
	c.API.Listen = ":8080"
	c.Store.URI = "mongodb://localhost"
	c.Store.Database = "mailstash"
	c.Store.Collection = "emails"
	c.Logging.Level = "info"
	c.ShutdownTimeout = "30s"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SMTP.MaxMessageSize = size
		}
	}
	if v := os.Getenv("SMTP_MAX_RECIPIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMTP.MaxRecipients = n
		}
	}

	if v := os.Getenv("API_LISTEN"); v != "" {
		c.API.Listen = v
	}

	if v := os.Getenv("STORE_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("STORE_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("STORE_COLLECTION"); v != "" {
		c.Store.Collection = v
	}

	if v := os.Getenv("DOMAINS"); v != "" {
		c.Domains = splitList(v)
	}

	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		c.ShutdownTimeout = v
	}
}

// splitList parses a comma-separated list, dropping empty elements.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
