package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	DefaultSiteName = "default"
	DefaultPageSize = 200
	DefaultTimeout  = 30 * time.Second
)

// Connection holds everything the transport needs to reach a controller.
// It is passed explicitly to the directory at construction time.
type Connection struct {
	Host      string        `yaml:"host"`
	APIKey    string        `yaml:"api_key"`
	SiteName  string        `yaml:"site_name"`
	VerifySSL *bool         `yaml:"verify_ssl"`
	Timeout   time.Duration `yaml:"timeout"`
	PageSize  int           `yaml:"page_size"`
}

// InsecureSkipVerify reports whether TLS certificate checks are disabled.
// Verification is on unless verify_ssl is explicitly false.
func (c Connection) InsecureSkipVerify() bool {
	return c.VerifySSL != nil && !*c.VerifySSL
}

// WithDefaults returns a copy of c with unset optional fields filled in.
func (c Connection) WithDefaults() Connection {
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// Validate checks that the required fields are present.
func (c Connection) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("connection: missing required field 'host'")
	}
	if c.APIKey == "" {
		return fmt.Errorf("connection: missing required field 'api_key'")
	}
	return nil
}

// String never includes the API key.
func (c Connection) String() string {
	return fmt.Sprintf("host=%s site=%s verify_ssl=%t", c.Host, c.SiteName, !c.InsecureSkipVerify())
}

// LoadConnectionFromPath reads the connection configuration from the given
// file path. ${ENV_VAR} references in string values are expanded.
func LoadConnectionFromPath(path string) (*Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection config file: %w", err)
	}

	var cfg Connection
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing connection config file: %w", err)
	}

	cfg.Host = os.ExpandEnv(cfg.Host)
	cfg.APIKey = os.ExpandEnv(cfg.APIKey)
	cfg.SiteName = os.ExpandEnv(cfg.SiteName)

	return &cfg, nil
}
