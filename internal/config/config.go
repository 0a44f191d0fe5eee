// Package config loads dvcli configuration from the TOML config file
// and DATAVERSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Auth modes selectable in configuration.
const (
	// ModeClientCredentials uses an application identity (client id + secret).
	ModeClientCredentials = "clientcredentials"
	// ModePassword uses a delegated user identity (ROPC).
	ModePassword = "password"
	// ModeToken uses a pre-acquired access token without refresh.
	ModeToken = "token"
)

// ErrIncompleteCredentials indicates no supported credential set is present.
var ErrIncompleteCredentials = errors.New("config: no complete credential set; " +
	"set client id/secret, username/password, or an access token")

// Config holds connection and credential settings for a Dataverse environment.
// File values are overridden by environment variables, which are overridden
// by command-line flags.
type Config struct {
	// EnvironmentURL is the Dataverse environment,
	// e.g. "https://contoso.crm.dynamics.com".
	EnvironmentURL string `toml:"environment_url"`
	// APIVersion overrides the default Web API version.
	APIVersion string `toml:"api_version,omitempty"`
	// TenantID is the Entra ID tenant. Required for client credentials;
	// optional for password auth.
	TenantID string `toml:"tenant_id,omitempty"`
	// ClientID is the Entra ID app registration client id.
	ClientID string `toml:"client_id,omitempty"`
	// ClientSecret is the app registration secret.
	ClientSecret string `toml:"client_secret,omitempty"`
	// Username is the user email for password auth.
	Username string `toml:"username,omitempty"`
	// Password is the user password for password auth.
	Password string `toml:"password,omitempty"`
	// AccessToken is a pre-acquired token for token auth.
	AccessToken string `toml:"access_token,omitempty"`
	// AuthMode forces an auth mode. Inferred from the credentials
	// present when empty.
	AuthMode string `toml:"auth_mode,omitempty"`
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"DATAVERSE_URL", func(c *Config) *string { return &c.EnvironmentURL }},
	{"DATAVERSE_API_VERSION", func(c *Config) *string { return &c.APIVersion }},
	{"DATAVERSE_TENANT_ID", func(c *Config) *string { return &c.TenantID }},
	{"DATAVERSE_CLIENT_ID", func(c *Config) *string { return &c.ClientID }},
	{"DATAVERSE_CLIENT_SECRET", func(c *Config) *string { return &c.ClientSecret }},
	{"DATAVERSE_USERNAME", func(c *Config) *string { return &c.Username }},
	{"DATAVERSE_PASSWORD", func(c *Config) *string { return &c.Password }},
	{"DATAVERSE_ACCESS_TOKEN", func(c *Config) *string { return &c.AccessToken }},
	{"DATAVERSE_AUTH_MODE", func(c *Config) *string { return &c.AuthMode }},
}

// DefaultPath returns the default config file location (~/.dvcli/config.toml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".dvcli", "config.toml"), nil
}

// Load reads the config file at path (the default path when empty) and
// applies environment variable overrides. A missing file is not an error;
// it yields an env-only config.
func Load(path string) (*Config, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// env-only config
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config to path (the default path when empty),
// creating the directory with owner-only permissions. The file holds
// credentials, so it is written 0600.
func (c *Config) Save(path string) error {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// applyEnv overlays DATAVERSE_* environment variables onto the config.
func (c *Config) applyEnv() {
	for _, override := range envOverrides {
		if value := os.Getenv(override.name); value != "" {
			*override.field(c) = value
		}
	}
}

// ResolveAuthMode returns the effective auth mode, inferring it from the
// credentials present when AuthMode is unset.
func (c *Config) ResolveAuthMode() (string, error) {
	if c.AuthMode != "" {
		switch c.AuthMode {
		case ModeClientCredentials, ModePassword, ModeToken:
			return c.AuthMode, nil
		default:
			return "", fmt.Errorf("config: unknown auth mode %q", c.AuthMode)
		}
	}

	switch {
	case c.Username != "" && c.Password != "":
		return ModePassword, nil
	case c.ClientID != "" && c.ClientSecret != "":
		return ModeClientCredentials, nil
	case c.AccessToken != "":
		return ModeToken, nil
	default:
		return "", ErrIncompleteCredentials
	}
}

// Validate checks that the config is complete for its effective auth mode.
func (c *Config) Validate() error {
	if c.EnvironmentURL == "" {
		return errors.New("config: environment URL is required")
	}

	mode, err := c.ResolveAuthMode()
	if err != nil {
		return err
	}

	switch mode {
	case ModeClientCredentials:
		if c.TenantID == "" {
			return errors.New("config: tenant id is required for client credential auth")
		}
		if c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("config: client id and secret are required for client credential auth")
		}
	case ModePassword:
		if c.ClientID == "" {
			return errors.New("config: client id is required for password auth")
		}
		if c.Username == "" || c.Password == "" {
			return errors.New("config: username and password are required for password auth")
		}
	case ModeToken:
		if c.AccessToken == "" {
			return errors.New("config: access token is required for token auth")
		}
	}

	return nil
}
