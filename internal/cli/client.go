package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianworks/go-dataverse/dataverse"
	"github.com/meridianworks/go-dataverse/dataverse/auth"
	"github.com/meridianworks/go-dataverse/internal/config"
	"github.com/meridianworks/go-dataverse/internal/store"
)

// statePath overrides the state database location in tests.
var statePath string

// cachedTokenLifetime is how long a freshly acquired token is cached in the
// store. Entra ID access tokens default to 60-90 minutes; we stay under the
// floor.
const cachedTokenLifetime = 55 * time.Minute

// openStore opens the local state store.
func openStore() (*store.Store, error) {
	return store.Open(statePath)
}

// resolveConfig builds the effective configuration from the config file,
// environment variables, the selected (or active) profile, and flags,
// in increasing order of precedence.
func resolveConfig() (*config.Config, *store.Profile, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, nil, err
	}

	profile, err := selectProfile()
	if err != nil {
		return nil, nil, err
	}
	if profile != nil {
		applyProfile(cfg, profile)
	}

	if flagEnvURL != "" {
		cfg.EnvironmentURL = flagEnvURL
	}
	if flagAPIVersion != "" {
		cfg.APIVersion = flagAPIVersion
	}

	return cfg, profile, nil
}

// selectProfile returns the profile named by --profile, or the active
// profile, or nil when neither exists.
func selectProfile() (*store.Profile, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if flagProfile != "" {
		profile, err := st.GetProfile(flagProfile)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", flagProfile, err)
		}
		return profile, nil
	}

	profile, err := st.ActiveProfile()
	if errors.Is(err, store.ErrNoActiveProfile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// applyProfile overlays non-empty profile fields onto the config.
// Secrets are never stored in profiles, so they stay as configured.
func applyProfile(cfg *config.Config, p *store.Profile) {
	if p.EnvironmentURL != "" {
		cfg.EnvironmentURL = p.EnvironmentURL
	}
	if p.APIVersion != "" {
		cfg.APIVersion = p.APIVersion
	}
	if p.TenantID != "" {
		cfg.TenantID = p.TenantID
	}
	if p.ClientID != "" {
		cfg.ClientID = p.ClientID
	}
	if p.Username != "" {
		cfg.Username = p.Username
	}
	if p.AuthMode != "" {
		cfg.AuthMode = p.AuthMode
	}
}

// buildTokenProvider creates the token provider for the configured auth mode.
func buildTokenProvider(cfg *config.Config) (dataverse.TokenProvider, error) {
	mode, err := cfg.ResolveAuthMode()
	if err != nil {
		return nil, err
	}

	switch mode {
	case config.ModeClientCredentials:
		return auth.NewClientCredentials(
			cfg.EnvironmentURL, cfg.TenantID, cfg.ClientID, cfg.ClientSecret), nil
	case config.ModePassword:
		var opts []auth.PasswordOption
		if cfg.TenantID != "" {
			opts = append(opts, auth.WithTenant(cfg.TenantID))
		}
		return auth.NewPassword(
			cfg.EnvironmentURL, cfg.ClientID, cfg.ClientSecret,
			cfg.Username, cfg.Password, opts...), nil
	case config.ModeToken:
		return auth.NewStatic(cfg.AccessToken), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// newClient builds a Dataverse client for the resolved configuration.
// A valid cached token for the selected profile short-circuits credential
// acquisition.
func newClient() (*dataverse.Client, error) {
	cfg, profile, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := buildTokenProvider(cfg)
	if err != nil {
		return nil, err
	}

	if profile != nil {
		if cached := cachedProvider(profile.ID); cached != nil {
			provider = cached
		}
	}

	var opts []dataverse.Option
	if cfg.APIVersion != "" {
		opts = append(opts, dataverse.WithAPIVersion(cfg.APIVersion))
	}

	return dataverse.New(cfg.EnvironmentURL, provider, opts...)
}

// cachedProvider returns a static provider for the profile's cached token,
// or nil when no valid token is cached.
func cachedProvider(profileID string) dataverse.TokenProvider {
	st, err := openStore()
	if err != nil {
		return nil
	}
	defer st.Close()

	token, expiresAt, err := st.Token(profileID)
	if err != nil {
		return nil
	}

	slog.Debug("using cached token", "profile_id", profileID, "expires_at", expiresAt)
	return auth.NewStatic(token)
}
