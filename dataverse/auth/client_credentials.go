package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials acquires application tokens using the OAuth2
// client-credential flow. This is the right provider for daemons and
// integrations registered as an Entra ID application with an application
// user in the Dataverse environment.
type ClientCredentials struct {
	cfg clientcredentials.Config

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// ClientCredentialsOption configures a ClientCredentials provider.
type ClientCredentialsOption func(*ClientCredentials)

// WithTokenURL overrides the token endpoint. Used in tests.
func WithTokenURL(tokenURL string) ClientCredentialsOption {
	return func(p *ClientCredentials) {
		if tokenURL != "" {
			p.cfg.TokenURL = tokenURL
		}
	}
}

// NewClientCredentials creates a client-credential token provider for the
// given environment. The scope is "{environment}/.default" per the Entra ID
// v2.0 endpoint conventions.
func NewClientCredentials(
	environmentURL, tenantID, clientID, clientSecret string,
	opts ...ClientCredentialsOption,
) *ClientCredentials {
	resource := resourceURL(environmentURL)

	p := &ClientCredentials{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, tenantID),
			Scopes:       []string{resource + "/.default"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// GetToken returns a cached token, fetching a fresh one when the cache is
// empty or within the expiry skew.
func (p *ClientCredentials) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiry) {
		return p.token, nil
	}

	token, err := p.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("client credential token: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoToken
	}

	p.token = token.AccessToken
	p.expiry = token.Expiry.Add(-expirySkew)

	return p.token, nil
}
