package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// organizationsTenant is the multi-tenant authority segment used when no
// tenant id is configured. Any work or school account can authenticate
// against it.
const organizationsTenant = "organizations"

// Password acquires delegated tokens with the resource-owner password
// credential (ROPC) flow: the user's email and password are exchanged
// directly for a token, with the scope "{environment}/user_impersonation".
// ROPC does not work for accounts with MFA or federated identity; prefer
// ClientCredentials for unattended use.
type Password struct {
	tokenURL     string
	clientID     string
	clientSecret string
	username     string
	password     string
	scope        string
	httpClient   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// PasswordOption configures a Password provider.
type PasswordOption func(*Password)

// WithTenant scopes authentication to a specific tenant instead of the
// shared "organizations" authority.
func WithTenant(tenantID string) PasswordOption {
	return func(p *Password) {
		if tenantID != "" {
			p.tokenURL = fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, tenantID)
		}
	}
}

// WithPasswordTokenURL overrides the token endpoint. Used in tests.
func WithPasswordTokenURL(tokenURL string) PasswordOption {
	return func(p *Password) {
		if tokenURL != "" {
			p.tokenURL = tokenURL
		}
	}
}

// WithPasswordHTTPClient overrides the HTTP client used for token requests.
func WithPasswordHTTPClient(hc *http.Client) PasswordOption {
	return func(p *Password) {
		if hc != nil {
			p.httpClient = hc
		}
	}
}

// NewPassword creates an ROPC token provider for the given environment.
func NewPassword(
	environmentURL, clientID, clientSecret, username, password string,
	opts ...PasswordOption,
) *Password {
	resource := resourceURL(environmentURL)

	p := &Password{
		tokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, organizationsTenant),
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		scope:        resource + "/user_impersonation",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// GetToken returns a cached token, fetching a fresh one when the cache is
// empty or within the expiry skew.
func (p *Password) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expiry) {
		return p.token, nil
	}

	resp, err := p.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrNoToken
	}

	p.token = resp.AccessToken
	p.expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Add(-expirySkew)

	return p.token, nil
}

// fetchToken exchanges the username and password for an access token.
func (p *Password) fetchToken(ctx context.Context) (*tokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", p.clientID)
	if p.clientSecret != "" {
		data.Set("client_secret", p.clientSecret)
	}
	data.Set("username", p.username)
	data.Set("password", p.password)
	data.Set("scope", p.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newTokenError(resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := unmarshalToken(body, &tokenResp); err != nil {
		return nil, err
	}

	return &tokenResp, nil
}
