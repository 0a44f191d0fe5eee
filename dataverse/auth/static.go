package auth

import "context"

// Static returns a fixed access token and never refreshes it.
// Useful when a token is minted elsewhere and handed to the process,
// or in tests.
type Static struct {
	token string
}

// NewStatic creates a static token provider.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// GetToken returns the fixed token.
func (p *Static) GetToken(_ context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}
