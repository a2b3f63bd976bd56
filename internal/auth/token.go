package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultClientID is the public UAA client used by the cf CLI for refresh grants.
const DefaultClientID = "cf"

// Static errors for err113 compliance.
var (
	ErrStaticTokenCannotRefresh = errors.New("static token cannot be refreshed")
	ErrNoTokenURL               = errors.New("token URL is required for OAuth2 grants")
	ErrNoCredentials            = errors.New("no client credentials or refresh token configured")
)

// TokenProvider returns the bearer token for the next request.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// StaticTokenProvider always returns the same token.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider for a pre-acquired token. A
// leading "bearer " prefix is removed.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	trimmed := strings.TrimSpace(token)
	if len(trimmed) > len("bearer ") && strings.EqualFold(trimmed[:len("bearer ")], "bearer ") {
		trimmed = strings.TrimSpace(trimmed[len("bearer "):])
	}

	return &StaticTokenProvider{token: trimmed}
}

// GetToken implements TokenProvider.
func (p *StaticTokenProvider) GetToken(ctx context.Context) (string, error) {
	return p.token, nil
}

// RefreshToken always fails; a static token has nothing to renew.
func (p *StaticTokenProvider) RefreshToken(ctx context.Context) error {
	return ErrStaticTokenCannotRefresh
}

// OAuth2Config configures an OAuth2TokenProvider.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       []string
	// HTTPClient is used for token requests; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// OAuth2TokenProvider adapts an oauth2.TokenSource. Client credentials are
// preferred; otherwise the refresh token grant is used with DefaultClientID.
type OAuth2TokenProvider struct {
	config *OAuth2Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewOAuth2TokenProvider validates config and builds the token source.
func NewOAuth2TokenProvider(config *OAuth2Config) (*OAuth2TokenProvider, error) {
	if config.TokenURL == "" {
		return nil, ErrNoTokenURL
	}

	if config.ClientID == "" && config.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	provider := &OAuth2TokenProvider{config: config}
	provider.source = provider.newSource(nil)

	return provider, nil
}

// GetToken implements TokenProvider. Tokens are reused until they expire.
func (p *OAuth2TokenProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("obtaining OAuth2 token: %w", err)
	}

	return token.AccessToken, nil
}

// RefreshToken discards the cached token so the next GetToken fetches a new one.
// A refresh token rotated by the server is kept.
func (p *OAuth2TokenProvider) RefreshToken(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var current *oauth2.Token

	if p.config.ClientID == "" || p.config.ClientSecret == "" {
		token, err := p.source.Token()
		if err == nil && token.RefreshToken != "" {
			current = &oauth2.Token{RefreshToken: token.RefreshToken}
		}
	}

	p.source = p.newSource(current)

	token, err := p.source.Token()
	if err != nil {
		return fmt.Errorf("refreshing OAuth2 token: %w", err)
	}

	if token.AccessToken == "" {
		return fmt.Errorf("refreshing OAuth2 token: %w", ErrNoCredentials)
	}

	return nil
}

func (p *OAuth2TokenProvider) newSource(seed *oauth2.Token) oauth2.TokenSource {
	ctx := context.Background()
	if p.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.config.HTTPClient)
	}

	if p.config.ClientID != "" && p.config.ClientSecret != "" {
		credentials := &clientcredentials.Config{
			ClientID:     p.config.ClientID,
			ClientSecret: p.config.ClientSecret,
			TokenURL:     p.config.TokenURL,
			Scopes:       p.config.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}

		return credentials.TokenSource(ctx)
	}

	clientID := p.config.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	refresh := &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: p.config.Scopes,
	}

	if seed == nil {
		seed = &oauth2.Token{RefreshToken: p.config.RefreshToken}
	}

	return refresh.TokenSource(ctx, seed)
}
