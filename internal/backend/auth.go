package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/appdist/internal/tokenfile"
)

// TokenSource provides bearer tokens for backend requests.
type TokenSource interface {
	Token() (string, error)
}

// ErrNoToken is returned by a static source configured with an empty token.
var ErrNoToken = errors.New("backend: no access token configured")

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the configured token.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}

	return string(t), nil
}

// ClientCredentials describes an OAuth2 client-credentials grant.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	// CachePath, when set, persists the token between runs.
	CachePath string
}

// NewClientCredentialsSource returns a TokenSource backed by the
// client-credentials grant. Tokens are reused until they expire. ctx must
// outlive the source; it carries the HTTP client used for token requests.
func NewClientCredentialsSource(ctx context.Context, cc ClientCredentials, logger *slog.Logger) TokenSource {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &clientcredentials.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		TokenURL:     cc.TokenURL,
		Scopes:       cc.Scopes,
	}

	var cached *oauth2.Token

	if cc.CachePath != "" {
		f, err := tokenfile.Load(cc.CachePath)
		switch {
		case err != nil:
			logger.Warn("ignoring unreadable token cache",
				slog.String("path", cc.CachePath),
				slog.String("error", err.Error()),
			)
		case f.Matches(cc.ClientID, cc.TokenURL):
			cached = f.Token
			logger.Debug("loaded cached token",
				slog.String("path", cc.CachePath),
				slog.Time("expiry", cached.Expiry),
			)
		}
	}

	src := oauth2.ReuseTokenSource(cached, cfg.TokenSource(ctx))

	return &tokenBridge{src: src, cc: cc, last: cached, logger: logger}
}

// tokenBridge adapts oauth2.TokenSource to TokenSource and writes refreshed
// tokens to the cache file.
type tokenBridge struct {
	src    oauth2.TokenSource
	cc     ClientCredentials
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("backend: obtaining token: %w", err)
	}

	b.persist(t)

	return t.AccessToken, nil
}

func (b *tokenBridge) persist(t *oauth2.Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.last != nil && b.last.AccessToken == t.AccessToken {
		return
	}

	b.last = t

	b.logger.Info("acquired new access token", slog.Time("expiry", t.Expiry))

	if b.cc.CachePath == "" {
		return
	}

	err := tokenfile.Save(b.cc.CachePath, &tokenfile.File{
		Token:    t,
		ClientID: b.cc.ClientID,
		TokenURL: b.cc.TokenURL,
	})
	if err != nil {
		b.logger.Warn("failed to cache access token",
			slog.String("path", b.cc.CachePath),
			slog.String("error", err.Error()),
		)
	}
}
