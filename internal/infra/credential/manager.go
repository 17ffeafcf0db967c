// Package credential manages the process-wide bearer credential for the metadata provider.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/earshot/internal/domain/track"
)

const refreshKey = "client_credentials"

// Config represents credential manager configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string        // defaults to the Spotify accounts token endpoint
	ExpirySkew   time.Duration // refresh this long before the credential expires
	Timeout      time.Duration // bound on a single exchange
}

// Manager holds one bearer credential and refreshes it via the
// client-credentials grant. Concurrent refreshes share a single exchange.
type Manager struct {
	oauth   clientcredentials.Config
	skew    time.Duration
	timeout time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token

	refresh singleflight.Group
}

// Ensure Manager can back an oauth2.Transport.
var _ oauth2.TokenSource = (*Manager)(nil)

// New creates a new credential manager.
func New(cfg Config) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	skew := cfg.ExpirySkew
	if skew <= 0 {
		skew = time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Manager{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
		},
		skew:    skew,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	return m.TokenContext(context.Background())
}

// TokenContext returns a valid credential, acquiring a new one if the cached
// credential is absent or about to expire.
func (m *Manager) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	if t := m.cached(); t != nil {
		return t, nil
	}

	v, err, shared := m.refresh.Do(refreshKey, func() (any, error) {
		// Another caller may have finished a refresh while we waited.
		if t := m.cached(); t != nil {
			return t, nil
		}
		return m.exchange(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zlog.Debug().Msg("credential refresh shared with in-flight request")
	}
	return v.(*oauth2.Token), nil
}

// GetValidToken returns the access token string of a valid credential.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	t, err := m.TokenContext(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Invalidate drops the cached credential if it is still the given one.
// A credential that was already replaced by a concurrent refresh is kept.
func (m *Manager) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && m.token.AccessToken == accessToken {
		m.token = nil
	}
}

// cached returns the current credential if it is still usable.
func (m *Manager) cached() *oauth2.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil || m.token.AccessToken == "" {
		return nil
	}
	if !m.token.Expiry.IsZero() && !m.now().Add(m.skew).Before(m.token.Expiry) {
		return nil
	}
	return m.token
}

// exchange performs the client-credentials grant and stores the result.
func (m *Manager) exchange(ctx context.Context) (*oauth2.Token, error) {
	// The exchange is shared by every waiting caller, so it must not die
	// with the first caller's request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	t, err := m.oauth.Token(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "client credentials exchange failed"), track.ErrAuth)
	}

	m.mu.Lock()
	m.token = t
	m.mu.Unlock()

	zlog.Info().Msgf("acquired metadata provider credential: expires=%s", t.Expiry.Format(time.RFC3339))
	return t, nil
}
