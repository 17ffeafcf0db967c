package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/earshot/internal/domain/track"
)

// tokenServer serves client-credentials exchanges and counts them.
func tokenServer(t *testing.T, delay time.Duration, expiresIn int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newManager(t *testing.T, tokenURL string) *Manager {
	t.Helper()
	m, err := New(Config{ClientID: "id", ClientSecret: "secret", TokenURL: tokenURL})
	require.NoError(t, err)
	return m
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{ClientID: "id"})
	assert.Error(t, err)

	_, err = New(Config{ClientSecret: "secret"})
	assert.Error(t, err)
}

func TestManager_CachesToken(t *testing.T) {
	server, calls := tokenServer(t, 0, 3600)
	m := newManager(t, server.URL)

	ctx := context.Background()
	first, err := m.GetValidToken(ctx)
	require.NoError(t, err)
	second, err := m.GetValidToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, "token-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestManager_ConcurrentRefreshIsShared(t *testing.T) {
	server, calls := tokenServer(t, 50*time.Millisecond, 3600)
	m := newManager(t, server.URL)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.GetValidToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "only one exchange should run")
	for _, tok := range tokens {
		assert.Equal(t, "token-1", tok)
	}
}

func TestManager_RefreshesExpiredToken(t *testing.T) {
	server, calls := tokenServer(t, 0, 3600)
	m := newManager(t, server.URL)

	now := time.Now()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	tok, err := m.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	// Inside the expiry skew the credential counts as expired
	m.now = func() time.Time { return now.Add(time.Hour - 30*time.Second) }
	tok, err = m.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestManager_Invalidate(t *testing.T) {
	server, calls := tokenServer(t, 0, 3600)
	m := newManager(t, server.URL)
	ctx := context.Background()

	tok, err := m.GetValidToken(ctx)
	require.NoError(t, err)

	// A stale token does not drop the current one
	m.Invalidate("some-older-token")
	again, err := m.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	m.Invalidate(tok)
	fresh, err := m.GetValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", fresh)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestManager_ExchangeFailureIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client"}`)
	}))
	defer server.Close()

	m := newManager(t, server.URL)
	_, err := m.GetValidToken(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, track.ErrAuth))
}
