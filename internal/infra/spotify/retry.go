package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/earshot/internal/domain/track"
)

// call runs fn under the credential policy and the transient-failure retry.
// Every failure other than an auth failure is marked track.ErrProvider.
func (c *Client) call(ctx context.Context, fn func() error) error {
	return markProvider(c.do(ctx, fn))
}

// do runs fn like call but leaves the error unclassified.
func (c *Client) do(ctx context.Context, fn func() error) error {
	return c.withAuthRetry(ctx, func() error {
		return c.retry(ctx, fn)
	})
}

func markProvider(err error) error {
	if err == nil || errors.Is(err, track.ErrAuth) || errors.Is(err, track.ErrPlaylistNotFound) {
		return err
	}
	return errors.Mark(err, track.ErrProvider)
}

// withAuthRetry makes sure a valid credential exists before fn runs.
// On a 401 the credential is renewed exactly once and fn is retried once.
// The rejected credential itself is dropped by rejectedCredentialTransport.
func (c *Client) withAuthRetry(ctx context.Context, fn func() error) error {
	if _, err := c.creds.GetValidToken(ctx); err != nil {
		return err
	}

	err := fn()
	if !isUnauthorized(err) {
		return err
	}

	zlog.Warn().Msg("metadata provider rejected credential, refreshing")
	if _, err := c.creds.GetValidToken(ctx); err != nil {
		return err
	}

	err = fn()
	if isUnauthorized(err) {
		return errors.Mark(errors.Wrap(err, "unauthorized after credential refresh"), track.ErrAuth)
	}
	return err
}

// rejectedCredentialTransport invalidates the bearer credential a request
// actually carried when the provider answers 401.
type rejectedCredentialTransport struct {
	base  http.RoundTripper
	creds Credentials
}

func (t *rejectedCredentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		t.creds.Invalidate(token)
	}
	return resp, nil
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			if err := sleepWithContext(ctx, c.retryDelay*time.Duration(i+1)); err != nil {
				return err
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusOf returns the HTTP status carried by a Spotify API error, or 0.
func statusOf(err error) int {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if status := statusOf(err); status != 0 {
		return status == http.StatusUnauthorized
	}
	return strings.Contains(err.Error(), "HTTP 401")
}

// isPlaylistMissing reports a playlist lookup the provider rejected as
// unknown or malformed.
func isPlaylistMissing(err error) bool {
	switch statusOf(err) {
	case http.StatusNotFound, http.StatusBadRequest:
		return true
	}
	return false
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch status := statusOf(err); {
	case status == http.StatusTooManyRequests, status >= 500:
		return true
	case status != 0:
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
