package track

import "github.com/cockroachdb/errors"

// Error markers shared by provider clients and the resolver.
// Clients mark their errors with errors.Mark so callers can use errors.Is.
var (
	// ErrProvider is a transient HTTP or network failure from either provider.
	ErrProvider = errors.New("provider request failed")
	// ErrAuth means the credential exchange or refresh failed.
	ErrAuth = errors.New("provider authorization failed")
	// ErrPlaylistNotFound means the playlist does not exist or is not accessible.
	ErrPlaylistNotFound = errors.New("playlist not found")
)

// IsFatal reports whether err must abort a resolution instead of failing one attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrPlaylistNotFound)
}
