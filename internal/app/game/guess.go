package game

import "strings"

// CheckGuess reports whether a guess names the track title.
// The trimmed guess matches when either string contains the other, ignoring case.
// The artist is accepted for future use but not compared.
func CheckGuess(guess, title, artist string) bool {
	g := strings.ToLower(strings.TrimSpace(guess))
	t := strings.ToLower(strings.TrimSpace(title))
	if g == "" || t == "" {
		return false
	}
	return strings.Contains(t, g) || strings.Contains(g, t)
}
