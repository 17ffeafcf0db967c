// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Spotify      SpotifyConfig      `yaml:"spotify"`
	ITunes       ITunesConfig       `yaml:"itunes"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Daily        DailyConfig        `yaml:"daily"`
	Chart        ChartConfig        `yaml:"chart"`
	Autocomplete AutocompleteConfig `yaml:"autocomplete"`
	Game         GameConfig         `yaml:"game"`
	Messages     MessagesConfig     `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string        `yaml:"client_id" validate:"required"`
	ClientSecret string        `yaml:"client_secret" validate:"required"`
	Market       string        `yaml:"market" validate:"omitempty,len=2" default:"US"`
	TokenURL     string        `yaml:"token_url" validate:"omitempty,url"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

// ITunesConfig represents iTunes Search API configuration.
type ITunesConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	ChartBaseURL      string        `yaml:"chart_base_url" validate:"omitempty,url"`
	Country           string        `yaml:"country" validate:"omitempty,len=2" default:"US"`
	RequestsPerMinute int           `yaml:"requests_per_minute" default:"20" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" default:"8s" validate:"gt=0"`
}

// ResolverConfig represents track resolution configuration.
type ResolverConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" default:"5" validate:"gte=1,lte=50"`
	DailyMaxAttempts  int           `yaml:"daily_max_attempts" default:"10" validate:"gte=1,lte=50"`
	PreviewLimit      int           `yaml:"preview_limit" default:"10" validate:"gte=1,lte=200"`
	CallTimeout       time.Duration `yaml:"call_timeout" default:"8s" validate:"gt=0"`
	PlaylistPageSize  int           `yaml:"playlist_page_size" default:"100" validate:"gte=1,lte=100"`
	ArtistSearchLimit int           `yaml:"artist_search_limit" default:"50" validate:"gte=1,lte=50"`
	MinReleaseYear    int           `yaml:"min_release_year" default:"2006" validate:"gte=0"`
}

// DailyConfig represents daily song configuration.
type DailyConfig struct {
	PlaylistID string `yaml:"playlist_id"`
}

// ChartConfig represents genre chart configuration.
type ChartConfig struct {
	GenreID string `yaml:"genre_id" validate:"omitempty,numeric"`
	Limit   int    `yaml:"limit" default:"100" validate:"gte=1,lte=200"`
}

// AutocompleteConfig represents guess autocomplete configuration.
type AutocompleteConfig struct {
	CacheSize      int `yaml:"cache_size" default:"20" validate:"gte=1"`
	MaxResults     int `yaml:"max_results" default:"10" validate:"gte=1,lte=50"`
	MinQueryLength int `yaml:"min_query_length" default:"2" validate:"gte=1"`
}

// GameConfig represents game client configuration.
type GameConfig struct {
	ServerURL string          `yaml:"server_url" default:"http://localhost:8080" validate:"url"`
	Stages    []time.Duration `yaml:"stages"`
}

// MessagesConfig represents user-facing messages.
// Empty fields fall back to the built-in texts.
type MessagesConfig struct {
	Playlist        string `yaml:"playlist"`
	Artist          string `yaml:"artist"`
	Daily           string `yaml:"daily"`
	Chart           string `yaml:"chart"`
	InvalidPlaylist string `yaml:"invalid_playlist"`
	Unavailable     string `yaml:"unavailable"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applies environment
// overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("EARSHOT_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.Game.validateStages(); err != nil {
		return err
	}

	return nil
}

// validateStages checks that configured stage durations are positive and increasing.
func (g *GameConfig) validateStages() error {
	for i, d := range g.Stages {
		if d <= 0 {
			return errors.Newf("game.stages[%d] must be positive", i)
		}
		if i > 0 && d <= g.Stages[i-1] {
			return errors.Newf("game.stages[%d] (%s) must be longer than game.stages[%d] (%s)",
				i, d, i-1, g.Stages[i-1])
		}
	}
	return nil
}

// LoadGame loads only the game section of a YAML file. Unlike Load it needs
// no provider credentials, so the terminal client can share the server file.
func LoadGame(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return ParseGame(data)
}

// ParseGame parses the game section from YAML bytes, applies defaults and
// validates it.
func ParseGame(data []byte) (*GameConfig, error) {
	var file struct {
		Game GameConfig `yaml:"game"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	game := file.Game
	if err := defaults.Set(&game); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(&game); err != nil {
		return nil, errors.Wrap(err, "game config validation failed")
	}
	if err := game.validateStages(); err != nil {
		return nil, err
	}
	return &game, nil
}
