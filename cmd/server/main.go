// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/earshot/internal/api/httpapi"
	"github.com/osa030/earshot/internal/app/autocomplete"
	"github.com/osa030/earshot/internal/app/game"
	"github.com/osa030/earshot/internal/app/resolver"
	"github.com/osa030/earshot/internal/infra/config"
	"github.com/osa030/earshot/internal/infra/credential"
	"github.com/osa030/earshot/internal/infra/itunes"
	"github.com/osa030/earshot/internal/infra/logger"
	"github.com/osa030/earshot/internal/infra/spotify"
)

var (
	app        = kingpin.New("earshot-server", "earshot song guessing game server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	checkCmd = app.Command("check", "Load the config, check the daily playlist and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg, command == checkCmd.FullCommand()); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, checkOnly bool) error {
	ctx := context.Background()

	creds, err := credential.New(credential.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
		Timeout:      cfg.Spotify.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create credential manager: %w", err)
	}

	spotifyClient, err := spotify.New(creds, spotify.Config{
		Market:  cfg.Spotify.Market,
		BaseURL: cfg.Spotify.BaseURL,
		Timeout: cfg.Spotify.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	itunesClient := itunes.New(itunes.Config{
		BaseURL:           cfg.ITunes.BaseURL,
		ChartBaseURL:      cfg.ITunes.ChartBaseURL,
		Country:           cfg.ITunes.Country,
		RequestsPerMinute: cfg.ITunes.RequestsPerMinute,
		Timeout:           cfg.ITunes.Timeout,
	})

	if err := validateDailyPlaylist(ctx, cfg, spotifyClient); err != nil {
		return fmt.Errorf("daily playlist validation failed: %w", err)
	}
	if checkOnly {
		zlog.Info().Msg("Config check passed")
		return nil
	}

	engine, err := resolver.New(spotifyClient, itunesClient, resolver.Config{
		MaxAttempts:       cfg.Resolver.MaxAttempts,
		DailyMaxAttempts:  cfg.Resolver.DailyMaxAttempts,
		PreviewLimit:      cfg.Resolver.PreviewLimit,
		CallTimeout:       cfg.Resolver.CallTimeout,
		PlaylistPageSize:  cfg.Resolver.PlaylistPageSize,
		ArtistSearchLimit: cfg.Resolver.ArtistSearchLimit,
		ChartLimit:        cfg.Chart.Limit,
		MinReleaseYear:    cfg.Resolver.MinReleaseYear,
		Market:            cfg.Spotify.Market,
		Country:           cfg.ITunes.Country,
		DailyPlaylistID:   cfg.Daily.PlaylistID,
		ChartGenreID:      cfg.Chart.GenreID,
	})
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	index, err := autocomplete.New(spotifyClient, autocomplete.Config{
		CacheSize:      cfg.Autocomplete.CacheSize,
		MaxResults:     cfg.Autocomplete.MaxResults,
		MinQueryLength: cfg.Autocomplete.MinQueryLength,
		Market:         cfg.Spotify.Market,
	})
	if err != nil {
		return fmt.Errorf("failed to create autocomplete index: %w", err)
	}

	api, err := httpapi.NewServer(engine, index, spotifyClient, game.Messages(cfg.Messages))
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h2c.NewHandler(api, &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// validateDailyPlaylist checks that the configured daily playlist exists.
// Transient errors are retried with exponential backoff.
func validateDailyPlaylist(ctx context.Context, cfg *config.Config, spotifyClient *spotify.Client) error {
	if cfg.Daily.PlaylistID == "" {
		zlog.Warn().Msg("Daily playlist not configured, /api/song-daily will fail")
		return nil
	}

	const maxRetries = 5
	baseDelay := 1 * time.Second

	zlog.Info().Msgf("Validating daily playlist: id=%s", cfg.Daily.PlaylistID)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying daily playlist validation in %v...", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		details, err := spotifyClient.GetPlaylistDetails(ctx, cfg.Daily.PlaylistID)
		if err != nil {
			lastErr = err
			zlog.Warn().Msgf("Failed to validate daily playlist (attempt %d/%d): %v", i+1, maxRetries, err)
			continue
		}
		if details == nil {
			return fmt.Errorf("playlist %s not found", cfg.Daily.PlaylistID)
		}
		if details.TotalTracks == 0 {
			return fmt.Errorf("playlist %s (%s) is empty", details.ID, details.Name)
		}

		zlog.Info().Msgf("Daily playlist validated: name=%q tracks=%d", details.Name, details.TotalTracks)
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
}
