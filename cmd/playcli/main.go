// Package main provides the terminal game client.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/earshot/internal/api/httpapi"
	"github.com/osa030/earshot/internal/app/game"
	"github.com/osa030/earshot/internal/domain/track"
	"github.com/osa030/earshot/internal/infra/config"
	"github.com/osa030/earshot/internal/infra/logger"
)

var (
	app        = kingpin.New("earshot-playcli", "earshot song guessing game client")
	configPath = app.Flag("config", "Path to config file with a game section").Envar("EARSHOT_CONFIG").String()
	server     = app.Flag("server", "Server address (default: game.server_url)").Envar("EARSHOT_SERVER").String()
	timeout    = app.Flag("timeout", "Request timeout").Default("30s").Duration()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	// play command
	playCmd      = app.Command("play", "Play rounds interactively").Default()
	playPlaylist = playCmd.Flag("playlist", "Spotify playlist ID or URL").String()
	playArtist   = playCmd.Flag("artist", "Artist name").String()
	playGenre    = playCmd.Flag("genre", "iTunes genre ID for chart mode").String()
	playStages   = playCmd.Flag("stage", "Snippet duration per stage (repeatable)").DurationList()

	// daily command
	dailyCmd = app.Command("daily", "Play today's song")

	// search command
	searchCmd  = app.Command("search", "Search songs for a guess")
	searchTerm = searchCmd.Arg("term", "Search term").Required().String()

	// validate command
	validateCmd      = app.Command("validate", "Check a playlist")
	validatePlaylist = validateCmd.Arg("playlist", "Spotify playlist ID or URL").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := gameSettings(*configPath, *server, *playStages)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	client := httpapi.NewClient(settings.ServerURL, *timeout)

	switch command {
	case playCmd.FullCommand():
		mode, param := playSelection()
		err = play(ctx, client, mode, param, settings.Stages)
	case dailyCmd.FullCommand():
		err = play(ctx, client, track.ModeDaily, "", settings.Stages)
	case searchCmd.FullCommand():
		err = search(ctx, client, *searchTerm)
	case validateCmd.FullCommand():
		err = validate(ctx, client, *validatePlaylist)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// gameSettings merges the optional config file with the command line.
// Flags win over the file; without a file the built-in defaults apply.
func gameSettings(path, serverFlag string, stageFlags []time.Duration) (config.GameConfig, error) {
	settings := config.GameConfig{ServerURL: "http://localhost:8080"}
	if path != "" {
		loaded, err := config.LoadGame(path)
		if err != nil {
			return settings, err
		}
		settings = *loaded
	}
	if serverFlag != "" {
		settings.ServerURL = serverFlag
	}
	if len(stageFlags) > 0 {
		settings.Stages = stageFlags
	}
	return settings, nil
}

func playSelection() (track.Mode, string) {
	switch {
	case *playPlaylist != "":
		return track.ModePlaylist, *playPlaylist
	case *playArtist != "":
		return track.ModeArtist, *playArtist
	default:
		return track.ModeChart, *playGenre
	}
}

func play(ctx context.Context, client *httpapi.Client, mode track.Mode, param string, stages []time.Duration) error {
	session, err := game.NewSession(client, &terminalPlayer{out: os.Stdout}, game.Config{Stages: stages})
	if err != nil {
		return err
	}
	session.SetSelection(mode, param)

	in := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a guess, /skip, /replay, /search <term> or /quit.")

	if _, err := session.Start(ctx); err != nil {
		printEvents(session)
		return err
	}
	printEvents(session)

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())

		switch {
		case line == "/quit":
			return nil
		case line == "/skip":
			_, err = session.Skip()
		case line == "/replay":
			err = session.Replay()
		case strings.HasPrefix(line, "/search "):
			err = search(ctx, client, strings.TrimPrefix(line, "/search "))
		default:
			_, err = session.Guess(line)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		printEvents(session)

		if !session.State().Terminal() {
			continue
		}
		again, err := playAgain(ctx, in, session)
		if err != nil || !again {
			return err
		}
	}
}

// playAgain asks until a new round is running or the player declines.
// A round that fails to load is reported and the question is asked again.
func playAgain(ctx context.Context, in *bufio.Scanner, session *game.Session) (bool, error) {
	start := session.PlayAgain
	for ask(in, "Play again? [y/N] ") {
		_, err := start(ctx)
		printEvents(session)
		if err == nil {
			return true, nil
		}
		var loadErr *game.LoadError
		if !errors.As(err, &loadErr) || ctx.Err() != nil {
			return false, err
		}
		// The failed load left the session idle
		start = session.Start
	}
	return false, nil
}

// printEvents prints the pending session events without blocking.
func printEvents(s *game.Session) {
	for {
		select {
		case e := <-s.Events():
			printEvent(s, e)
		default:
			return
		}
	}
}

func printEvent(s *game.Session, e game.Event) {
	switch e.Type {
	case game.EventLoading:
		fmt.Println("Loading a track...")
	case game.EventLoadFailed:
		fmt.Printf("✗ %s\n", e.Message)
	case game.EventStageEntered:
		fmt.Printf("Stage %d/%d\n", e.Stage+1, s.StageCount())
	case game.EventAttempted:
		switch e.Attempt.Outcome {
		case game.OutcomeWrong:
			fmt.Printf("✗ %q is not it\n", e.Attempt.Guess)
		case game.OutcomeSkipped:
			fmt.Println("⏭  Skipped")
		case game.OutcomeCorrect:
			fmt.Println("✓ Correct!")
		}
	case game.EventRoundEnded:
		if e.State == game.StateSuccess {
			fmt.Printf("You got it in %d: %s by %s\n", e.Stage+1, e.Track.Title, e.Track.Artist)
		} else {
			fmt.Printf("Out of stages. It was %s by %s\n", e.Track.Title, e.Track.Artist)
		}
	}
}

func ask(in *bufio.Scanner, prompt string) bool {
	fmt.Print(prompt)
	if !in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(in.Text()))
	return answer == "y" || answer == "yes"
}

func search(ctx context.Context, client *httpapi.Client, term string) error {
	results, err := client.Search(ctx, term)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No songs found.")
		return nil
	}
	for _, c := range results {
		fmt.Printf("  %-40s %s\n", c.Title, c.Artist)
	}
	return nil
}

func validate(ctx context.Context, client *httpapi.Client, id string) error {
	details, err := client.ValidatePlaylist(ctx, id)
	if err != nil {
		return err
	}
	if details == nil {
		fmt.Println("Playlist not found or not accessible.")
		return nil
	}
	fmt.Printf("Playlist: %s\n", details.Name)
	fmt.Printf("  ID: %s\n", details.ID)
	fmt.Printf("  Tracks: %d\n", details.TotalTracks)
	return nil
}

// terminalPlayer prints the audio actions instead of playing them.
type terminalPlayer struct {
	out io.Writer
}

func (p *terminalPlayer) Reset() {}

func (p *terminalPlayer) LoadSnippet(previewURL string, d time.Duration) {
	fmt.Fprintf(p.out, "♪ first %s of %s\n", d, previewURL)
}

func (p *terminalPlayer) PlayFull(previewURL string) {
	fmt.Fprintf(p.out, "♪ full preview: %s\n", previewURL)
}
