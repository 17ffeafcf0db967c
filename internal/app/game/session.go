package game

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/earshot/internal/domain/track"
)

// Errors
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStale             = errors.New("resolution superseded by a newer request")
)

// DefaultStages are the snippet durations of the six stages.
var DefaultStages = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	15 * time.Second,
}

// TrackSource resolves a selection into a playable track.
// A nil track with a nil error means nothing suitable was found.
type TrackSource interface {
	Resolve(ctx context.Context, sel track.SelectionContext) (*track.Track, error)
}

// Player performs the audio side effects of state transitions.
type Player interface {
	// Reset stops playback and zeroes the progress display.
	Reset()
	// LoadSnippet prepares the first d of the preview for playback.
	LoadSnippet(previewURL string, d time.Duration)
	// PlayFull plays the whole preview once.
	PlayFull(previewURL string)
}

// LoadError reports why a round could not start.
type LoadError struct {
	Message string // user-facing, depends on the selection mode
	Err     error  // nil when resolution found nothing
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Config holds session configuration.
type Config struct {
	Stages   []time.Duration
	Messages Messages
}

// Session drives one player's rounds: Idle -> Loading -> Staged(n) -> Success | Failure.
type Session struct {
	mu sync.Mutex

	id       string
	source   TrackSource
	player   Player
	stages   []time.Duration
	messages Messages
	logger   zerolog.Logger

	// Selection; played IDs are scoped to it
	mode      track.Mode
	parameter string
	played    map[string]bool

	// Round state
	state    State
	stage    int
	current  *track.Track
	attempts []Attempt

	// Incremented by every Start; older resolutions are discarded
	generation uint64

	eventCh chan Event
}

// NewSession creates a new game session.
func NewSession(source TrackSource, player Player, cfg Config) (*Session, error) {
	if source == nil {
		return nil, errors.New("track source is required")
	}
	if player == nil {
		player = nopPlayer{}
	}

	stages := cfg.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	messages := cfg.Messages
	if err := defaults.Set(&messages); err != nil {
		return nil, errors.Wrap(err, "failed to set message defaults")
	}

	id := uuid.New().String()
	return &Session{
		id:       id,
		source:   source,
		player:   player,
		stages:   append([]time.Duration(nil), stages...),
		messages: messages,
		logger:   zlog.With().Str("session", id).Logger(),
		played:   make(map[string]bool),
		state:    StateIdle,
		eventCh:  make(chan Event, 32),
	}, nil
}

// ValidateStages checks that stage durations are positive and strictly increasing.
func ValidateStages(stages []time.Duration) error {
	if len(stages) == 0 {
		return errors.New("at least one stage is required")
	}
	for i, d := range stages {
		if d <= 0 {
			return errors.Newf("stage %d duration must be positive", i+1)
		}
		if i > 0 && d <= stages[i-1] {
			return errors.Newf("stage durations must be strictly increasing: stage %d (%s) <= stage %d (%s)",
				i+1, d, i, stages[i-1])
		}
	}
	return nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Events returns the event channel.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// SetSelection sets the mode and parameter for the next rounds.
// Changing either one clears the played track IDs.
func (s *Session) SetSelection(mode track.Mode, parameter string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parameter = strings.TrimSpace(parameter)
	if mode == s.mode && parameter == s.parameter {
		return
	}
	s.mode = mode
	s.parameter = parameter
	s.played = make(map[string]bool)
	s.logger.Debug().Msgf("selection changed: mode=%s param=%q", mode, parameter)
}

// Selection returns the current selection context with a copy of the played IDs.
func (s *Session) Selection() track.SelectionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

// Start resolves a new track and enters the first stage.
// On failure the session returns to Idle and a *LoadError is returned.
// If another Start began meanwhile, the result is discarded with ErrStale.
func (s *Session) Start(ctx context.Context) (*track.Track, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	sel := s.selectionLocked()
	s.state = StateLoading
	s.current = nil
	s.attempts = nil
	s.player.Reset()
	s.sendEventLocked(Event{Type: EventLoading, State: StateLoading})
	s.mu.Unlock()

	t, err := s.source.Resolve(ctx, sel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug().Msgf("discarding stale resolution: generation=%d current=%d", gen, s.generation)
		return nil, ErrStale
	}

	if err != nil || t == nil || t.PreviewURL == "" {
		s.state = StateIdle
		loadErr := &LoadError{Message: s.messages.ForError(sel, err), Err: err}
		if err != nil {
			s.logger.Warn().Err(err).Msgf("failed to load track: mode=%s", sel.Mode)
		}
		s.sendEventLocked(Event{Type: EventLoadFailed, State: StateIdle, Message: loadErr.Message})
		return nil, loadErr
	}

	s.current = t
	s.played[t.ID] = true
	s.logger.Info().Msgf("round started: id=%s played=%d", t.ID, len(s.played))
	s.enterStageLocked(0)
	return t, nil
}

// PlayAgain starts a new round with the same selection after a round ended.
func (s *Session) PlayAgain(ctx context.Context) (*track.Track, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if !state.Terminal() {
		return nil, errors.Wrapf(ErrInvalidTransition, "play again in state %s", state)
	}
	return s.Start(ctx)
}

// Guess evaluates a guess against the current track.
// Blank guesses are ignored.
func (s *Session) Guess(text string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaged {
		return s.state, errors.Wrapf(ErrInvalidTransition, "guess in state %s", s.state)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.state, nil
	}

	if CheckGuess(text, s.current.Title, s.current.Artist) {
		s.recordLocked(Attempt{Stage: s.stage, Guess: text, Outcome: OutcomeCorrect})
		s.endLocked(StateSuccess)
		return s.state, nil
	}

	s.recordLocked(Attempt{Stage: s.stage, Guess: text, Outcome: OutcomeWrong})
	s.advanceLocked()
	return s.state, nil
}

// Skip gives up the current stage.
func (s *Session) Skip() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaged {
		return s.state, errors.Wrapf(ErrInvalidTransition, "skip in state %s", s.state)
	}
	s.recordLocked(Attempt{Stage: s.stage, Outcome: OutcomeSkipped})
	s.advanceLocked()
	return s.state, nil
}

// Replay loads the current stage's snippet again.
func (s *Session) Replay() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStaged {
		return errors.Wrapf(ErrInvalidTransition, "replay in state %s", s.state)
	}
	s.player.Reset()
	s.player.LoadSnippet(s.current.PreviewURL, s.stages[s.stage])
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stage returns the current 0-based stage index.
func (s *Session) Stage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// StageCount returns the number of stages.
func (s *Session) StageCount() int {
	return len(s.stages)
}

// StageDuration returns the snippet duration of the current stage.
func (s *Session) StageDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[s.stage]
}

// Current returns the current track, or nil while none is loaded.
func (s *Session) Current() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Attempts returns the guesses and skips of the current round.
func (s *Session) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}

// PlayedIDs returns the track IDs played under the current selection, sorted.
func (s *Session) PlayedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.played))
	for id := range s.played {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) selectionLocked() track.SelectionContext {
	exclude := make(map[string]bool, len(s.played))
	for id := range s.played {
		exclude[id] = true
	}
	return track.SelectionContext{Mode: s.mode, Parameter: s.parameter, ExcludeIDs: exclude}
}

func (s *Session) enterStageLocked(n int) {
	s.stage = n
	s.state = StateStaged
	s.player.Reset()
	s.player.LoadSnippet(s.current.PreviewURL, s.stages[n])
	s.sendEventLocked(Event{Type: EventStageEntered, State: StateStaged, Stage: n})
}

func (s *Session) advanceLocked() {
	if s.stage+1 < len(s.stages) {
		s.enterStageLocked(s.stage + 1)
		return
	}
	s.endLocked(StateFailure)
}

func (s *Session) endLocked(state State) {
	s.state = state
	s.player.Reset()
	s.player.PlayFull(s.current.PreviewURL)
	s.logger.Info().Msgf("round ended: state=%s stage=%d id=%s", state, s.stage+1, s.current.ID)
	s.sendEventLocked(Event{Type: EventRoundEnded, State: state, Stage: s.stage, Track: s.current})
}

func (s *Session) recordLocked(a Attempt) {
	s.attempts = append(s.attempts, a)
	s.sendEventLocked(Event{Type: EventAttempted, State: s.state, Stage: a.Stage, Attempt: &a})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) sendEventLocked(e Event) {
	select {
	case s.eventCh <- e:
	default:
		// Channel full, drop event
	}
}

type nopPlayer struct{}

func (nopPlayer) Reset()                             {}
func (nopPlayer) LoadSnippet(string, time.Duration) {}
func (nopPlayer) PlayFull(string)                   {}
