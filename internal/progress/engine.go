// Package progress implements the per-location challenge progression:
// unlock ordering, the scan -> photo -> quiz stages, QR validation and
// the quiz cooldown.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// Store is the persistence contract the engine needs. Attempt returns a
// zero Attempt when the pair has no row yet. CompleteLocation must insert
// the passing row, clear the attempt cooldown and refresh the player's
// counters in one transaction, returning ErrAlreadyCompleted when a
// passing row exists. Inside that transaction it refuses with
// ErrCooldownActive while the stored deadline is after at, and with
// ErrLocationLocked while the previous location has no passing row.
type Store interface {
	CooldownStore
	Locations(ctx context.Context) ([]treasurehunt.Location, error)
	PassingProgress(ctx context.Context, playerID string) ([]treasurehunt.Progress, error)
	Attempts(ctx context.Context, playerID string) ([]treasurehunt.Attempt, error)
	RecordScan(ctx context.Context, playerID, locationID, method string, at time.Time) (treasurehunt.Attempt, error)
	RecordPhoto(ctx context.Context, playerID, locationID, photoURL string, at time.Time) (treasurehunt.Attempt, error)
	CompleteLocation(ctx context.Context, playerID, locationID string, at time.Time) (treasurehunt.Progress, error)
}

type Engine struct {
	store     Store
	tracker   *Tracker
	now       func() time.Time
	cooldown  time.Duration
	photoGate bool
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithCooldown(d time.Duration) Option { return func(e *Engine) { e.cooldown = d } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithPhotoGate makes a clean photo report a precondition of leaving
// AWAITING_PHOTO. Without it the report is advisory.
func WithPhotoGate(enabled bool) Option { return func(e *Engine) { e.photoGate = enabled } }

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		now:      time.Now,
		cooldown: DefaultCooldown,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.Tracer("github.com/mallhunt/treasurehunt/internal/progress"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracker = NewTracker(store, e.cooldown, e.now)
	return e
}

// Board is the player's view of every location, in unlock order.
type Board struct {
	Locations  []LocationStatus
	Challenges []Challenge
	Passed     []treasurehunt.Progress
}

func (b Board) Completed() int { return len(b.Passed) }

func (b Board) AllCompleted() bool {
	return len(b.Locations) > 0 && len(b.Passed) >= len(b.Locations)
}

// Board recomputes statuses and stages from the stored progress.
func (e *Engine) Board(ctx context.Context, playerID string) (Board, error) {
	locations, passed, err := e.load(ctx, playerID)
	if err != nil {
		return Board{}, err
	}
	attempts, err := e.store.Attempts(ctx, playerID)
	if err != nil {
		return Board{}, fmt.Errorf("loading attempts: %w", err)
	}
	byLocation := make(map[string]treasurehunt.Attempt, len(attempts))
	for _, a := range attempts {
		byLocation[a.LocationID] = a
	}

	now := e.now()
	statuses := Statuses(locations, passed)
	b := Board{Locations: statuses, Passed: passed, Challenges: make([]Challenge, len(statuses))}
	for i, ls := range statuses {
		b.Challenges[i] = StageOf(ls, byLocation[ls.Location.ID], now)
	}
	return b, nil
}

// Challenge returns the current stage of one (player, location) pair.
func (e *Engine) Challenge(ctx context.Context, playerID, locationID string) (Challenge, error) {
	ch, _, _, err := e.challenge(ctx, playerID, locationID)
	return ch, err
}

func (e *Engine) challenge(ctx context.Context, playerID, locationID string) (Challenge, treasurehunt.Location, []treasurehunt.Location, error) {
	locations, passed, err := e.load(ctx, playerID)
	if err != nil {
		return Challenge{}, treasurehunt.Location{}, nil, err
	}
	ls, err := StatusOf(locations, passed, locationID)
	if err != nil {
		return Challenge{}, treasurehunt.Location{}, nil, err
	}
	a, err := e.store.Attempt(ctx, playerID, locationID)
	if err != nil {
		return Challenge{}, treasurehunt.Location{}, nil, fmt.Errorf("loading attempt: %w", err)
	}
	return StageOf(ls, a, e.now()), ls.Location, locations, nil
}

func (e *Engine) load(ctx context.Context, playerID string) ([]treasurehunt.Location, []treasurehunt.Progress, error) {
	locations, err := e.store.Locations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading locations: %w", err)
	}
	passed, err := e.store.PassingProgress(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading progress: %w", err)
	}
	return locations, passed, nil
}

// ScanOutcome carries the QR verdict and the resulting stage.
type ScanOutcome struct {
	Result    ScanResult
	Challenge Challenge
}

// Scan validates scanned QR text for a location and, when valid, moves
// AVAILABLE_SCAN to AWAITING_PHOTO. A valid scan at a later stage is
// accepted without resetting that stage.
func (e *Engine) Scan(ctx context.Context, playerID, locationID, scanned, method string) (out ScanOutcome, err error) {
	ctx, span := e.startSpan(ctx, "progress.Scan", playerID, locationID)
	defer func() { endSpan(span, err) }()

	ch, _, locations, err := e.challenge(ctx, playerID, locationID)
	if err != nil {
		return ScanOutcome{}, err
	}
	if err := guardOpen(ch); err != nil {
		return ScanOutcome{Challenge: ch}, err
	}

	tokens, err := TokenSetFor(locations)
	if err != nil {
		return ScanOutcome{}, fmt.Errorf("building token set: %w", err)
	}
	result := ValidateScan(tokens, scanned, locationID)
	span.SetAttributes(attribute.Bool("scan.valid", result.Valid), attribute.String("scan.reason", string(result.Reason)))
	if !result.Valid {
		return ScanOutcome{Result: result, Challenge: ch}, nil
	}
	if ch.Stage != StageAvailableScan {
		return ScanOutcome{Result: result, Challenge: ch}, nil
	}

	if method != treasurehunt.ScanMethodManual {
		method = treasurehunt.ScanMethodCamera
	}
	if _, err := e.store.RecordScan(ctx, playerID, locationID, method, e.now()); err != nil {
		return ScanOutcome{}, fmt.Errorf("recording scan: %w", err)
	}
	ch.Stage = StageAwaitingPhoto
	e.logger.Info("scan accepted", "player_id", playerID, "location_id", locationID, "method", method)
	return ScanOutcome{Result: result, Challenge: ch}, nil
}

// TokenSetFor builds the token set from the locations' configured
// tokens, falling back to DefaultTokens for locations without any.
func TokenSetFor(locations []treasurehunt.Location) (*TokenSet, error) {
	m := make(map[string][]string, len(locations))
	for _, loc := range locations {
		if len(loc.Tokens) > 0 {
			m[loc.ID] = loc.Tokens
		} else {
			m[loc.ID] = DefaultTokens(loc.ID)
		}
	}
	return NewTokenSet(m)
}

// PhotoSubmission is the result of the capture step. Issues come from
// the metadata check; Skipped marks the manual fallback when the device
// has no usable camera.
type PhotoSubmission struct {
	URL     string
	Issues  []string
	Skipped bool
}

// AcceptPhoto moves AWAITING_PHOTO to AWAITING_QUIZ. With the photo gate
// enabled a submission with issues is rejected and the stage is kept.
func (e *Engine) AcceptPhoto(ctx context.Context, playerID, locationID string, photo PhotoSubmission) (ch Challenge, err error) {
	ctx, span := e.startSpan(ctx, "progress.AcceptPhoto", playerID, locationID)
	defer func() { endSpan(span, err) }()

	ch, err = e.Challenge(ctx, playerID, locationID)
	if err != nil {
		return Challenge{}, err
	}
	if err := guardOpen(ch); err != nil {
		return ch, err
	}
	if ch.Stage != StageAwaitingPhoto {
		return ch, fmt.Errorf("%w: %s", treasurehunt.ErrWrongStage, ch.Stage)
	}
	if e.photoGate && !photo.Skipped && len(photo.Issues) > 0 {
		return ch, fmt.Errorf("%w: %s", treasurehunt.ErrPhotoRejected, strings.Join(photo.Issues, "; "))
	}

	a, err := e.store.RecordPhoto(ctx, playerID, locationID, photo.URL, e.now())
	if err != nil {
		return Challenge{}, fmt.Errorf("recording photo: %w", err)
	}
	ch.Stage = StageAwaitingQuiz
	ch.PhotoURL = a.PhotoURL
	return ch, nil
}

// AnswerOutcome is the result of a quiz submission.
type AnswerOutcome struct {
	Correct      bool
	Progress     *treasurehunt.Progress
	Challenge    Challenge
	HuntComplete bool
}

// SubmitAnswer evaluates a quiz answer. A correct answer creates the one
// passing row for the pair; a wrong answer starts the cooldown. Locked,
// completed, cooling-down and not-yet-photographed pairs are refused
// without any write.
func (e *Engine) SubmitAnswer(ctx context.Context, playerID, locationID, selected string) (out AnswerOutcome, err error) {
	ctx, span := e.startSpan(ctx, "progress.SubmitAnswer", playerID, locationID)
	defer func() { endSpan(span, err) }()

	ch, loc, locations, err := e.challenge(ctx, playerID, locationID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	if err := guardOpen(ch); err != nil {
		return AnswerOutcome{Challenge: ch}, err
	}
	switch ch.Stage {
	case StageCooldown:
		return AnswerOutcome{Challenge: ch}, &CooldownError{Until: *ch.CooldownUntil}
	case StageAwaitingQuiz:
	default:
		return AnswerOutcome{Challenge: ch}, fmt.Errorf("%w: %s", treasurehunt.ErrWrongStage, ch.Stage)
	}

	selected = strings.TrimSpace(selected)
	if !slices.ContainsFunc(loc.QuizOptions, func(o string) bool { return strings.EqualFold(strings.TrimSpace(o), selected) }) {
		return AnswerOutcome{Challenge: ch}, treasurehunt.ErrInvalidOption
	}
	correct := strings.EqualFold(selected, strings.TrimSpace(loc.CorrectAnswer))
	span.SetAttributes(attribute.Bool("quiz.correct", correct))

	if !correct {
		a, err := e.tracker.RecordAttempt(ctx, playerID, locationID, false)
		if err != nil {
			var cd *CooldownError
			if errors.As(err, &cd) {
				ch.Stage, ch.CooldownUntil = StageCooldown, &cd.Until
				return AnswerOutcome{Challenge: ch}, err
			}
			return AnswerOutcome{}, err
		}
		ch.Stage = StageCooldown
		ch.Attempts = a.QuizAttempts
		ch.CooldownUntil = a.NextAttemptAllowed
		e.logger.Info("quiz answered", "player_id", playerID, "location_id", locationID, "outcome", "wrong", "attempts", a.QuizAttempts)
		return AnswerOutcome{Challenge: ch}, nil
	}

	p, err := e.store.CompleteLocation(ctx, playerID, locationID, e.now())
	switch {
	case errors.Is(err, treasurehunt.ErrAlreadyCompleted):
		ch.Stage, ch.Status = StageCompleted, StatusCompleted
		return AnswerOutcome{Challenge: ch}, err
	case errors.Is(err, treasurehunt.ErrCooldownActive):
		if until, locked, lerr := e.tracker.IsLocked(ctx, playerID, locationID); lerr == nil && locked {
			ch.Stage, ch.CooldownUntil = StageCooldown, &until
			return AnswerOutcome{Challenge: ch}, &CooldownError{Until: until}
		}
		return AnswerOutcome{Challenge: ch}, err
	case errors.Is(err, treasurehunt.ErrLocationLocked):
		ch.Stage, ch.Status = StageLocked, StatusLocked
		return AnswerOutcome{Challenge: ch}, err
	case err != nil:
		return AnswerOutcome{}, fmt.Errorf("completing location: %w", err)
	}

	passed, err := e.store.PassingProgress(ctx, playerID)
	if err != nil {
		return AnswerOutcome{}, fmt.Errorf("loading progress: %w", err)
	}
	ch.Stage, ch.Status = StageCompleted, StatusCompleted
	ch.Attempts, ch.CooldownUntil = 0, nil
	out = AnswerOutcome{
		Correct:      true,
		Progress:     &p,
		Challenge:    ch,
		HuntComplete: len(PassedSet(passed)) >= len(locations),
	}
	e.logger.Info("quiz answered", "player_id", playerID, "location_id", locationID, "outcome", "correct", "hunt_complete", out.HuntComplete)
	return out, nil
}

// IsLocked reports the stored lockout deadline for the pair.
func (e *Engine) IsLocked(ctx context.Context, playerID, locationID string) (time.Time, bool, error) {
	return e.tracker.IsLocked(ctx, playerID, locationID)
}

// ClearCooldown lifts a lockout and resets the attempt counter.
func (e *Engine) ClearCooldown(ctx context.Context, playerID, locationID string) error {
	_, err := e.tracker.RecordAttempt(ctx, playerID, locationID, true)
	return err
}

func guardOpen(ch Challenge) error {
	switch ch.Stage {
	case StageLocked:
		return treasurehunt.ErrLocationLocked
	case StageCompleted:
		return treasurehunt.ErrAlreadyCompleted
	}
	return nil
}

func (e *Engine) startSpan(ctx context.Context, name, playerID, locationID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("player.id", playerID),
		attribute.String("location.id", locationID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
