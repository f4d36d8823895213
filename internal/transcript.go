package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rtzll/yt2md/internal/retry"
)

// Transcript acquisition defaults
const (
	DefaultTranscriptAttempts   = 10
	DefaultTranscriptRetryDelay = 20 * time.Second
)

// unplayablePrefix is how YouTube reports a video that cannot be played
const unplayablePrefix = "The video is unplayable for the following reason:"

// ErrTranscriptUnavailable is returned when neither the caption source nor the
// audio fallback produced a transcript for a video
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

// TranscriptErrorKind classifies caption source failures
type TranscriptErrorKind int

const (
	KindGeneric TranscriptErrorKind = iota
	KindVideoUnavailable
	KindLanguageUnavailable
	KindTranscriptsDisabled
	KindNoTranscriptFound
	KindUnplayable
	KindIPBlocked
)

func (k TranscriptErrorKind) String() string {
	switch k {
	case KindVideoUnavailable:
		return "video unavailable"
	case KindLanguageUnavailable:
		return "language unavailable"
	case KindTranscriptsDisabled:
		return "transcripts disabled"
	case KindNoTranscriptFound:
		return "no transcript found"
	case KindUnplayable:
		return "video unplayable"
	case KindIPBlocked:
		return "IP blocked"
	default:
		return "generic"
	}
}

// Marker returns the status written to the video index for this kind, or ""
// for kinds that are not recorded
func (k TranscriptErrorKind) Marker() string {
	switch k {
	case KindVideoUnavailable:
		return "VIDEO_UNAVAILABLE"
	case KindLanguageUnavailable:
		return "LANGUAGE_UNAVAILABLE"
	case KindTranscriptsDisabled:
		return "TRANSCRIPTS_DISABLED"
	case KindNoTranscriptFound:
		return "NO_TRANSCRIPT_FOUND"
	case KindUnplayable:
		return "VIDEO_UNPLAYABLE"
	case KindIPBlocked:
		return "IP_BLOCKED"
	default:
		return ""
	}
}

// Terminal reports whether retrying the caption source cannot help
func (k TranscriptErrorKind) Terminal() bool {
	switch k {
	case KindVideoUnavailable, KindLanguageUnavailable, KindTranscriptsDisabled,
		KindNoTranscriptFound, KindUnplayable:
		return true
	default:
		return false
	}
}

// TranscriptError is a classified caption source failure
type TranscriptError struct {
	Kind    TranscriptErrorKind
	VideoID string
	Reason  string
	Err     error
}

func (e *TranscriptError) Error() string {
	msg := fmt.Sprintf("transcript for %s: %s", e.VideoID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranscriptError) Unwrap() error {
	return e.Err
}

var ipBlockTokens = []string{"requestblocked", "ipblocked", "429", "too many requests", "quota exceeded", "rate limit"}

// ClassifyTranscriptError maps an error to a TranscriptErrorKind. A typed
// TranscriptError keeps its kind; only untyped errors are classified by
// their message.
func ClassifyTranscriptError(err error) TranscriptErrorKind {
	if err == nil {
		return KindGeneric
	}
	var te *TranscriptError
	if errors.As(err, &te) {
		return te.Kind
	}

	msg := err.Error()
	if strings.Contains(msg, unplayablePrefix) {
		return KindUnplayable
	}
	lower := strings.ToLower(msg)
	for _, tok := range ipBlockTokens {
		if strings.Contains(lower, tok) {
			return KindIPBlocked
		}
	}
	return KindGeneric
}

// unplayableReason extracts the reason line that follows unplayablePrefix
func unplayableReason(msg string) string {
	_, after, ok := strings.Cut(msg, unplayablePrefix)
	if !ok {
		return ""
	}
	for _, line := range strings.Split(after, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}

// TranscriptSegment is one caption cue
type TranscriptSegment struct {
	Text     string
	Start    time.Duration
	Duration time.Duration
}

// JoinSegments concatenates segment texts with single spaces
func JoinSegments(segments []TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// TranscriptSource fetches published captions for a video
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, videoID, languageCode string) ([]TranscriptSegment, error)
}

// AudioTranscriber produces a transcript from the video's audio track
type AudioTranscriber interface {
	Transcribe(ctx context.Context, videoURL, languageCode string) (string, error)
}

// StatusRecorder persists a per-video status marker
type StatusRecorder interface {
	Record(ctx context.Context, videoID, value string) error
}

// AcquirerConfig controls the caption source retry loop
type AcquirerConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// TranscriptAcquirer gets a transcript for a video, falling back to audio
// transcription when captions cannot be fetched
type TranscriptAcquirer struct {
	source   TranscriptSource
	fallback AudioTranscriber
	failures *FailureState
	index    StatusRecorder
	ui       UIManager
	cfg      AcquirerConfig
	sleep    retry.SleepFunc
}

// NewTranscriptAcquirer creates an acquirer. fallback and index may be nil.
func NewTranscriptAcquirer(source TranscriptSource, fallback AudioTranscriber, failures *FailureState, index StatusRecorder, ui UIManager, cfg AcquirerConfig) *TranscriptAcquirer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultTranscriptAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultTranscriptRetryDelay
	}
	if failures == nil {
		failures = NewFailureState(DefaultFailureThreshold)
	}
	return &TranscriptAcquirer{
		source:   source,
		fallback: fallback,
		failures: failures,
		index:    index,
		ui:       ui,
		cfg:      cfg,
		sleep:    retry.Sleep,
	}
}

// SetSleep replaces the wait between caption attempts
func (a *TranscriptAcquirer) SetSleep(sleep retry.SleepFunc) {
	a.sleep = sleep
}

// Acquire returns the transcript for videoURL. Errors wrap
// ErrTranscriptUnavailable when the video should be skipped.
func (a *TranscriptAcquirer) Acquire(ctx context.Context, videoURL, languageCode string) (string, error) {
	videoID, err := getVideoID(videoURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}

	if a.failures.IsFallbackOnly() {
		a.ui.Debugf("Fallback-only mode, skipping captions for %s", videoID)
		return a.viaAudio(ctx, videoURL, languageCode)
	}

	var segments []TranscriptSegment
	cfg := retry.Config{
		MaxAttempts: a.cfg.MaxAttempts,
		Backoff:     retry.Fixed(a.cfg.RetryDelay),
		Sleep:       a.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			a.ui.Debugf("Transcript attempt %d for %s failed: %v (retrying in %s)", attempt, videoID, err, wait)
		},
	}
	err = retry.Do(ctx, cfg, func(err error) bool {
		return ClassifyTranscriptError(err) == KindGeneric
	}, func(ctx context.Context, attempt int) error {
		a.ui.Debugf("Fetching captions for %s in %q (attempt %d)", videoID, languageCode, attempt)
		segs, err := a.source.FetchTranscript(ctx, videoID, languageCode)
		if err != nil {
			return err
		}
		segments = segs
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	if err == nil {
		text := JoinSegments(segments)
		if text != "" {
			a.failures.RecordSuccess()
			a.ui.Debugf("Transcript assembled with %d words", len(strings.Fields(text)))
			return text, nil
		}
		err = &TranscriptError{Kind: KindNoTranscriptFound, VideoID: videoID, Reason: "captions are empty"}
	}

	kind := ClassifyTranscriptError(err)
	switch {
	case kind == KindIPBlocked:
		a.ui.Errorf("Caption source blocked (%v), switching to audio fallback for the rest of the run", err)
		a.failures.RecordFailure(err)
		a.recordStatus(ctx, videoID, kind.Marker())
		return a.viaAudio(ctx, videoURL, languageCode)

	case kind.Terminal():
		reason := ""
		if kind == KindUnplayable {
			reason = unplayableReason(err.Error())
		}
		if reason != "" {
			a.ui.Errorf("No transcript for %s: %s (%s)", videoURL, kind, reason)
		} else {
			a.ui.Errorf("No transcript for %s: %s", videoURL, kind)
		}
		a.recordFailure(err)
		text, ferr := a.viaAudio(ctx, videoURL, languageCode)
		if ferr == nil {
			return text, nil
		}
		a.recordStatus(ctx, videoID, kind.Marker())
		return "", fmt.Errorf("%w: %s: %v", ErrTranscriptUnavailable, kind, ferr)

	default:
		a.ui.Errorf("All %d transcript attempts failed for %s: %v", a.cfg.MaxAttempts, videoURL, err)
		a.recordFailure(err)
		return a.viaAudio(ctx, videoURL, languageCode)
	}
}

func (a *TranscriptAcquirer) recordFailure(err error) {
	wasFallback := a.failures.IsFallbackOnly()
	a.failures.RecordFailure(err)
	if !wasFallback && a.failures.IsFallbackOnly() {
		a.ui.Warnf("Too many consecutive transcript failures, using audio fallback for the rest of the run")
	}
}

func (a *TranscriptAcquirer) recordStatus(ctx context.Context, videoID, marker string) {
	if a.index == nil || marker == "" {
		return
	}
	if err := a.index.Record(ctx, videoID, marker); err != nil {
		a.ui.Errorf("Failed to update video index: %v", err)
		return
	}
	a.ui.Infof("Added video %s to index as %s", videoID, marker)
}

func (a *TranscriptAcquirer) viaAudio(ctx context.Context, videoURL, languageCode string) (string, error) {
	if a.fallback == nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptUnavailable, ErrFallbackDisabled)
	}
	text, err := a.fallback.Transcribe(ctx, videoURL, languageCode)
	if err != nil {
		if !errors.Is(err, ErrFallbackDisabled) {
			a.ui.Errorf("Audio fallback failed for %s: %v", videoURL, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTranscriptUnavailable, err)
	}
	return text, nil
}
