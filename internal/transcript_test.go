package internal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testVideoURL = "https://www.youtube.com/watch?v=abc123def45"

type fakeTranscriptSource struct {
	calls    int
	errs     []error
	segments []TranscriptSegment
}

func (f *fakeTranscriptSource) FetchTranscript(_ context.Context, _, _ string) ([]TranscriptSegment, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		if len(f.errs) > 1 {
			f.errs = f.errs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	return f.segments, nil
}

type fakeAudioTranscriber struct {
	calls int
	text  string
	err   error
}

func (f *fakeAudioTranscriber) Transcribe(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeStatusRecorder struct {
	records map[string]string
}

func (f *fakeStatusRecorder) Record(_ context.Context, videoID, value string) error {
	if f.records == nil {
		f.records = make(map[string]string)
	}
	f.records[videoID] = value
	return nil
}

func newTestAcquirer(src TranscriptSource, fb AudioTranscriber, fs *FailureState, idx StatusRecorder) (*TranscriptAcquirer, *[]time.Duration) {
	a := NewTranscriptAcquirer(src, fb, fs, idx, quietUI(), AcquirerConfig{})
	var waits []time.Duration
	a.SetSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	return a, &waits
}

func segs(texts ...string) []TranscriptSegment {
	out := make([]TranscriptSegment, len(texts))
	for i, t := range texts {
		out[i] = TranscriptSegment{Text: t, Start: time.Duration(i) * time.Second, Duration: time.Second}
	}
	return out
}

func TestAcquire_Success(t *testing.T) {
	src := &fakeTranscriptSource{segments: segs("hello", " world ", "again")}
	fs := NewFailureState(3)
	fs.RecordFailure(errors.New("earlier failure"))
	a, _ := newTestAcquirer(src, &fakeAudioTranscriber{}, fs, nil)

	got, err := a.Acquire(context.Background(), testVideoURL, "en")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != "hello world again" {
		t.Errorf("got %q", got)
	}

	// the earlier failure was reset, so two more don't trip a threshold of 3
	fs.RecordFailure(errors.New("x"))
	fs.RecordFailure(errors.New("x"))
	if fs.IsFallbackOnly() {
		t.Error("success should reset the failure counter")
	}
}

func TestAcquire_GenericErrorsRetryThenFallback(t *testing.T) {
	src := &fakeTranscriptSource{errs: []error{errors.New("connection reset by peer")}}
	fb := &fakeAudioTranscriber{text: "from audio"}
	a, waits := newTestAcquirer(src, fb, NewFailureState(5), nil)

	got, err := a.Acquire(context.Background(), testVideoURL, "en")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != "from audio" {
		t.Errorf("got %q, want fallback text", got)
	}
	if src.calls != DefaultTranscriptAttempts {
		t.Errorf("source called %d times, want %d", src.calls, DefaultTranscriptAttempts)
	}
	if len(*waits) != DefaultTranscriptAttempts-1 {
		t.Fatalf("waited %d times, want %d", len(*waits), DefaultTranscriptAttempts-1)
	}
	for _, w := range *waits {
		if w != DefaultTranscriptRetryDelay {
			t.Errorf("wait = %s, want fixed %s", w, DefaultTranscriptRetryDelay)
		}
	}
	if fb.calls != 1 {
		t.Errorf("fallback called %d times", fb.calls)
	}
}

func TestAcquire_TerminalKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		marker string
	}{
		{"unavailable", &TranscriptError{Kind: KindVideoUnavailable}, "VIDEO_UNAVAILABLE"},
		{"disabled", &TranscriptError{Kind: KindTranscriptsDisabled}, "TRANSCRIPTS_DISABLED"},
		{"not found", &TranscriptError{Kind: KindNoTranscriptFound}, "NO_TRANSCRIPT_FOUND"},
		{"language", &TranscriptError{Kind: KindLanguageUnavailable}, "LANGUAGE_UNAVAILABLE"},
		{"unplayable message", errors.New("The video is unplayable for the following reason:\nThis video is private"), "VIDEO_UNPLAYABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" fallback fails", func(t *testing.T) {
			src := &fakeTranscriptSource{errs: []error{tt.err}}
			fb := &fakeAudioTranscriber{err: ErrVideoTooShort}
			idx := &fakeStatusRecorder{}
			a, waits := newTestAcquirer(src, fb, NewFailureState(5), idx)

			_, err := a.Acquire(context.Background(), testVideoURL, "en")
			if !errors.Is(err, ErrTranscriptUnavailable) {
				t.Fatalf("err = %v, want ErrTranscriptUnavailable", err)
			}
			if src.calls != 1 || len(*waits) != 0 {
				t.Errorf("terminal error retried: calls=%d waits=%d", src.calls, len(*waits))
			}
			if fb.calls != 1 {
				t.Errorf("fallback calls = %d", fb.calls)
			}
			if got := idx.records["abc123def45"]; got != tt.marker {
				t.Errorf("marker = %q, want %q", got, tt.marker)
			}
		})

		t.Run(tt.name+" fallback succeeds", func(t *testing.T) {
			src := &fakeTranscriptSource{errs: []error{tt.err}}
			idx := &fakeStatusRecorder{}
			a, _ := newTestAcquirer(src, &fakeAudioTranscriber{text: "audio text"}, NewFailureState(5), idx)

			got, err := a.Acquire(context.Background(), testVideoURL, "en")
			if err != nil || got != "audio text" {
				t.Fatalf("got %q, %v", got, err)
			}
			if len(idx.records) != 0 {
				t.Errorf("no marker expected when fallback succeeds, got %v", idx.records)
			}
		})
	}
}

func TestAcquire_IPBlockLatchesFallbackOnly(t *testing.T) {
	src := &fakeTranscriptSource{errs: []error{errors.New("ERROR: HTTP Error 429: Too Many Requests"), nil}, segments: segs("captions")}
	fb := &fakeAudioTranscriber{text: "audio"}
	idx := &fakeStatusRecorder{}
	fs := NewFailureState(5)
	a, waits := newTestAcquirer(src, fb, fs, idx)

	got, err := a.Acquire(context.Background(), testVideoURL, "en")
	if err != nil || got != "audio" {
		t.Fatalf("got %q, %v", got, err)
	}
	if src.calls != 1 || len(*waits) != 0 {
		t.Errorf("IP block must not be retried: calls=%d waits=%d", src.calls, len(*waits))
	}
	if !fs.IsFallbackOnly() {
		t.Fatal("IP block should latch fallback-only mode")
	}
	if idx.records["abc123def45"] != "IP_BLOCKED" {
		t.Errorf("marker = %q", idx.records["abc123def45"])
	}

	// the source would succeed now but must not be asked
	if _, err := a.Acquire(context.Background(), "https://youtu.be/zzzzzzzzzzz", "en"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("source called in fallback-only mode")
	}
	if fb.calls != 2 {
		t.Errorf("fallback calls = %d, want 2", fb.calls)
	}
}

func TestAcquire_BreakerTripsAfterConsecutiveFailures(t *testing.T) {
	src := &fakeTranscriptSource{errs: []error{
		&TranscriptError{Kind: KindTranscriptsDisabled},
		&TranscriptError{Kind: KindNoTranscriptFound},
		nil,
	}, segments: segs("would work")}
	fb := &fakeAudioTranscriber{err: errors.New("whisper crashed")}
	fs := NewFailureState(2)
	a, _ := newTestAcquirer(src, fb, fs, nil)

	for range 2 {
		if _, err := a.Acquire(context.Background(), testVideoURL, "en"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if !fs.IsFallbackOnly() {
		t.Fatal("breaker should be tripped")
	}
	if _, err := a.Acquire(context.Background(), testVideoURL, "en"); err == nil {
		t.Fatal("fallback-only run should use the failing fallback")
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
}

func TestAcquire_NoFallbackConfigured(t *testing.T) {
	src := &fakeTranscriptSource{errs: []error{&TranscriptError{Kind: KindVideoUnavailable}}}
	a, _ := newTestAcquirer(src, nil, nil, nil)

	_, err := a.Acquire(context.Background(), testVideoURL, "en")
	if !errors.Is(err, ErrTranscriptUnavailable) || !errors.Is(err, ErrFallbackDisabled) {
		t.Errorf("err = %v", err)
	}
}

func TestAcquire_BadURL(t *testing.T) {
	a, _ := newTestAcquirer(&fakeTranscriptSource{}, nil, nil, nil)
	if _, err := a.Acquire(context.Background(), "https://example.com/video", "en"); !errors.Is(err, ErrTranscriptUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestClassifyTranscriptError(t *testing.T) {
	tests := []struct {
		err  error
		want TranscriptErrorKind
	}{
		{errors.New("timeout"), KindGeneric},
		{&TranscriptError{Kind: KindTranscriptsDisabled}, KindTranscriptsDisabled},
		{&TranscriptError{Kind: KindGeneric, Err: errors.New("rate limit hit")}, KindGeneric},
		{&TranscriptError{Kind: KindGeneric, VideoID: "ab429cdEFGH"}, KindGeneric},
		{errors.New("The video is unplayable for the following reason:\nMembers only"), KindUnplayable},
		{errors.New("Could not retrieve a transcript: RequestBlocked"), KindIPBlocked},
	}
	for _, tt := range tests {
		if got := ClassifyTranscriptError(tt.err); got != tt.want {
			t.Errorf("ClassifyTranscriptError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestFailureState_GenericErrorDoesNotLatch(t *testing.T) {
	err := classifyYtdlpError("ab429cdEFGH", errors.New("exit status 1"),
		"ERROR: [youtube] ab429cdEFGH: Unable to extract player response; connection reset")
	if kind := ClassifyTranscriptError(err); kind != KindGeneric {
		t.Fatalf("kind = %s, want generic", kind)
	}
	s := NewFailureState(3)
	s.RecordFailure(err)
	if s.IsFallbackOnly() {
		t.Error("one generic failure latched fallback-only mode")
	}
}

func TestUnplayableReason(t *testing.T) {
	msg := "Could not retrieve: The video is unplayable for the following reason:\n\n  Sign in to confirm your age\nmore"
	if got := unplayableReason(msg); got != "Sign in to confirm your age" {
		t.Errorf("got %q", got)
	}
	if got := unplayableReason("other"); got != "" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains((&TranscriptError{Kind: KindUnplayable, VideoID: "v", Reason: "r"}).Error(), "video unplayable: r") {
		t.Error("error text should include kind and reason")
	}
}
