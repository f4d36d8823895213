package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rtzll/yt2md/internal/retry"
)

// Audio fallback defaults
const (
	DefaultAudioDownloadDelay = 10 * time.Second
	DefaultMaxAudioSizeMB     = 100
	DefaultMinVideoDuration   = 30 * time.Second
	DefaultAudio403Retries    = 1
	DefaultAudio403RetryDelay = 5 * time.Minute

	minAudioFileSize = 1024
)

// audioExtensions are tried in order when locating the downloaded file
var audioExtensions = []string{"mp3", "m4a", "webm", "opus"}

var (
	ErrFallbackDisabled = errors.New("audio fallback disabled")
	ErrLiveStream       = errors.New("video is a live or upcoming stream")
	ErrVideoTooShort    = errors.New("video too short to transcribe")
	ErrAudioTooLarge    = errors.New("audio file too large")
	ErrAudioNotFound    = errors.New("downloaded audio file not found or empty")
)

// AudioSource downloads the audio track of a video
type AudioSource interface {
	Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error)
	// DownloadAudio writes the audio to basePath plus an audio extension
	DownloadAudio(ctx context.Context, videoURL, basePath string) error
}

// SpeechToText transcribes a local audio file
type SpeechToText interface {
	TranscribeFile(ctx context.Context, path, languageCode string) (string, error)
}

// AudioFallbackConfig holds the audio fallback policy knobs
type AudioFallbackConfig struct {
	Enabled          bool
	CacheDir         string
	DownloadDelay    time.Duration
	MaxAudioSizeMB   int
	MinVideoDuration time.Duration
	Retries403       int
	Retry403Delay    time.Duration
}

// AudioFallback downloads a video's audio and transcribes it locally.
// One instance is shared by the whole run so the download delay is global.
type AudioFallback struct {
	cfg    AudioFallbackConfig
	source AudioSource
	stt    SpeechToText
	ui     UIManager

	now   func() time.Time
	sleep retry.SleepFunc

	mu           sync.Mutex
	lastDownload time.Time
}

// NewAudioFallback creates the fallback. Zero config values get defaults,
// except Enabled.
func NewAudioFallback(cfg AudioFallbackConfig, source AudioSource, stt SpeechToText, ui UIManager) *AudioFallback {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "yt2md-audio")
	}
	if cfg.DownloadDelay < 0 {
		cfg.DownloadDelay = 0
	}
	if cfg.MaxAudioSizeMB <= 0 {
		cfg.MaxAudioSizeMB = DefaultMaxAudioSizeMB
	}
	if cfg.Retries403 < 0 {
		cfg.Retries403 = 0
	}
	if cfg.Retry403Delay <= 0 {
		cfg.Retry403Delay = DefaultAudio403RetryDelay
	}
	return &AudioFallback{
		cfg:    cfg,
		source: source,
		stt:    stt,
		ui:     ui,
		now:    time.Now,
		sleep:  retry.Sleep,
	}
}

// SetClock replaces the time source and sleep used for download pacing
func (f *AudioFallback) SetClock(now func() time.Time, sleep retry.SleepFunc) {
	f.now = now
	f.sleep = sleep
}

// Transcribe downloads the audio for videoURL, transcribes it and removes
// the downloaded file before returning.
func (f *AudioFallback) Transcribe(ctx context.Context, videoURL, languageCode string) (text string, err error) {
	if !f.cfg.Enabled {
		return "", ErrFallbackDisabled
	}
	videoID, err := getVideoID(videoURL)
	if err != nil {
		return "", fmt.Errorf("extracting video ID: %w", err)
	}

	f.ui.Infof("Activating audio fallback for %s", videoURL)
	if err := f.waitForDownloadSlot(ctx); err != nil {
		return "", err
	}

	if err := f.checkMetadata(ctx, videoURL); err != nil {
		return "", err
	}

	if err := EnsureDirs(f.cfg.CacheDir); err != nil {
		return "", fmt.Errorf("creating audio cache directory: %w", err)
	}
	basePath := filepath.Join(f.cfg.CacheDir, videoID)
	defer f.cleanup(basePath)

	if err := f.download(ctx, videoURL, basePath); err != nil {
		return "", err
	}

	audioPath, size, err := locateAudio(basePath)
	if err != nil {
		return "", err
	}

	sizeMB := float64(size) / (1024 * 1024)
	if sizeMB > float64(f.cfg.MaxAudioSizeMB) {
		return "", fmt.Errorf("%w: %.1fMB exceeds limit %dMB", ErrAudioTooLarge, sizeMB, f.cfg.MaxAudioSizeMB)
	}
	f.ui.Debugf("Audio file size: %.1fMB", sizeMB)

	text, err = f.stt.TranscribeFile(ctx, audioPath, languageCode)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	f.ui.Successf("Audio fallback succeeded: %d words extracted", len(strings.Fields(text)))
	return text, nil
}

// waitForDownloadSlot enforces the minimum delay since the previous download
func (f *AudioFallback) waitForDownloadSlot(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.lastDownload.IsZero() {
		elapsed := f.now().Sub(f.lastDownload)
		if wait := f.cfg.DownloadDelay - elapsed; wait > 0 {
			f.ui.Infof("Waiting %.1fs before next download", wait.Seconds())
			if err := f.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	f.lastDownload = f.now()
	return nil
}

func (f *AudioFallback) checkMetadata(ctx context.Context, videoURL string) error {
	meta, err := f.source.Metadata(ctx, videoURL)
	if err != nil {
		f.ui.Warnf("Could not check video metadata: %v. Proceeding with download attempt", err)
		return nil
	}
	if meta.IsLive || meta.LiveStatus == "is_live" || meta.LiveStatus == "is_upcoming" || meta.LiveStatus == "post_live" {
		status := meta.LiveStatus
		if meta.IsLive || status == "" {
			status = "live stream"
		}
		return fmt.Errorf("%w: %s", ErrLiveStream, status)
	}
	duration := time.Duration(meta.Duration * float64(time.Second))
	if meta.Duration > 0 && duration < f.cfg.MinVideoDuration {
		return fmt.Errorf("%w: %s < %s", ErrVideoTooShort, duration, f.cfg.MinVideoDuration)
	}
	f.ui.Debugf("Video is valid (status: %s, duration: %.0fs)", firstNonEmpty(meta.LiveStatus, "normal"), meta.Duration)
	return nil
}

func (f *AudioFallback) download(ctx context.Context, videoURL, basePath string) error {
	attempts := f.cfg.Retries403 + 1
	cfg := retry.Config{
		MaxAttempts: attempts,
		Backoff:     retry.Fixed(f.cfg.Retry403Delay),
		Sleep:       f.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			f.ui.Warnf("HTTP 403 from download source, waiting %s before retry %d/%d", wait, attempt+1, attempts)
		},
	}
	err := retry.Do(ctx, cfg, isForbidden, func(ctx context.Context, attempt int) error {
		f.ui.Infof("Downloading audio (attempt %d/%d): %s", attempt, attempts, videoURL)
		return f.source.DownloadAudio(ctx, videoURL, basePath)
	})
	if err != nil {
		return fmt.Errorf("downloading audio: %w", err)
	}
	return nil
}

// cleanup removes every file the download may have produced
func (f *AudioFallback) cleanup(basePath string) {
	for _, ext := range audioExtensions {
		for _, p := range []string{basePath + "." + ext, basePath + "." + ext + ".part"} {
			err := os.Remove(p)
			if err == nil {
				f.ui.Debugf("Cleaned up audio file: %s", p)
			} else if !os.IsNotExist(err) {
				f.ui.Warnf("Failed to clean up audio file %s: %v", p, err)
			}
		}
	}
}

// locateAudio finds the first downloaded file that is large enough to be real audio
func locateAudio(basePath string) (string, int64, error) {
	for _, ext := range audioExtensions {
		p := basePath + "." + ext
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() && info.Size() >= minAudioFileSize {
			return p, info.Size(), nil
		}
	}
	return "", 0, fmt.Errorf("%w: %s.mp3", ErrAudioNotFound, basePath)
}

// isForbidden reports whether a download error is an HTTP 403
func isForbidden(err error) bool {
	if HTTPStatus(err) == 403 {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "http error 403") ||
		strings.Contains(lower, "403 forbidden") ||
		(strings.Contains(lower, "403") && strings.Contains(lower, "forbidden"))
}
