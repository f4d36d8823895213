package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// VideoMetadata contains YouTube video information
type VideoMetadata struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Description       string                     `json:"description"`
	Channel           string                     `json:"channel"`
	Uploader          string                     `json:"uploader"`
	UploadDate        string                     `json:"upload_date"`
	Duration          float64                    `json:"duration"`
	IsLive            bool                       `json:"is_live"`
	LiveStatus        string                     `json:"live_status"`
	Categories        []string                   `json:"categories"`
	Tags              []string                   `json:"tags"`
	Chapters          []VideoChapter             `json:"chapters"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// VideoChapter represents a video chapter marker
type VideoChapter struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title"`
}

// HasCaptions reports whether any manual or automatic captions exist
func (m *VideoMetadata) HasCaptions() bool {
	return len(m.Subtitles) > 0 || len(m.AutomaticCaptions) > 0
}

// HasCaptionLanguage reports whether captions exist for lang, including
// regional variants such as en-US
func (m *VideoMetadata) HasCaptionLanguage(lang string) bool {
	lang = strings.ToLower(lang)
	for _, tracks := range []map[string]json.RawMessage{m.Subtitles, m.AutomaticCaptions} {
		for key := range tracks {
			key = strings.ToLower(key)
			if key == lang || strings.HasPrefix(key, lang+"-") {
				return true
			}
		}
	}
	return false
}

// Published parses the yt-dlp upload date (YYYYMMDD)
func (m *VideoMetadata) Published() time.Time {
	t, err := time.Parse("20060102", m.UploadDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Author returns the channel name, falling back to the uploader
func (m *VideoMetadata) Author() string {
	return firstNonEmpty(m.Channel, m.Uploader)
}

// YouTube wraps yt-dlp for captions, metadata and audio downloads
type YouTube struct {
	cacheDir           string
	cookiesFromBrowser string
	ui                 UIManager
}

// NewYouTube creates a yt-dlp backed caption source and audio downloader.
// cookiesFromBrowser names a browser to borrow cookies from, or is empty.
func NewYouTube(cacheDir, cookiesFromBrowser string, ui UIManager) *YouTube {
	return &YouTube{
		cacheDir:           cacheDir,
		cookiesFromBrowser: cookiesFromBrowser,
		ui:                 ui,
	}
}

// Metadata fetches video details without downloading anything
func (yt *YouTube) Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	yt.ui.Debugf("Extracting video metadata for %s", videoURL)

	dl := ytdlp.New().
		DumpSingleJSON().
		NoPlaylist().
		SkipDownload()
	if yt.cookiesFromBrowser != "" {
		dl = dl.CookiesFromBrowser(yt.cookiesFromBrowser)
	}

	result, err := dl.Run(ctx, videoURL)
	if err != nil {
		id, _ := getVideoID(videoURL)
		return nil, fmt.Errorf("extracting video metadata: %w", classifyYtdlpError(firstNonEmpty(id, videoURL), err, stderrOf(result)))
	}

	var metadata VideoMetadata
	if err := json.Unmarshal([]byte(result.Stdout), &metadata); err != nil {
		return nil, fmt.Errorf("parsing video metadata: %w", err)
	}

	yt.ui.Debugf("Title: %s | Channel: %s | Duration: %.0fs | Live status: %s",
		metadata.Title, metadata.Author(), metadata.Duration, firstNonEmpty(metadata.LiveStatus, "none"))
	return &metadata, nil
}

// DownloadAudio implements AudioSource. The audio lands at basePath.mp3.
func (yt *YouTube) DownloadAudio(ctx context.Context, videoURL, basePath string) error {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("5").
		NoPlaylist().
		Output(basePath + ".%(ext)s")
	if yt.cookiesFromBrowser != "" {
		yt.ui.Debugf("Using cookies from %s", yt.cookiesFromBrowser)
		dl = dl.CookiesFromBrowser(yt.cookiesFromBrowser)
	}

	result, err := dl.Run(ctx, videoURL)
	if err != nil {
		stderr := stderrOf(result)
		return fmt.Errorf("yt-dlp failed: %w\nOutput: %s", err, stderr)
	}
	return nil
}

// FetchTranscript implements TranscriptSource using yt-dlp subtitles
func (yt *YouTube) FetchTranscript(ctx context.Context, videoID, languageCode string) ([]TranscriptSegment, error) {
	videoURL := "https://www.youtube.com/watch?v=" + videoID
	if err := EnsureDirs(yt.cacheDir); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	dir, err := os.MkdirTemp(yt.cacheDir, "subs-")
	if err != nil {
		return nil, fmt.Errorf("creating subtitle directory: %w", err)
	}
	defer os.RemoveAll(dir)

	dl := ytdlp.New().
		WriteSubs().
		WriteAutoSubs().
		SubLangs(languageCode).
		ConvertSubs("srt").
		SkipDownload().
		NoPlaylist().
		Output(filepath.Join(dir, "%(id)s"))
	if yt.cookiesFromBrowser != "" {
		dl = dl.CookiesFromBrowser(yt.cookiesFromBrowser)
	}

	result, err := dl.Run(ctx, videoURL)
	if err != nil {
		return nil, classifyYtdlpError(videoID, err, stderrOf(result))
	}

	files, err := filepath.Glob(filepath.Join(dir, videoID+"*.srt"))
	if err != nil || len(files) == 0 {
		return nil, yt.missingCaptions(ctx, videoURL, videoID, languageCode)
	}
	// Prefer manual subtitles, which yt-dlp names <id>.<lang>.srt
	path := files[0]
	for _, f := range files {
		if strings.HasSuffix(f, "."+languageCode+".srt") {
			path = f
			break
		}
	}
	yt.ui.Debugf("Found %d subtitle file(s), using %s", len(files), filepath.Base(path))

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subtitle file: %w", err)
	}
	segments := dedupeSegments(parseSRT(string(content)))
	if len(segments) == 0 {
		return nil, &TranscriptError{Kind: KindNoTranscriptFound, VideoID: videoID, Reason: "subtitle file is empty"}
	}
	return segments, nil
}

// missingCaptions explains why yt-dlp produced no subtitle file
func (yt *YouTube) missingCaptions(ctx context.Context, videoURL, videoID, languageCode string) error {
	meta, err := yt.Metadata(ctx, videoURL)
	if err != nil {
		var te *TranscriptError
		if errors.As(err, &te) {
			return te
		}
		return &TranscriptError{Kind: KindNoTranscriptFound, VideoID: videoID, Err: err}
	}
	switch {
	case !meta.HasCaptions():
		return &TranscriptError{Kind: KindTranscriptsDisabled, VideoID: videoID}
	case !meta.HasCaptionLanguage(languageCode):
		return &TranscriptError{Kind: KindLanguageUnavailable, VideoID: videoID, Reason: fmt.Sprintf("no captions in %q", languageCode)}
	default:
		return &TranscriptError{Kind: KindNoTranscriptFound, VideoID: videoID}
	}
}

func stderrOf(result *ytdlp.Result) string {
	if result == nil {
		return ""
	}
	return result.Stderr
}

// classifyYtdlpError turns a yt-dlp failure into a TranscriptError using the
// messages yt-dlp prints for each condition
func classifyYtdlpError(videoID string, err error, stderr string) error {
	// yt-dlp prefixes lines with the id, which must not match any token
	msg := stderr + "\n" + err.Error()
	if videoID != "" {
		msg = strings.ReplaceAll(msg, videoID, "")
	}
	lower := strings.ToLower(msg)
	te := &TranscriptError{VideoID: videoID, Err: err}

	switch {
	case strings.Contains(lower, "http error 429"), strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "not a bot"):
		te.Kind = KindIPBlocked
	case strings.Contains(lower, "this live event will begin"), strings.Contains(lower, "premieres in"),
		strings.Contains(lower, "is unplayable"):
		te.Kind = KindUnplayable
		te.Reason = lastErrorLine(stderr)
	case strings.Contains(lower, "video unavailable"), strings.Contains(lower, "private video"),
		strings.Contains(lower, "has been removed"), strings.Contains(lower, "account associated with this video has been terminated"):
		te.Kind = KindVideoUnavailable
	case strings.Contains(lower, "subtitles are disabled"):
		te.Kind = KindTranscriptsDisabled
	default:
		te.Kind = KindGeneric
		te.Reason = lastErrorLine(stderr)
	}
	return te
}

// lastErrorLine returns the last "ERROR:" line yt-dlp printed
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if _, msg, ok := strings.Cut(lines[i], "ERROR:"); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}

var srtTiming = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d+):(\d{2}):(\d{2})[,.](\d{3})`)

// parseSRT extracts timed text cues from SRT content
func parseSRT(content string) []TranscriptSegment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var segments []TranscriptSegment

	for block := range strings.SplitSeq(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		m := srtTiming.FindStringSubmatch(lines[1])
		if m == nil {
			continue
		}
		start := srtTimestamp(m[1:5])
		end := srtTimestamp(m[5:9])

		var text []string
		for _, l := range lines[2:] {
			if s := strings.TrimSpace(l); s != "" {
				text = append(text, s)
			}
		}
		if len(text) == 0 {
			continue
		}
		segments = append(segments, TranscriptSegment{
			Text:     strings.Join(text, " "),
			Start:    start,
			Duration: max(end-start, 0),
		})
	}
	return segments
}

func srtTimestamp(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

// dedupeSegments collapses the repetition auto-generated captions produce as
// lines roll: a cue equal to the previous one is dropped, and a cue that
// extends the previous one keeps only its new words
func dedupeSegments(segments []TranscriptSegment) []TranscriptSegment {
	result := make([]TranscriptSegment, 0, len(segments))
	prev := ""
	for _, seg := range segments {
		text := seg.Text
		switch {
		case prev != "" && text == prev:
			continue
		case prev != "" && len(text) > len(prev) && strings.HasPrefix(text, prev) && text[len(prev)] == ' ':
			seg.Text = strings.TrimSpace(text[len(prev):])
		}
		result = append(result, seg)
		prev = text
	}
	return result
}
