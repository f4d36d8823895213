package internal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseArg normalizes a YouTube video ID or URL into (url, videoID)
func ParseArg(arg string) (string, string, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		videoID, err := getVideoID(arg)
		if err != nil {
			return "", "", err
		}
		return arg, videoID, nil
	}
	if IsValidYouTubeID(arg) {
		return VideoURL(arg), arg, nil
	}
	return "", "", fmt.Errorf("not a YouTube video URL or ID: %q", arg)
}

// VideoURL builds the canonical watch URL for a video ID
func VideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// VideoIDExtractor extracts video IDs from YouTube URLs
type VideoIDExtractor func(string) (string, error)

// getVideoID handles watch, youtu.be, shorts, embed and live URLs
var getVideoID VideoIDExtractor = func(youtubeURL string) (string, error) {
	youtubeURL = strings.TrimSpace(youtubeURL)
	u, err := url.Parse(youtubeURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}

	switch strings.TrimPrefix(u.Host, "m.") {
	case "www.youtube.com", "youtube.com", "youtu.be", "music.youtube.com":
	default:
		return "", fmt.Errorf("not a YouTube URL: %s", youtubeURL)
	}

	if v := u.Query().Get("v"); v != "" {
		return v, nil
	}

	if strings.Contains(u.Path, "/playlist") {
		return "", fmt.Errorf("this is a playlist URL, not a video URL: %s", youtubeURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last, nil
	}

	return "", fmt.Errorf("could not extract video ID from URL: %s", youtubeURL)
}

// IsValidYouTubeID checks if a string looks like a valid YouTube video ID
func IsValidYouTubeID(id string) bool {
	return youtubeIDPattern.MatchString(id)
}

// getTerminalWidth gets terminal width with fallback
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}

	if width > 10 {
		return width - 4
	}

	return width
}

// RenderMarkdown renders markdown content with glamour
func RenderMarkdown(content string) (string, error) {
	width := getTerminalWidth()
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(termenv.EnvColorProfile()),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}

	renderedContent, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	return renderedContent, nil
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// EnsureDirs creates directories if needed
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" || FileExists(dir) {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// cleanupFiles removes temporary files, warning about the ones it cannot remove
func cleanupFiles(ui UIManager, files ...string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			ui.Warnf("failed to remove file %s: %v", file, err)
		}
	}
}

// CleanupTempDir removes the run's temporary directory and everything in it
func CleanupTempDir(tempDir string) error {
	if tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(tempDir); err != nil {
		return fmt.Errorf("removing temp directory: %w", err)
	}
	return nil
}

// SaveTranscript writes a raw transcript to <dir>/<videoID>.txt
func SaveTranscript(videoID, transcript, dir string) (string, error) {
	if err := EnsureDirs(dir); err != nil {
		return "", fmt.Errorf("creating transcripts directory: %w", err)
	}
	path := filepath.Join(dir, videoID+".txt")
	if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
		return "", fmt.Errorf("saving transcript: %w", err)
	}
	return path, nil
}

// LoadTranscript reads a transcript saved by SaveTranscript, if present
func LoadTranscript(videoID, dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, videoID+".txt"))
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(data))
	return text, text != ""
}
