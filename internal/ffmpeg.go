package internal

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Audio splits audio files with ffmpeg so each piece fits an upload limit
type Audio struct {
	cmdRunner CommandRunner
	tempDir   string
	ui        UIManager
}

// NewAudio creates a new audio splitter
func NewAudio(cmdRunner CommandRunner, tempDir string, ui UIManager) *Audio {
	return &Audio{
		cmdRunner: cmdRunner,
		tempDir:   tempDir,
		ui:        ui,
	}
}

// Duration probes the length of an audio file
func (a *Audio) Duration(ctx context.Context, audioFile string) (time.Duration, error) {
	output, err := a.cmdRunner.Run(ctx, "ffprobe",
		"-i", audioFile,
		"-show_entries", "format=duration",
		"-v", "quiet",
		"-of", "csv=p=0")
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, string(output))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Split cuts audioFile into numChunks pieces of equal length. On error no
// piece is left on disk.
func (a *Audio) Split(ctx context.Context, audioFile string, numChunks int) ([]string, error) {
	if numChunks < 1 {
		return nil, fmt.Errorf("invalid chunk count: %d", numChunks)
	}
	if err := EnsureDirs(a.tempDir); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	duration, err := a.Duration(ctx, audioFile)
	if err != nil {
		return nil, fmt.Errorf("getting audio duration: %w", err)
	}

	pieceSeconds := int(math.Ceil(duration.Seconds() / float64(numChunks)))
	ext := filepath.Ext(audioFile)
	base := strings.TrimSuffix(filepath.Base(audioFile), ext)
	pieces := make([]string, 0, numChunks)

	for i := range numChunks {
		output := filepath.Join(a.tempDir, fmt.Sprintf("%s_part_%d%s", base, i, ext))
		if err := a.cut(ctx, audioFile, i*pieceSeconds, pieceSeconds, output); err != nil {
			cleanupFiles(a.ui, pieces...)
			return nil, fmt.Errorf("creating piece %d: %w", i, err)
		}
		pieces = append(pieces, output)
	}
	a.ui.Debugf("Split %s into %d pieces of %ds", filepath.Base(audioFile), numChunks, pieceSeconds)
	return pieces, nil
}

func (a *Audio) cut(ctx context.Context, audioFile string, start, length int, output string) error {
	cmdOutput, err := a.cmdRunner.Run(ctx, "ffmpeg",
		"-v", "quiet",
		"-i", audioFile,
		"-ss", strconv.Itoa(start),
		"-t", strconv.Itoa(length),
		"-c:a", "copy",
		"-y", output)
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(cmdOutput))
	}
	return nil
}
