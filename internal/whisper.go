package internal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Whisper defaults
const (
	DefaultWhisperModel  = "base"
	DefaultWhisperDevice = "cpu"
)

// WhisperLimit is the maximum file size accepted by OpenAI's transcription API (25 MiB)
const WhisperLimit int64 = 25 << 20

// ErrWhisperModelNotFound is returned when the local model is not installed
var ErrWhisperModelNotFound = errors.New("whisper model not found")

// whisperLanguages maps two-letter codes to the names whisper expects
var whisperLanguages = map[string]string{
	"en": "English",
	"pl": "Polish",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
}

// WhisperLanguage returns the whisper language name for a code, or the
// lowercased code itself when it is not mapped
func WhisperLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if name, ok := whisperLanguages[code]; ok {
		return name
	}
	return code
}

// LocalWhisper runs the whisper CLI on the local machine
type LocalWhisper struct {
	cmdRunner CommandRunner
	model     string
	device    string
	tempDir   string
	ui        UIManager
}

// NewLocalWhisper creates a local speech-to-text engine
func NewLocalWhisper(cmdRunner CommandRunner, model, device, tempDir string, ui UIManager) *LocalWhisper {
	return &LocalWhisper{
		cmdRunner: cmdRunner,
		model:     firstNonEmpty(model, DefaultWhisperModel),
		device:    firstNonEmpty(device, DefaultWhisperDevice),
		tempDir:   tempDir,
		ui:        ui,
	}
}

// TranscribeFile implements SpeechToText
func (w *LocalWhisper) TranscribeFile(ctx context.Context, path, languageCode string) (string, error) {
	if err := EnsureDirs(w.tempDir); err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	outDir, err := os.MkdirTemp(w.tempDir, "whisper-")
	if err != nil {
		return "", fmt.Errorf("creating whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	language := WhisperLanguage(languageCode)
	args := []string{
		path,
		"--model", w.model,
		"--device", w.device,
		"--output_format", "txt",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if language != "" && language != "auto" {
		args = append(args, "--language", language)
	}
	if w.device == "cuda" {
		args = append(args, "--fp16", "True")
	} else {
		args = append(args, "--fp16", "False")
	}

	w.ui.Infof("Transcribing audio with whisper (model: %s, device: %s, language: %s)", w.model, w.device, firstNonEmpty(language, "auto"))
	output, err := w.cmdRunner.Run(ctx, "whisper", args...)
	if err != nil {
		lower := strings.ToLower(string(output))
		if strings.Contains(lower, "no such file") || strings.Contains(lower, "not found") {
			return "", fmt.Errorf("%w: %s: %v", ErrWhisperModelNotFound, w.model, err)
		}
		return "", fmt.Errorf("whisper failed: %w\nOutput: %s", err, string(output))
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".txt"
	text, err := os.ReadFile(filepath.Join(outDir, name))
	if err != nil {
		return "", fmt.Errorf("reading whisper output: %w", err)
	}
	w.ui.Debugf("Transcription completed: %d characters", len(text))
	return strings.TrimSpace(string(text)), nil
}

// OpenAIWhisper transcribes through OpenAI's hosted whisper model, splitting
// files above the upload limit with ffmpeg
type OpenAIWhisper struct {
	client       TranscriptionClient
	audio        *Audio
	whisperLimit int64
	ui           UIManager
}

// NewOpenAIWhisper creates a hosted speech-to-text engine
func NewOpenAIWhisper(client TranscriptionClient, audio *Audio, whisperLimit int64, ui UIManager) *OpenAIWhisper {
	if whisperLimit <= 0 {
		whisperLimit = WhisperLimit
	}
	return &OpenAIWhisper{client: client, audio: audio, whisperLimit: whisperLimit, ui: ui}
}

// TranscribeFile implements SpeechToText
func (w *OpenAIWhisper) TranscribeFile(ctx context.Context, path, languageCode string) (string, error) {
	if w.client == nil {
		return "", fmt.Errorf("%w: OpenAI API key is required for hosted transcription", ErrMissingCredentials)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("getting audio file info: %w", err)
	}

	numChunks := int(math.Ceil(float64(info.Size()) / float64(w.whisperLimit)))
	chunks := []string{path}
	if numChunks > 1 {
		chunks, err = w.audio.Split(ctx, path, numChunks)
		if err != nil {
			return "", fmt.Errorf("splitting audio: %w", err)
		}
		defer cleanupFiles(w.ui, chunks...)
	}

	// Sequential on purpose: concurrent uploads returned garbled chunks.
	var sb strings.Builder
	for i, chunkPath := range chunks {
		file, err := os.Open(chunkPath)
		if err != nil {
			return "", fmt.Errorf("opening chunk %s: %w", chunkPath, err)
		}

		text, err := w.client.CreateTranscription(ctx, file, strings.ToLower(languageCode))
		if closeErr := file.Close(); closeErr != nil {
			w.ui.Warnf("failed to close file %s: %v", chunkPath, closeErr)
		}
		if err != nil {
			return "", fmt.Errorf("transcribing chunk %d: %w", i+1, err)
		}

		sb.WriteString(text)
		if i < len(chunks)-1 {
			sb.WriteString("\n")
		}
		w.ui.Debugf("Transcribed chunk %d/%d", i+1, len(chunks))
	}
	return sb.String(), nil
}
