package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// fakeRunner records commands and delegates to handle
type fakeRunner struct {
	calls  [][]string
	handle func(name string, args []string) ([]byte, error)
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.handle == nil {
		return nil, nil
	}
	return r.handle(name, args)
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestWhisperLanguage(t *testing.T) {
	tests := map[string]string{
		"en":  "English",
		"PL":  "Polish",
		" es": "Spanish",
		"zh":  "Chinese",
		"nl":  "nl",
		"":    "",
	}
	for code, want := range tests {
		if got := WhisperLanguage(code); got != want {
			t.Errorf("WhisperLanguage(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestLocalWhisper_TranscribeFile(t *testing.T) {
	runner := &fakeRunner{handle: func(name string, args []string) ([]byte, error) {
		out := filepath.Join(argAfter(args, "--output_dir"), "abc123def45.txt")
		return nil, os.WriteFile(out, []byte("\n Witam wszystkich \n"), 0644)
	}}
	w := NewLocalWhisper(runner, "", "", t.TempDir(), quietUI())

	got, err := w.TranscribeFile(context.Background(), "/tmp/audio/abc123def45.mp3", "pl")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if got != "Witam wszystkich" {
		t.Errorf("got %q", got)
	}

	call := runner.calls[0]
	if call[0] != "whisper" || call[1] != "/tmp/audio/abc123def45.mp3" {
		t.Errorf("unexpected command %v", call)
	}
	args := call[1:]
	for flag, want := range map[string]string{
		"--model":         DefaultWhisperModel,
		"--device":        DefaultWhisperDevice,
		"--language":      "Polish",
		"--fp16":          "False",
		"--output_format": "txt",
	} {
		if got := argAfter(args, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
}

func TestLocalWhisper_CUDAAndAutoLanguage(t *testing.T) {
	runner := &fakeRunner{handle: func(name string, args []string) ([]byte, error) {
		out := filepath.Join(argAfter(args, "--output_dir"), "a.txt")
		return nil, os.WriteFile(out, []byte("text"), 0644)
	}}
	w := NewLocalWhisper(runner, "large-v3", "cuda", t.TempDir(), quietUI())
	if _, err := w.TranscribeFile(context.Background(), "a.webm", "auto"); err != nil {
		t.Fatal(err)
	}
	args := runner.calls[0][1:]
	if argAfter(args, "--fp16") != "True" || argAfter(args, "--model") != "large-v3" {
		t.Errorf("args = %v", args)
	}
	if slices.Contains(args, "--language") {
		t.Error("auto language should let whisper detect it")
	}
}

func TestLocalWhisper_Errors(t *testing.T) {
	runner := &fakeRunner{handle: func(string, []string) ([]byte, error) {
		return []byte("RuntimeError: Model tiny.en not found; available models = [...]"), errors.New("exit status 1")
	}}
	w := NewLocalWhisper(runner, "tiny.en", "cpu", t.TempDir(), quietUI())
	if _, err := w.TranscribeFile(context.Background(), "a.mp3", "en"); !errors.Is(err, ErrWhisperModelNotFound) {
		t.Errorf("err = %v, want ErrWhisperModelNotFound", err)
	}

	runner.handle = func(string, []string) ([]byte, error) { return nil, nil }
	if _, err := w.TranscribeFile(context.Background(), "a.mp3", "en"); err == nil || !strings.Contains(err.Error(), "reading whisper output") {
		t.Errorf("missing output file should fail, got %v", err)
	}
}

type fakeTranscriptionClient struct {
	inputs []string
	langs  []string
}

func (c *fakeTranscriptionClient) CreateTranscription(_ context.Context, audio io.Reader, language string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	c.inputs = append(c.inputs, string(data))
	c.langs = append(c.langs, language)
	return "part" + string(rune('0'+len(c.inputs))), nil
}

func TestOpenAIWhisper_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.mp3")
	if err := os.WriteFile(path, []byte("tiny audio"), 0644); err != nil {
		t.Fatal(err)
	}
	client := &fakeTranscriptionClient{}
	runner := &fakeRunner{}
	w := NewOpenAIWhisper(client, NewAudio(runner, t.TempDir(), quietUI()), 0, quietUI())

	got, err := w.TranscribeFile(context.Background(), path, "EN")
	if err != nil {
		t.Fatal(err)
	}
	if got != "part1" || len(runner.calls) != 0 {
		t.Errorf("got %q with %d ffmpeg calls", got, len(runner.calls))
	}
	if client.langs[0] != "en" {
		t.Errorf("language = %q", client.langs[0])
	}
}

func TestOpenAIWhisper_SplitsLargeFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.mp3")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 25)), 0644); err != nil {
		t.Fatal(err)
	}
	tempDir := t.TempDir()
	runner := &fakeRunner{handle: func(name string, args []string) ([]byte, error) {
		switch name {
		case "ffprobe":
			return []byte("90.5\n"), nil
		case "ffmpeg":
			out := args[len(args)-1]
			return nil, os.WriteFile(out, []byte(argAfter(args, "-ss")), 0644)
		}
		return nil, errors.New("unexpected command")
	}}
	client := &fakeTranscriptionClient{}
	w := NewOpenAIWhisper(client, NewAudio(runner, tempDir, quietUI()), 10, quietUI())

	got, err := w.TranscribeFile(context.Background(), path, "pl")
	if err != nil {
		t.Fatal(err)
	}
	if got != "part1\npart2\npart3" {
		t.Errorf("got %q", got)
	}
	if want := []string{"0", "31", "62"}; !slices.Equal(client.inputs, want) {
		t.Errorf("piece offsets = %v, want %v", client.inputs, want)
	}
	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("pieces left behind: %d", len(entries))
	}
}

func TestOpenAIWhisper_NoClient(t *testing.T) {
	w := NewOpenAIWhisper(nil, nil, 0, quietUI())
	if _, err := w.TranscribeFile(context.Background(), "x.mp3", "en"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v", err)
	}
}
