package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPrompt_FirstChunk(t *testing.T) {
	pm := DefaultPromptManager()

	got, err := pm.BuildPrompt(PromptContext{
		FirstChunk:     true,
		Continuation:   NoContinuation{},
		Category:       "IT",
		OutputLanguage: "Polish",
	}, "chunk body")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}

	if !strings.HasPrefix(got, firstChunkLead) {
		t.Errorf("first chunk prompt does not start with the description request:\n%s", got)
	}
	if !strings.Contains(got, "All output must be generated entirely in Polish.") {
		t.Errorf("prompt does not pin the output language")
	}
	if !strings.Contains(got, "mermaid") {
		t.Errorf("prompt is missing the IT category additions")
	}
	if !strings.HasSuffix(got, "Text:\n\n\nchunk body") {
		t.Errorf("prompt does not end with the chunk: %q", got[len(got)-30:])
	}
	if strings.Contains(got, "continuation") {
		t.Errorf("first chunk prompt must not carry a continuation preamble")
	}
}

func TestBuildPrompt_Continuation(t *testing.T) {
	pm := DefaultPromptManager()

	got, err := pm.BuildPrompt(PromptContext{
		Continuation:   PriorText("earlier output"),
		Category:       "Crypto",
		OutputLanguage: "English",
	}, "second chunk")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}

	if !strings.HasPrefix(got, "The following text is a continuation... Previous response:\nearlier output\n\n") {
		t.Errorf("missing continuation preamble: %q", got[:80])
	}
	if strings.Contains(got, "DESCRIPTION:") {
		t.Errorf("later chunks must not request a description")
	}
	if !strings.Contains(got, "TradingView") {
		t.Errorf("prompt is missing the Crypto category additions")
	}
}

func TestBuildPrompt_ProviderHandleHasNoPreamble(t *testing.T) {
	pm := DefaultPromptManager()

	got, err := pm.BuildPrompt(PromptContext{
		Continuation:   ProviderHandle("id_1"),
		OutputLanguage: "English",
	}, "chunk")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if strings.Contains(got, "Previous response") {
		t.Errorf("provider handle continuation must not resend prior text")
	}
}

func TestCategoryAddition_Unknown(t *testing.T) {
	if got := CategoryAddition("Gardening"); got != "" {
		t.Errorf("CategoryAddition(Gardening) = %q, want empty", got)
	}
}

func TestNewPromptManager_CustomTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("Rewrite in {{.Language}}:"), 0644); err != nil {
		t.Fatal(err)
	}

	pm, err := NewPromptManager(path)
	if err != nil {
		t.Fatalf("NewPromptManager() error = %v", err)
	}
	got, err := pm.BuildPrompt(PromptContext{OutputLanguage: "Spanish"}, "hola")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if want := "Rewrite in Spanish:\n\nhola"; got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}
