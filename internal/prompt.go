package internal

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// firstChunkLead asks for the one-line description parsed by ProcessResponse
const firstChunkLead = "First, provide a one-sentence description of the content (start with \"DESCRIPTION:\").\nThen, "

// categoryAdditions are extra bullet points appended to the base template per category
var categoryAdditions = map[string]string{
	"IT": "- Adding code examples in C# when it's possible\n" +
		"- Write diagram in mermaid syntax when it can help understand discussed subject",
	"Crypto": "- Adding TradingView chart links when price movements or technical analysis is discussed\n" +
		"- Highlighting key price levels and market indicators mentioned\n" +
		"- Including links to relevant blockchain explorers when specific transactions or contracts are discussed",
}

// CategoryAddition returns the extra instructions for a category, or "" if it has none
func CategoryAddition(category string) string {
	return categoryAdditions[category]
}

// PromptData for template injection
type PromptData struct {
	CategoryAdditions string
	Language          string
}

// PromptContext is the per-chunk state a prompt is built from
type PromptContext struct {
	FirstChunk     bool
	Continuation   Continuation
	Category       string
	OutputLanguage string
}

// PromptManager builds chunk prompts from the base template
type PromptManager struct {
	base *template.Template
}

// NewPromptManager creates a prompt manager. An empty promptSetting uses the
// embedded template; otherwise it is a template file path or the template itself.
func NewPromptManager(promptSetting string) (*PromptManager, error) {
	content, err := defaultFS.ReadFile("prompt.txt")
	if err != nil {
		return nil, fmt.Errorf("reading embedded prompt template: %w", err)
	}

	if promptSetting != "" {
		if IsLikelyFilePath(promptSetting) && FileExists(promptSetting) {
			content, err = os.ReadFile(promptSetting)
			if err != nil {
				return nil, fmt.Errorf("reading prompt template: %w", err)
			}
		} else {
			content = []byte(promptSetting)
		}
	}

	tmpl, err := template.New("prompt").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &PromptManager{base: tmpl}, nil
}

// DefaultPromptManager returns a manager for the embedded template
func DefaultPromptManager() *PromptManager {
	pm, err := NewPromptManager("")
	if err != nil {
		panic(err)
	}
	return pm
}

// BuildPrompt assembles the full request text for one chunk:
// continuation preamble, template (with the description request on the first
// chunk), a blank line and the chunk itself.
func (pm *PromptManager) BuildPrompt(pc PromptContext, chunk string) (string, error) {
	var buf bytes.Buffer
	data := PromptData{
		CategoryAdditions: CategoryAddition(pc.Category),
		Language:          pc.OutputLanguage,
	}
	if err := pm.base.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}

	var sb strings.Builder
	if prev, ok := pc.Continuation.(PriorText); ok && prev != "" {
		sb.WriteString("The following text is a continuation... Previous response:\n")
		sb.WriteString(string(prev))
		sb.WriteString("\n\nNew text to process(Do Not Repeat the Previous response:):\n")
	}
	if pc.FirstChunk {
		sb.WriteString(firstChunkLead)
	}
	sb.WriteString(buf.String())
	sb.WriteString("\n\n")
	sb.WriteString(chunk)
	return sb.String(), nil
}

// IsLikelyFilePath uses heuristics to determine if a string is likely a file path
func IsLikelyFilePath(s string) bool {
	// Check for common file path indicators
	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}

	// Check for common file extensions
	if strings.Contains(s, ".txt") || strings.Contains(s, ".md") ||
		strings.Contains(s, ".template") || strings.Contains(s, ".tmpl") {
		return true
	}

	// If it's longer than 200 characters, it's likely a prompt string
	if len(s) > 200 {
		return false
	}

	// Default to treating as file path if it doesn't contain spaces and newlines
	return !strings.Contains(s, " ") && !strings.Contains(s, "\n")
}
