package internal

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an LLM backend
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderGemini
	ProviderPerplexity
	ProviderOllama
)

// String returns the configuration name of the provider
func (p Provider) String() string {
	switch p {
	case ProviderGemini:
		return "gemini"
	case ProviderPerplexity:
		return "perplexity"
	case ProviderOllama:
		return "ollama"
	default:
		return "unknown"
	}
}

// IsLocal reports whether the provider runs on the local machine
func (p Provider) IsLocal() bool {
	return p == ProviderOllama
}

// ResultKey returns the analysis result slot the provider's output lands in
func (p Provider) ResultKey() ResultKey {
	if p.IsLocal() {
		return ResultLocal
	}
	return ResultCloud
}

// ParseProvider maps a provider name (case-insensitive) to a Provider
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini":
		return ProviderGemini, nil
	case "perplexity":
		return ProviderPerplexity, nil
	case "ollama":
		return ProviderOllama, nil
	default:
		return ProviderUnknown, fmt.Errorf("unknown LLM provider: %q", name)
	}
}

// LengthCategory buckets transcripts by size for strategy selection
type LengthCategory string

const (
	LengthShort  LengthCategory = "short"
	LengthMedium LengthCategory = "medium"
	LengthLong   LengthCategory = "long"
)

// ResultKey names a slot in AnalysisResults
type ResultKey string

const (
	ResultCloud ResultKey = "cloud"
	ResultLocal ResultKey = "local"
)

// NoDescription is used when the model did not return a description line
const NoDescription = "No description available"

// StrategyResult is the output of one provider run over a whole transcript
type StrategyResult struct {
	Text        string
	Description string
}

// AnalysisOutput is a StrategyResult tagged with where it came from
type AnalysisOutput struct {
	Text        string
	Description string
	ModelName   string
	Provider    Provider
}

// AnalysisResults holds at most one cloud and one local output
type AnalysisResults map[ResultKey]AnalysisOutput

// ForceFlags override the configured provider family
type ForceFlags struct {
	CloudOnly bool
	LocalOnly bool
}

// Continuation carries context from one chunk's response into the next request.
// It is one of NoContinuation, PriorText or ProviderHandle.
type Continuation interface {
	isContinuation()
}

// NoContinuation marks the first chunk
type NoContinuation struct{}

// PriorText resends the previous chunk's output inside the next prompt
type PriorText string

// ProviderHandle links turns through an id issued by the provider
type ProviderHandle string

func (NoContinuation) isContinuation() {}
func (PriorText) isContinuation()      {}
func (ProviderHandle) isContinuation() {}

// Channel is one configured YouTube channel
type Channel struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	LanguageCode   string   `yaml:"language_code"`
	OutputLanguage string   `yaml:"output_language"`
	TitleFilters   []string `yaml:"title_filters,omitempty"`
	Category       string   `yaml:"-"`
}

// MatchesTitle reports whether a video title passes the channel's title filters
func (c Channel) MatchesTitle(title string) bool {
	if len(c.TitleFilters) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, f := range c.TitleFilters {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// Video is a single video queued for processing
type Video struct {
	ID             string
	URL            string
	Title          string
	Author         string
	Published      time.Time
	LanguageCode   string
	OutputLanguage string
	Category       string
}

// PublishedDate formats the publish date the way notes store it
func (v Video) PublishedDate() string {
	if v.Published.IsZero() {
		return ""
	}
	return v.Published.Format("2006-01-02")
}
