package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rtzll/yt2md/internal/retry"
)

// ErrMissingCredentials is returned when a provider is selected without its API key
var ErrMissingCredentials = errors.New("missing credentials")

// ErrEmptyTranscript is returned when there is no text to analyze
var ErrEmptyTranscript = errors.New("transcript is empty")

// AnalyzeRequest carries the per-video inputs of a strategy run
type AnalyzeRequest struct {
	Category       string
	OutputLanguage string
}

// Strategy refines a whole transcript with one provider
type Strategy interface {
	Provider() Provider
	Model() string
	Analyze(ctx context.Context, transcript string, req AnalyzeRequest) (StrategyResult, error)
}

// ProviderError tags an error with the provider it came from
type ProviderError struct {
	Provider Provider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %v", providerTitle(e.Provider), e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusError is a non-success HTTP status returned by a provider endpoint
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the HTTP status carried by err, or 0 if there is none
func HTTPStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err came from a provider rejecting the request for rate limiting
func IsRateLimited(err error) bool {
	if code := HTTPStatus(err); code != 0 {
		return code == http.StatusTooManyRequests
	}
	return err != nil && strings.Contains(err.Error(), "429")
}

func providerTitle(p Provider) string {
	switch p {
	case ProviderGemini:
		return "Gemini"
	case ProviderPerplexity:
		return "Perplexity"
	case ProviderOllama:
		return "Ollama"
	default:
		return "LLM"
	}
}

var retryableTokens = []string{"503", "unavailable", "429", "rate limit", "deadline exceeded", "temporarily"}

// IsTransientProviderError reports whether a provider call is worth retrying.
// HTTP status codes decide when known; otherwise the message is checked for
// overload and rate-limit tokens.
func IsTransientProviderError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if code := HTTPStatus(err); code != 0 {
		switch code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, token := range retryableTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// turnFunc issues one provider request. previousID is the provider handle of
// the previous turn, if any. It returns the raw response text and the new
// handle (empty when the provider has none).
type turnFunc func(ctx context.Context, prompt, previousID string) (text, id string, err error)

// chunkPipeline is the provider-agnostic chunk loop shared by all strategies
type chunkPipeline struct {
	prompts *PromptManager
	chunker ChunkingStrategy
	ui      UIManager
	// chainByHandle links turns by provider handle instead of resending prior text
	chainByHandle bool
}

func (p *chunkPipeline) run(ctx context.Context, provider Provider, transcript string, req AnalyzeRequest, turn turnFunc) (StrategyResult, error) {
	chunks := p.chunker.Chunk(transcript)
	if len(chunks) == 0 {
		return StrategyResult{}, &ProviderError{Provider: provider, Err: ErrEmptyTranscript}
	}

	description := ""
	parts := make([]string, 0, len(chunks))
	var cont Continuation = NoContinuation{}

	for i, chunk := range chunks {
		p.ui.Debugf("%s: processing chunk %d/%d (%d words)", provider, i+1, len(chunks), len(strings.Fields(chunk)))

		prompt, err := p.prompts.BuildPrompt(PromptContext{
			FirstChunk:     i == 0,
			Continuation:   cont,
			Category:       req.Category,
			OutputLanguage: req.OutputLanguage,
		}, chunk)
		if err != nil {
			return StrategyResult{}, err
		}

		previousID := ""
		if h, ok := cont.(ProviderHandle); ok {
			previousID = string(h)
		}

		raw, id, err := turn(ctx, prompt, previousID)
		if err != nil {
			// No partial documents: a failed turn breaks the continuation chain
			return StrategyResult{}, err
		}

		body, desc := ProcessResponse(raw, i == 0)
		if i == 0 && desc != "" {
			description = desc
		}
		parts = append(parts, body)

		if p.chainByHandle && id != "" {
			cont = ProviderHandle(id)
		} else {
			cont = PriorText(body)
		}
	}

	if description == "" {
		description = NoDescription
	}
	return StrategyResult{Text: strings.Join(parts, "\n\n"), Description: description}, nil
}

// StrategyOption customizes strategy construction
type StrategyOption func(*strategyOptions)

type strategyOptions struct {
	ui      UIManager
	prompts *PromptManager
	sleep   retry.SleepFunc
	gemini  GeminiClient
	chat    ChatClient
}

func newStrategyOptions(opts []StrategyOption) strategyOptions {
	o := strategyOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ui == nil {
		o.ui = NewUIManager(false, false)
	}
	if o.prompts == nil {
		o.prompts = DefaultPromptManager()
	}
	return o
}

// WithStrategyUI sets where strategies report retries and progress
func WithStrategyUI(ui UIManager) StrategyOption {
	return func(o *strategyOptions) { o.ui = ui }
}

// WithPromptManager sets a custom prompt template
func WithPromptManager(pm *PromptManager) StrategyOption {
	return func(o *strategyOptions) { o.prompts = pm }
}

// WithRetrySleep replaces the wait between retries
func WithRetrySleep(sleep retry.SleepFunc) StrategyOption {
	return func(o *strategyOptions) { o.sleep = sleep }
}

// WithGeminiClient sets the client used by the Gemini strategy
func WithGeminiClient(c GeminiClient) StrategyOption {
	return func(o *strategyOptions) { o.gemini = c }
}

// WithChatClient sets the client used by the Perplexity and Ollama strategies
func WithChatClient(c ChatClient) StrategyOption {
	return func(o *strategyOptions) { o.chat = c }
}

// ProviderSettings holds one fixed-shape configuration record per provider
type ProviderSettings struct {
	Gemini     GeminiConfig
	Perplexity PerplexityConfig
	Ollama     OllamaConfig
}

// NewStrategy returns the strategy for a provider. Construction does not
// contact the provider.
func NewStrategy(p Provider, settings ProviderSettings, opts ...StrategyOption) (Strategy, error) {
	var (
		s   Strategy
		err error
	)
	switch p {
	case ProviderGemini:
		s, err = NewGeminiStrategy(settings.Gemini, opts...)
	case ProviderPerplexity:
		s, err = NewPerplexityStrategy(settings.Perplexity, opts...)
	case ProviderOllama:
		s, err = NewOllamaStrategy(settings.Ollama, opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", p.String())
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// chunkerFor resolves the chunking strategy with a provider default size
func chunkerFor(name string, size, fallbackSize int) (ChunkingStrategy, error) {
	if size <= 0 {
		size = fallbackSize
	}
	return NewChunkingStrategy(name, size)
}
