package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rtzll/yt2md/internal/retry"
)

const (
	DefaultPerplexityModel   = "sonar-pro"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultOllamaModel       = "gemma3:4b"
	DefaultOllamaBaseURL     = "http://localhost:11434"
	defaultChatAttempts      = 3
	defaultChatRetryDelay    = 2 * time.Second
)

// PerplexityConfig configures the Perplexity strategy
type PerplexityConfig struct {
	APIKey           string
	Model            string
	BaseURL          string
	ChunkSize        int
	ChunkingStrategy string
	Temperature      float64
	MaxTokens        int
	MaxAttempts      int
	RetryDelay       time.Duration
	Timeout          time.Duration
}

// OllamaConfig configures the local Ollama strategy
type OllamaConfig struct {
	BaseURL          string
	Model            string
	ChunkSize        int
	ChunkingStrategy string
	Temperature      float64
	MaxTokens        int
	MaxAttempts      int
	RetryDelay       time.Duration
	Timeout          time.Duration
}

// chatStrategy drives a stateless chat-completion provider. Continuation is
// always done by resending the previous chunk's output.
type chatStrategy struct {
	provider    Provider
	model       string
	temperature float64
	maxTokens   int
	attempts    int
	retryDelay  time.Duration
	client      ChatClient
	pipeline    *chunkPipeline
	sleep       retry.SleepFunc
	ui          UIManager
}

// PerplexityStrategy refines transcripts with Perplexity's chat completions API
type PerplexityStrategy struct{ chatStrategy }

// OllamaStrategy refines transcripts with a local Ollama model
type OllamaStrategy struct{ chatStrategy }

// NewPerplexityStrategy creates a Perplexity strategy
func NewPerplexityStrategy(cfg PerplexityConfig, opts ...StrategyOption) (*PerplexityStrategy, error) {
	o := newStrategyOptions(opts)
	if cfg.APIKey == "" && o.chat == nil {
		return nil, fmt.Errorf("perplexity: %w: PERPLEXITY_API_KEY is not set", ErrMissingCredentials)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultPerplexityModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPerplexityBaseURL
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4000
	}

	chunker, err := chunkerFor(cfg.ChunkingStrategy, cfg.ChunkSize, DefaultChunkSize)
	if err != nil {
		return nil, err
	}

	client := o.chat
	if client == nil {
		client = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	}

	return &PerplexityStrategy{newChatStrategy(ProviderPerplexity, cfg.Model, cfg.Temperature,
		cfg.MaxTokens, cfg.MaxAttempts, cfg.RetryDelay, client, chunker, o)}, nil
}

// NewOllamaStrategy creates an Ollama strategy talking to the server's
// OpenAI-compatible endpoint
func NewOllamaStrategy(cfg OllamaConfig, opts ...StrategyOption) (*OllamaStrategy, error) {
	o := newStrategyOptions(opts)
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}

	chunker, err := chunkerFor(cfg.ChunkingStrategy, cfg.ChunkSize, DefaultOllamaChunkSize)
	if err != nil {
		return nil, err
	}

	client := o.chat
	if client == nil {
		// Ollama ignores the key but the SDK requires one
		client = NewOpenAIClient("ollama", strings.TrimRight(cfg.BaseURL, "/")+"/v1/", cfg.Timeout)
	}

	return &OllamaStrategy{newChatStrategy(ProviderOllama, cfg.Model, cfg.Temperature,
		cfg.MaxTokens, cfg.MaxAttempts, cfg.RetryDelay, client, chunker, o)}, nil
}

func newChatStrategy(p Provider, model string, temperature float64, maxTokens, attempts int,
	delay time.Duration, client ChatClient, chunker ChunkingStrategy, o strategyOptions) chatStrategy {
	if attempts <= 0 {
		attempts = defaultChatAttempts
	}
	if delay <= 0 {
		delay = defaultChatRetryDelay
	}
	return chatStrategy{
		provider:    p,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		attempts:    attempts,
		retryDelay:  delay,
		client:      client,
		pipeline:    &chunkPipeline{prompts: o.prompts, chunker: chunker, ui: o.ui},
		sleep:       o.sleep,
		ui:          o.ui,
	}
}

func (s *chatStrategy) Provider() Provider { return s.provider }
func (s *chatStrategy) Model() string      { return s.model }

// Analyze runs every chunk through the chat endpoint
func (s *chatStrategy) Analyze(ctx context.Context, transcript string, req AnalyzeRequest) (StrategyResult, error) {
	return s.pipeline.run(ctx, s.provider, transcript, req, s.turn)
}

// turn retries only HTTP 429, waiting delay*attempt between attempts
func (s *chatStrategy) turn(ctx context.Context, prompt, _ string) (string, string, error) {
	var text string
	cfg := retry.Config{
		MaxAttempts: s.attempts,
		Backoff:     retry.Linear(s.retryDelay),
		Sleep:       s.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.ui.Warnf("%s rate limit hit, retrying in %s...", providerTitle(s.provider), wait)
		},
	}

	isRateLimit := func(err error) bool {
		return HTTPStatus(err) == http.StatusTooManyRequests
	}

	err := retry.Do(ctx, cfg, isRateLimit, func(ctx context.Context, attempt int) error {
		out, err := s.client.CreateChatCompletion(ctx, ChatRequest{
			Model:       s.model,
			Prompt:      prompt,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", "", &ProviderError{Provider: s.provider, Err: err}
	}
	return text, "", nil
}
