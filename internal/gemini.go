package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/rtzll/yt2md/internal/retry"
)

const (
	DefaultGeminiModel      = "gemini-2.5-pro"
	DefaultGeminiMaxRetries = 4
	interactionsEndpoint    = "https://generativelanguage.googleapis.com/v1beta/interactions"
)

// GeminiConfig configures the Gemini strategy
type GeminiConfig struct {
	APIKey           string
	Model            string
	ChunkSize        int
	ChunkingStrategy string
	Temperature      float64
	MaxOutputTokens  int

	// UseInteractions chains chunks through the Interactions API instead of
	// resending the previous response
	UseInteractions bool
	Endpoint        string
	Timeout         time.Duration

	MaxRetries  int
	BackoffBase float64
	MaxBackoff  time.Duration
	Jitter      float64
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.Model == "" {
		c.Model = DefaultGeminiModel
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultGeminiMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.3
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Endpoint == "" {
		c.Endpoint = interactionsEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}

// GeminiRequest is one Gemini turn
type GeminiRequest struct {
	Model                 string
	Input                 string
	PreviousInteractionID string
	Temperature           float64
	MaxOutputTokens       int
}

// GeminiResponse is the text of one turn and, for the Interactions API, its id
type GeminiResponse struct {
	Text          string
	InteractionID string
}

// GeminiClient issues single Gemini requests
type GeminiClient interface {
	Generate(ctx context.Context, req GeminiRequest) (GeminiResponse, error)
}

// GeminiStrategy refines transcripts with Gemini
type GeminiStrategy struct {
	config   GeminiConfig
	pipeline *chunkPipeline
	sleep    retry.SleepFunc
	ui       UIManager

	client     GeminiClient
	clientOnce sync.Once
	clientErr  error
}

// NewGeminiStrategy creates a Gemini strategy. The API client is created on first use.
func NewGeminiStrategy(cfg GeminiConfig, opts ...StrategyOption) (*GeminiStrategy, error) {
	o := newStrategyOptions(opts)
	cfg = cfg.withDefaults()

	if cfg.APIKey == "" && o.gemini == nil {
		return nil, fmt.Errorf("gemini: %w: GEMINI_API_KEY is not set", ErrMissingCredentials)
	}

	chunker, err := chunkerFor(cfg.ChunkingStrategy, cfg.ChunkSize, DefaultChunkSize)
	if err != nil {
		return nil, err
	}

	return &GeminiStrategy{
		config: cfg,
		pipeline: &chunkPipeline{
			prompts:       o.prompts,
			chunker:       chunker,
			ui:            o.ui,
			chainByHandle: cfg.UseInteractions,
		},
		sleep:  o.sleep,
		ui:     o.ui,
		client: o.gemini,
	}, nil
}

func (s *GeminiStrategy) Provider() Provider { return ProviderGemini }
func (s *GeminiStrategy) Model() string      { return s.config.Model }

// ensureClient creates the API client on first use
func (s *GeminiStrategy) ensureClient(ctx context.Context) error {
	s.clientOnce.Do(func() {
		if s.client != nil {
			return
		}
		if s.config.UseInteractions {
			s.client = NewInteractionsClient(s.config.APIKey, s.config.Endpoint, &http.Client{Timeout: s.config.Timeout})
			return
		}
		s.client, s.clientErr = NewGenAIClient(ctx, s.config.APIKey)
	})
	return s.clientErr
}

// Analyze runs every chunk through Gemini
func (s *GeminiStrategy) Analyze(ctx context.Context, transcript string, req AnalyzeRequest) (StrategyResult, error) {
	if err := s.ensureClient(ctx); err != nil {
		return StrategyResult{}, &ProviderError{Provider: ProviderGemini, Err: err}
	}
	return s.pipeline.run(ctx, ProviderGemini, transcript, req, s.turn)
}

func (s *GeminiStrategy) turn(ctx context.Context, prompt, previousID string) (string, string, error) {
	var resp GeminiResponse
	cfg := retry.Config{
		MaxAttempts: s.config.MaxRetries,
		Backoff:     retry.Exponential(s.config.BackoffBase, s.config.MaxBackoff, s.config.Jitter),
		Sleep:       s.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.ui.Warnf("Gemini request failed (attempt %d/%d): %v; retrying in %s",
				attempt, s.config.MaxRetries, err, wait.Round(time.Millisecond))
		},
	}

	err := retry.Do(ctx, cfg, IsTransientProviderError, func(ctx context.Context, attempt int) error {
		r, err := s.client.Generate(ctx, GeminiRequest{
			Model:                 s.config.Model,
			Input:                 prompt,
			PreviousInteractionID: previousID,
			Temperature:           s.config.Temperature,
			MaxOutputTokens:       s.config.MaxOutputTokens,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", "", &ProviderError{Provider: ProviderGemini, Err: err}
	}
	return resp.Text, resp.InteractionID, nil
}

// GenAIClient sends stateless generate-content requests through the Gemini SDK
type GenAIClient struct {
	client *genai.Client
}

// NewGenAIClient creates a Gemini SDK client for the Gemini API backend
func NewGenAIClient(ctx context.Context, apiKey string) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GenAIClient{client: client}, nil
}

func (c *GenAIClient) Generate(ctx context.Context, req GeminiRequest) (GeminiResponse, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Input), config)
	if err != nil {
		return GeminiResponse{}, err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return GeminiResponse{}, errors.New("empty response from model")
	}
	return GeminiResponse{Text: text}, nil
}

// InteractionsClient calls the Gemini Interactions API, which keeps
// conversation state server-side and links turns by interaction id
type InteractionsClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewInteractionsClient creates an Interactions API client
func NewInteractionsClient(apiKey, endpoint string, httpClient *http.Client) *InteractionsClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &InteractionsClient{apiKey: apiKey, endpoint: endpoint, http: httpClient}
}

type interactionRequest struct {
	Model                 string            `json:"model"`
	Input                 string            `json:"input"`
	PreviousInteractionID string            `json:"previous_interaction_id,omitempty"`
	GenerationConfig      *generationConfig `json:"generation_config,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

type interactionResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outputs []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"outputs"`
}

type googleAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *InteractionsClient) Generate(ctx context.Context, req GeminiRequest) (GeminiResponse, error) {
	body, err := json.Marshal(interactionRequest{
		Model:                 req.Model,
		Input:                 req.Input,
		PreviousInteractionID: req.PreviousInteractionID,
		GenerationConfig: &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	})
	if err != nil {
		return GeminiResponse{}, fmt.Errorf("encoding interaction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return GeminiResponse{}, fmt.Errorf("creating interaction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return GeminiResponse{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return GeminiResponse{}, fmt.Errorf("reading interaction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(payload))
		var apiErr googleAPIError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", apiErr.Error.Status, apiErr.Error.Message)
		}
		return GeminiResponse{}, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	var ir interactionResponse
	if err := json.Unmarshal(payload, &ir); err != nil {
		return GeminiResponse{}, fmt.Errorf("decoding interaction response: %w", err)
	}

	var sb strings.Builder
	for _, out := range ir.Outputs {
		if out.Type == "" || out.Type == "text" {
			sb.WriteString(out.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return GeminiResponse{}, fmt.Errorf("interaction %s returned no text (status %q)", ir.ID, ir.Status)
	}
	return GeminiResponse{Text: sb.String(), InteractionID: ir.ID}, nil
}
