package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ChatRequest is one stateless, single-turn completion request
type ChatRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ChatClient sends chat completions to an OpenAI-compatible endpoint
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error)
}

// TranscriptionClient sends audio to a hosted speech-to-text model
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, audio io.Reader, language string) (string, error)
}

// OpenAIClient wraps the official OpenAI Go SDK. A base URL points it at any
// OpenAI-compatible service (Perplexity, Ollama).
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new client. SDK-level retries are disabled so the
// calling strategy owns the retry policy.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// CreateChatCompletion implements ChatClient
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", asStatusError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateTranscription implements TranscriptionClient using whisper-1
func (c *OpenAIClient) CreateTranscription(ctx context.Context, audio io.Reader, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  audio,
		Model: openai.AudioModelWhisper1,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", asStatusError(err)
	}
	return resp.Text, nil
}

// asStatusError converts SDK API errors into StatusError so callers can branch
// on the HTTP status
func asStatusError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = err.Error()
		}
		return &StatusError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return err
}
