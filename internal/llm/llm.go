// Package llm talks to a locally hosted generative text model through an
// OpenAI-compatible HTTP API (GPT4All, llama.cpp server, Ollama).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Model generates text completions for prompts
type Model interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Close() error
}

// Loader loads a model instance. One instance serves a whole batch.
type Loader func(ctx context.Context) (Model, error)

// ErrModelNotAvailable is returned when the server does not serve the
// configured model
var ErrModelNotAvailable = errors.New("model not available")

// Config holds model server configuration
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// DefaultConfig returns the settings of a local GPT4All API server
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:4891/v1",
		Model:      "orca-mini-3b.gguf",
		APIKey:     "local",
		Timeout:    5 * time.Minute,
		MaxRetries: 1,
	}
}

// OpenAIModel is a Model backed by a chat completions endpoint
type OpenAIModel struct {
	model  string
	client openai.Client
}

// NewOpenAIModel creates a client for the configured server without
// contacting it
func NewOpenAIModel(cfg Config) *OpenAIModel {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIModel{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Load connects to the model server and checks that it serves the
// configured model
func Load(ctx context.Context, cfg Config) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model name is required")
	}

	m := NewOpenAIModel(cfg)
	page, err := m.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	if page == nil {
		return nil, fmt.Errorf("models list returned nil response")
	}

	for _, available := range page.Data {
		if available.ID == cfg.Model {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotAvailable, cfg.Model)
}

// NewLoader returns a Loader for cfg
func NewLoader(cfg Config) Loader {
	return func(ctx context.Context) (Model, error) {
		m, err := Load(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Generate sends prompt as a single user message and returns the reply
func (m *OpenAIModel) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close releases the model. The HTTP client holds no server-side state.
func (m *OpenAIModel) Close() error {
	return nil
}
