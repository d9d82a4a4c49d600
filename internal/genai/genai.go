// Package genai wraps the OpenAI chat-completion API behind a small adapter
// so the orchestrator can be tested without network access.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/talk2me-ai/talk2me/internal/models"
)

// Default configuration constants
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTimeout bounds a single completion round-trip. A turn makes up
	// to three sequential calls, so an unbounded hang would stall the whole
	// request.
	DefaultTimeout = 60 * time.Second
)

// GenerationError is returned for any transport or API failure of the
// completion endpoint, including a well-formed response with no choices.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("genai %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// openaiChatService adapts the OpenAI SDK to the chatService interface.
type openaiChatService struct {
	client openai.Client
}

func (s *openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return s.client.Chat.Completions.New(ctx, params)
}

// Opts holds configuration for the client.
type Opts struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client generates text through the OpenAI chat-completion endpoint.
type Client struct {
	chat    chatService
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient initializes a GenAI client from options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	slog.Debug("genai.NewClient: client configured", "model", model, "timeout", timeout, "base_url_set", cfg.BaseURL != "")
	return &Client{
		chat:    &openaiChatService{client: openai.NewClient(reqOpts...)},
		model:   model,
		timeout: timeout,
	}, nil
}

// Complete sends the system instruction plus an ordered message list to the
// completion endpoint and returns the generated text. Failures are returned
// as *GenerationError.
func (c *Client) Complete(ctx context.Context, systemPrompt string, msgs []models.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(systemPrompt, msgs),
	}
	slog.Debug("genai.Complete: sending completion request", "model", c.model, "messages", len(msgs))
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("genai.Complete: completion request failed", "error", err)
		return "", &GenerationError{Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.Complete: completion returned no choices")
		return "", &GenerationError{Op: "complete", Err: fmt.Errorf("no choices returned")}
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("genai.Complete: completion succeeded", "length", len(content))
	return content, nil
}

// buildMessages converts the system instruction and history into SDK params,
// preserving order.
func buildMessages(systemPrompt string, msgs []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range msgs {
		switch m.Role {
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
