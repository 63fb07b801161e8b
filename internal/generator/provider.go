package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when a model answers with no text
var ErrEmptyCompletion = errors.New("model returned an empty completion")

const (
	defaultTemperature = 0.7
	maxOutputTokens    = 2048
)

// Provider is a chat model that completes one system + user exchange
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ProviderOptions configure a provider client
type ProviderOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Retries int
}

// NewProvider builds the provider named by name ("openai" or "anthropic")
func NewProvider(name string, opts ProviderOptions) (Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return NewOpenAIProvider(opts), nil
	case "anthropic":
		return NewAnthropicProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}

// OpenAIProvider uses the chat completions API
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(opts ProviderOptions, extra ...openaiopt.RequestOption) *OpenAIProvider {
	reqOpts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(opts.APIKey),
		openaiopt.WithMaxRetries(opts.Retries),
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, openaiopt.WithRequestTimeout(opts.Timeout))
	}
	model := opts.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIProvider{
		client: openai.NewClient(append(reqOpts, extra...)...),
		model:  model,
	}
}

// Name returns "openai"
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends the exchange with temperature 0.7
func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(defaultTemperature),
		MaxCompletionTokens: openai.Int(maxOutputTokens),
	})
	metrics.ObserveExternal("openai", start, err)
	if err != nil {
		return "", fmt.Errorf("OpenAI chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// AnthropicProvider uses the messages API
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic provider
func NewAnthropicProvider(opts ProviderOptions, extra ...anthropicopt.RequestOption) *AnthropicProvider {
	reqOpts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(opts.APIKey),
		anthropicopt.WithMaxRetries(opts.Retries),
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, anthropicopt.WithRequestTimeout(opts.Timeout))
	}
	model := opts.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(append(reqOpts, extra...)...),
		model:  model,
	}
}

// Name returns "anthropic"
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends the exchange and joins the text blocks of the reply
func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   maxOutputTokens,
		Temperature: anthropic.Float(defaultTemperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	metrics.ObserveExternal("anthropic", start, err)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var parts []string
	for _, block := range message.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
