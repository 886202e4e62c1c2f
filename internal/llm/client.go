package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mentora/internal/config"
	"mentora/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultTimeout = 60 * time.Second

// Completer is the single capability the orchestrator needs from the model
// provider: prompt in, completion out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, system string, turns []models.ChatTurn) (string, error)
}

// Client talks to one configured chat model. Every call is a single awaited
// completion bounded by the configured timeout; no streaming.
type Client struct {
	chatModel   model.BaseChatModel
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

// NewClient builds the provider-specific chat model from config. The azure
// provider routes through the openai component against an Azure deployment.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)
	llmCfg := cfg.LLM

	switch strings.TrimSpace(llmCfg.Provider) {
	case "azure":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			ByAzure:    true,
			BaseURL:    llmCfg.BaseURL,
			APIKey:     llmCfg.APIKey,
			APIVersion: llmCfg.APIVersion,
			Model:      llmCfg.Model,
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: llmCfg.BaseURL,
			APIKey:  llmCfg.APIKey,
			Model:   llmCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if llmCfg.BaseURL != "" {
			baseURLPtr = &llmCfg.BaseURL
		}
		maxTokens := llmCfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 2024
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    llmCfg.APIKey,
			Model:     llmCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: llmCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  llmCfg.Model,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", llmCfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", llmCfg.Provider, err)
	}

	timeout := time.Duration(llmCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		chatModel:   chatModel,
		timeout:     timeout,
		temperature: llmCfg.Temperature,
		maxTokens:   llmCfg.MaxTokens,
	}, nil
}

// Complete sends one prompt as a user message and returns the completion
// text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
}

// Chat sends a system instruction followed by the transcript turns.
func (c *Client) Chat(ctx context.Context, system string, turns []models.ChatTurn) (string, error) {
	messages := make([]*schema.Message, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	for _, t := range turns {
		switch t.Role {
		case models.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(t.Content, nil))
		case models.RoleSystem:
			messages = append(messages, schema.SystemMessage(t.Content))
		default:
			messages = append(messages, schema.UserMessage(t.Content))
		}
	}
	return c.generate(ctx, messages)
}

func (c *Client) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var opts []model.Option
	if c.temperature > 0 {
		opts = append(opts, model.WithTemperature(c.temperature))
	}
	if c.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.maxTokens))
	}

	out, err := c.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("completion timed out: %w", ctxErr)
		}
		return "", fmt.Errorf("generate completion: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}
