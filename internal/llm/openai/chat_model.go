// Package openai adapts an OpenAI-compatible chat completion endpoint to the
// eino model interfaces so it can sit in the same chain as the Ark model.
package openai

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// Config describes how to reach the endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

// ChatModel implements model.ChatModel on top of go-openai.
type ChatModel struct {
	client *go_openai.Client
	cfg    Config
}

var _ model.ChatModel = (*ChatModel)(nil)

// NewChatModel validates cfg and creates the client.
func NewChatModel(_ context.Context, cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}

	clientCfg := go_openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatModel{client: go_openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Generate runs a blocking completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req := m.buildRequest(input, opts...)

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream emits one assistant message per content delta.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req := m.buildRequest(input, opts...)
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion stream")
	}

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, errors.Wrap(err, "openai stream recv"))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(delta, nil), nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

// BindTools is a no-op; the chatbot never offers tools to the model.
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...model.Option) go_openai.ChatCompletionRequest {
	common := model.GetCommonOptions(&model.Options{
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
		MaxTokens:   m.cfg.MaxTokens,
		Model:       &m.cfg.Model,
	}, opts...)

	req := go_openai.ChatCompletionRequest{
		Model:    m.cfg.Model,
		Messages: toOpenAIMessages(input),
	}
	if common.Model != nil && *common.Model != "" {
		req.Model = *common.Model
	}
	if common.Temperature != nil {
		req.Temperature = *common.Temperature
	}
	if common.TopP != nil {
		req.TopP = *common.TopP
	}
	if common.MaxTokens != nil {
		req.MaxTokens = *common.MaxTokens
	}
	if len(common.Stop) > 0 {
		req.Stop = common.Stop
	}
	return req
}

func toOpenAIMessages(input []*schema.Message) []go_openai.ChatCompletionMessage {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}
	return msgs
}

func toOpenAIRole(role schema.RoleType) string {
	switch strings.ToLower(string(role)) {
	case string(schema.System):
		return go_openai.ChatMessageRoleSystem
	case string(schema.Assistant), "model":
		return go_openai.ChatMessageRoleAssistant
	default:
		return go_openai.ChatMessageRoleUser
	}
}
