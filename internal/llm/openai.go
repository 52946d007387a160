package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"vetchat/pkg"
)

// ErrInvalidMessages is returned when the message array cannot be turned into
// a provider request. It is the one failure that aborts a chat turn.
var ErrInvalidMessages = errors.New("llm: invalid message array")

// Request is a chat completion request: a system prompt followed by the
// conversation window.
type Request struct {
	System   string
	Messages []pkg.Message
}

// Client defines the methods required by the chat service and the
// summariser. Stream calls onDelta for every text fragment and returns the
// full text once the provider finishes.
type Client interface {
	Stream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error)
	Summarize(ctx context.Context, system, prompt string) (string, error)
}

// Config selects credentials and models for OpenAIClient.
type Config struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	SummaryModel string
}

// OpenAIClient calls the OpenAI API for chat and summarisation responses.
type OpenAIClient struct {
	client       *openai.Client
	chatModel    string
	summaryModel string
}

// NewOpenAIClient constructs an OpenAI-backed LLM client. Empty model names
// fall back to gpt-4o-mini; the summary model defaults to the chat model.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = chatModel
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(oc),
		chatModel:    chatModel,
		summaryModel: summaryModel,
	}
}

// Stream sends the system prompt and history to the streaming chat completion
// API and relays each content delta.
func (c *OpenAIClient) Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}
	msgs, err := ConvertMessages(req.System, req.Messages)
	if err != nil {
		return "", err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("llm: open stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			return full.String(), fmt.Errorf("llm: stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}
}

// Summarize requests a non-streaming completion for a summarisation prompt.
func (c *OpenAIClient) Summarize(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ConvertMessages turns the normalized conversation into provider messages,
// prefixed by the system prompt. Parts other than text and image are dropped.
func ConvertMessages(system string, messages []pkg.Message) ([]openai.ChatCompletionMessage, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: expected at least one message, got array of length 0", ErrInvalidMessages)
	}

	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: message %d has role %q (array length %d)", ErrInvalidMessages, i, m.Role, len(messages))
		}
		cm, err := convertMessage(m)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: %v (array length %d)", ErrInvalidMessages, i, err, len(messages))
		}
		out = append(out, cm)
	}
	return out, nil
}

func convertMessage(m pkg.Message) (openai.ChatCompletionMessage, error) {
	hasImage := false
	for _, p := range m.Parts {
		if p.Type == pkg.PartImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Text()}, nil
	}
	if m.Role != pkg.RoleUser {
		return openai.ChatCompletionMessage{}, fmt.Errorf("image parts are only allowed on user messages, got role %q", m.Role)
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case pkg.PartText:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case pkg.PartImage:
			if p.Image == "" {
				return openai.ChatCompletionMessage{}, errors.New("image part without data")
			}
			mime := p.MimeType
			if mime == "" {
				mime = "image/jpeg"
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: "data:" + mime + ";base64," + p.Image},
			})
		}
	}
	return openai.ChatCompletionMessage{Role: string(m.Role), MultiContent: parts}, nil
}
