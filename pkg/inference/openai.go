package inference

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"atelier/pkg/schema"
)

// OpenAIInferencer implements Inferencer against any OpenAI-compatible chat
// completions endpoint.
type OpenAIInferencer struct {
	client  *openai.Client
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

// NewOpenAIInferencer creates a new inferencer instance using OpenAI client.
func NewOpenAIInferencer(apiKey string, model string) *OpenAIInferencer {
	o := &OpenAIInferencer{apiKey: apiKey, model: model}
	o.rebuild()
	return o
}

func (o *OpenAIInferencer) ChangeBaseURL(baseURL string) *OpenAIInferencer {
	o.baseURL = baseURL
	o.rebuild()
	return o
}

// SetTimeout bounds each vendor request, retries included.
func (o *OpenAIInferencer) SetTimeout(d time.Duration) *OpenAIInferencer {
	o.timeout = d
	o.rebuild()
	return o
}

func (o *OpenAIInferencer) Model() string {
	return o.model
}

func (o *OpenAIInferencer) rebuild() {
	opts := []option.RequestOption{option.WithAPIKey(o.apiKey)}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL))
	}
	if o.timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.timeout))
	}
	client := openai.NewClient(opts...)
	o.client = &client
}

// key resolves the per-request key override against the configured key.
func (o *OpenAIInferencer) key(req *Request) (option.RequestOption, error) {
	key := cmp.Or(req.APIKey, o.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return option.WithAPIKey(key), nil
}

// Infer sends the conversation to the chat completion endpoint and returns the output.
func (o *OpenAIInferencer) Infer(ctx context.Context, req *Request) (string, error) {
	key, err := o.key(req)
	if err != nil {
		return "", err
	}

	params := o.params(req)
	log.Debug("chat completion", "model", params.Model, "messages", len(params.Messages))

	resp, err := o.client.Chat.Completions.New(ctx, params, key)
	if err != nil {
		return "", fmt.Errorf("openai inference error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream relays content deltas as they arrive. The sequence ends after the
// first error.
func (o *OpenAIInferencer) Stream(ctx context.Context, req *Request) iter.Seq2[string, error] {
	key, err := o.key(req)
	if err != nil {
		return errSeq(err)
	}

	return func(yield func(string, error) bool) {
		params := o.params(req)
		log.Debug("chat completion stream", "model", params.Model, "messages", len(params.Messages))

		stream := o.client.Chat.Completions.NewStreaming(ctx, params, key)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream error: %w", err))
		}
	}
}

func (o *OpenAIInferencer) params(req *Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		messages = append(messages, messageParam(m))
	}

	params := openai.ChatCompletionNewParams{
		Model:    cmp.Or(req.Model, o.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	return params
}

func messageParam(m schema.ChatMessage) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case schema.RoleSystem:
		return openai.SystemMessage(m.Text())
	case schema.RoleAssistant:
		return openai.AssistantMessage(m.Text())
	}

	images := m.Images()
	if len(images) == 0 {
		return openai.UserMessage(m.Text())
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	if text := m.Text(); text != "" {
		parts = append(parts, openai.TextContentPart(text))
	}
	for _, u := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
	}
	return openai.UserMessage(parts)
}
