package generation

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"atelier/pkg/inference"
	"atelier/pkg/utils"
)

// Gemini generates images through an OpenAI-compatible proxy that returns
// Gemini image output on the chat completions message.
type Gemini struct {
	client *openai.Client
	apiKey string
	model  string
}

func NewGemini(apiKey, baseURL, model string, timeout time.Duration) *Gemini {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := openai.NewClient(opts...)
	return &Gemini{client: &client, apiKey: apiKey, model: model}
}

func (g *Gemini) Vendor() Vendor { return VendorGemini }

func (g *Gemini) Generate(ctx context.Context, req *Request) (*Result, error) {
	key := cmp.Or(req.APIKey, g.apiKey)
	if key == "" {
		return nil, inference.ErrMissingAPIKey
	}

	var user openai.ChatCompletionMessageParamUnion
	if len(req.Images) == 0 {
		user = openai.UserMessage(req.Prompt)
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
		for _, u := range req.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
		}
		user = openai.UserMessage(parts)
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{user},
	}, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return decodeGeminiChat([]byte(resp.RawJSON()))
}

type chatImage struct {
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
	URL     string `json:"url"`
	B64JSON string `json:"b64_json"`
}

// decodeGeminiChat reads message.images[0] (image_url.url, url, then
// b64_json) and falls back to message content that is itself an http or
// data:image URL.
func decodeGeminiChat(raw []byte) (*Result, error) {
	var body struct {
		Choices []struct {
			Message struct {
				Content any         `json:"content"`
				Images  []chatImage `json:"images"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("gemini: decoding response: %w", err)
	}
	if len(body.Choices) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrNoImage)
	}
	msg := body.Choices[0].Message

	if len(msg.Images) > 0 {
		img := msg.Images[0]
		switch {
		case img.ImageURL != nil && img.ImageURL.URL != "":
			return hrefResult(img.ImageURL.URL)
		case img.URL != "":
			return hrefResult(img.URL)
		case img.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(img.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("gemini: decoding b64_json: %w", err)
			}
			return &Result{Data: data, MIMEType: "image/png"}, nil
		}
	}

	if content, ok := msg.Content.(string); ok {
		content = strings.TrimSpace(content)
		if strings.HasPrefix(content, "http") || strings.HasPrefix(content, "data:image") {
			return hrefResult(content)
		}
	}

	log.Debug("gemini reply without image", "body", utils.LimitStr(string(raw), 500))
	return nil, fmt.Errorf("gemini: %w", ErrNoImage)
}

// hrefResult keeps data URLs inline so Href reproduces them.
func hrefResult(href string) (*Result, error) {
	if !utils.IsDataURL(href) {
		return &Result{URL: href}, nil
	}
	mime, data, err := utils.ParseDataURL(href)
	if err != nil {
		return &Result{URL: href}, nil
	}
	return &Result{Data: data, MIMEType: mime}, nil
}
