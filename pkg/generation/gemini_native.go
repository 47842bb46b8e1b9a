package generation

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"atelier/pkg/inference"
)

// GeminiNative generates images with the Gemini API directly.
type GeminiNative struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

func NewGeminiNative(apiKey, model string, timeout time.Duration) *GeminiNative {
	return &GeminiNative{apiKey: apiKey, model: model, timeout: timeout}
}

// ChangeBaseURL points the client at a Gemini API proxy. Empty keeps the
// SDK default endpoint.
func (g *GeminiNative) ChangeBaseURL(baseURL string) *GeminiNative {
	g.baseURL = baseURL
	return g
}

func (g *GeminiNative) Vendor() Vendor { return VendorGeminiNative }

func (g *GeminiNative) Generate(ctx context.Context, req *Request) (*Result, error) {
	key := cmp.Or(req.APIKey, g.apiKey)
	if key == "" {
		return nil, inference.ErrMissingAPIKey
	}

	config := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if g.timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: g.timeout}
	}
	if g.baseURL != "" {
		config.HTTPOptions.BaseURL = g.baseURL
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, ref := range req.Images {
		if part := inference.ImagePart(ref); part != nil {
			parts = append(parts, part)
		}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini native request failed: %w", err)
	}
	return decodeGeminiNative(resp)
}

// decodeGeminiNative takes the first inline image of the first candidate,
// falling back to a text part that is an image URL.
func decodeGeminiNative(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini native: %w", ErrNoImage)
	}

	parts := resp.Candidates[0].Content.Parts
	for _, p := range parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return &Result{Data: p.InlineData.Data, MIMEType: cmp.Or(p.InlineData.MIMEType, "image/png")}, nil
		}
	}
	for _, p := range parts {
		if p == nil {
			continue
		}
		if text := strings.TrimSpace(p.Text); strings.HasPrefix(text, "http") || strings.HasPrefix(text, "data:image") {
			return hrefResult(text)
		}
	}
	return nil, fmt.Errorf("gemini native: %w", ErrNoImage)
}
