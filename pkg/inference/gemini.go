package inference

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"atelier/pkg/schema"
	"atelier/pkg/utils"
)

// GeminiInferencer talks to the Gemini API directly through genai.
type GeminiInferencer struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

func NewGeminiInferencer(apiKey string, model string) *GeminiInferencer {
	return &GeminiInferencer{
		apiKey: apiKey,
		model:  cmp.Or(model, "gemini-2.5-flash"),
	}
}

func (g *GeminiInferencer) ChangeBaseURL(baseURL string) *GeminiInferencer {
	g.baseURL = baseURL
	return g
}

func (g *GeminiInferencer) SetTimeout(d time.Duration) *GeminiInferencer {
	g.timeout = d
	return g
}

func (g *GeminiInferencer) Model() string {
	return g.model
}

// client builds a genai client for the effective key. Clients are cheap and
// keys can change per request, so none is kept.
func (g *GeminiInferencer) client(ctx context.Context, req *Request) (*genai.Client, error) {
	key := cmp.Or(req.APIKey, g.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	config := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		config.HTTPOptions.BaseURL = g.baseURL
	}
	if g.timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: g.timeout}
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

func (g *GeminiInferencer) Infer(ctx context.Context, req *Request) (string, error) {
	client, err := g.client(ctx, req)
	if err != nil {
		return "", err
	}

	model := cmp.Or(req.Model, g.model)
	contents, config := geminiContents(req)
	log.Debug("gemini generate", "model", model, "contents", len(contents))

	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (g *GeminiInferencer) Stream(ctx context.Context, req *Request) iter.Seq2[string, error] {
	client, err := g.client(ctx, req)
	if err != nil {
		return errSeq(err)
	}

	return func(yield func(string, error) bool) {
		model := cmp.Or(req.Model, g.model)
		contents, config := geminiContents(req)
		log.Debug("gemini generate stream", "model", model, "contents", len(contents))

		for chunk, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream error: %w", err))
				return
			}
			if text := chunk.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// geminiContents maps the conversation to genai contents. System turns are
// folded into the system instruction; assistant turns become model turns.
func geminiContents(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case schema.RoleSystem:
			system = append(system, m.Text())
			continue
		case schema.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Text(), genai.RoleModel))
			continue
		}

		parts := []*genai.Part{genai.NewPartFromText(m.Text())}
		for _, u := range m.Images() {
			if part := ImagePart(u); part != nil {
				parts = append(parts, part)
			}
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	return contents, config
}

// ImagePart converts an image reference to a genai part: data URLs are sent
// inline, anything else as a file URI. Undecodable data URLs yield nil.
func ImagePart(ref string) *genai.Part {
	if utils.IsDataURL(ref) {
		mime, data, err := utils.ParseDataURL(ref)
		if err != nil {
			log.Warn("dropping undecodable image", "error", err)
			return nil
		}
		return genai.NewPartFromBytes(data, mime)
	}
	return genai.NewPartFromURI(ref, imageMIME(ref))
}

func imageMIME(ref string) string {
	path, _, _ := strings.Cut(ref, "?")
	switch {
	case utils.HasSuffixFold(path, ".png"):
		return "image/png"
	case utils.HasSuffixFold(path, ".webp"):
		return "image/webp"
	case utils.HasSuffixFold(path, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
