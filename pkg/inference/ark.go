package inference

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// File readiness polling, in the order Ark reports terminal states.
const (
	FileStatusActive    = "active"
	FileStatusProcessed = "processed"
	FileStatusError     = "error"
	FileStatusFailed    = "failed"
	FileStatusPending   = "processing"
)

const (
	filePollAttempts = 20
	filePollInterval = time.Second
)

var errFileNotReady = errors.New("file not ready")

// ArkClient wraps the Volcengine Ark OpenAI-compatible surface: the Responses
// API, the Files API and bot chat completions.
type ArkClient struct {
	client  *openai.Client
	apiKey  string
	baseURL string
	model   string

	pollInterval time.Duration
	pollAttempts uint64
}

func NewArkClient(apiKey, baseURL, model string, timeout time.Duration) *ArkClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := openai.NewClient(opts...)
	return &ArkClient{
		client:       &client,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		pollInterval: filePollInterval,
		pollAttempts: filePollAttempts,
	}
}

func (a *ArkClient) Model() string {
	return a.model
}

func (a *ArkClient) key(override string) (option.RequestOption, error) {
	key := cmp.Or(override, a.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return option.WithAPIKey(key), nil
}

// ResponseRequest is one Responses API turn: an optional system message and a
// user message carrying uploaded files followed by text.
type ResponseRequest struct {
	Model       string
	System      string
	Text        string
	FileIDs     []string
	Temperature float64
	APIKey      string
}

// Respond runs a Responses API call and returns its text output.
func (a *ArkClient) Respond(ctx context.Context, req *ResponseRequest) (string, error) {
	key, err := a.key(req.APIKey)
	if err != nil {
		return "", err
	}

	content := make(responses.ResponseInputMessageContentListParam, 0, len(req.FileIDs)+1)
	for _, id := range req.FileIDs {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputFile: &responses.ResponseInputFileParam{FileID: openai.String(id)},
		})
	}
	content = append(content, responses.ResponseInputContentUnionParam{
		OfInputText: &responses.ResponseInputTextParam{Text: req.Text},
	})

	input := make(responses.ResponseInputParam, 0, 2)
	if req.System != "" {
		input = append(input, responses.ResponseInputItemParamOfMessage(req.System, responses.EasyInputMessageRoleSystem))
	}
	input = append(input, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))

	params := responses.ResponseNewParams{
		Model: cmp.Or(req.Model, a.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	log.Debug("ark response", "model", params.Model, "files", len(req.FileIDs), "chars", len(req.Text))
	resp, err := a.client.Responses.New(ctx, params, key)
	if err != nil {
		return "", fmt.Errorf("ark responses error: %w", err)
	}

	if text := strings.TrimSpace(resp.OutputText()); text != "" {
		return text, nil
	}
	return ResponseText([]byte(resp.RawJSON())), nil
}

// ResponseText pulls the text out of a raw Responses API body. It prefers
// output_text, then the output_text parts of message items, and finally a
// chat-completions shaped choices[0].message.content.
func ResponseText(raw []byte) string {
	var r struct {
		OutputText *string `json:"output_text"`
		Output     []struct {
			Type    string `json:"type"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return ""
	}

	if r.OutputText != nil && strings.TrimSpace(*r.OutputText) != "" {
		return strings.TrimSpace(*r.OutputText)
	}

	if r.Output != nil {
		var b strings.Builder
		for _, item := range r.Output {
			if item.Type != "message" {
				continue
			}
			for _, c := range item.Content {
				if c.Type == "output_text" {
					b.WriteString(c.Text)
				}
			}
		}
		return strings.TrimSpace(b.String())
	}

	if len(r.Choices) > 0 {
		if s, ok := r.Choices[0].Message.Content.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// FileObject is the subset of an uploaded file the routes report back.
type FileObject struct {
	ID       string
	Status   string
	Filename string
}

// UploadFile uploads r for use as a Responses API input_file and waits a
// bounded time for Ark to finish processing it. A file still processing when
// the wait ends is returned with its last status.
func (a *ArkClient) UploadFile(ctx context.Context, r io.Reader, filename, mime, apiKey string) (*FileObject, error) {
	key, err := a.key(apiKey)
	if err != nil {
		return nil, err
	}

	created, err := a.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(r, filename, mime),
		Purpose: openai.FilePurposeUserData,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("ark file upload error: %w", err)
	}
	log.Info("uploaded file", "id", created.ID, "filename", filename, "status", created.Status)

	file := &FileObject{ID: created.ID, Status: strings.ToLower(string(created.Status)), Filename: cmp.Or(created.Filename, filename)}
	if fileReady(file.Status) {
		return file, nil
	}

	poll := func() error {
		got, err := a.client.Files.Get(ctx, file.ID, key)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("ark file status error: %w", err))
		}
		file.Status = strings.ToLower(string(got.Status))
		if !fileReady(file.Status) {
			return errFileNotReady
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.pollInterval), a.pollAttempts), ctx)
	err = backoff.Retry(poll, policy)
	switch {
	case err == nil:
	case errors.Is(err, errFileNotReady):
		log.Warn("file still processing", "id", file.ID, "status", file.Status)
	default:
		return nil, err
	}

	file.Status = cmp.Or(file.Status, FileStatusPending)
	return file, nil
}

func fileReady(status string) bool {
	switch strings.ToLower(status) {
	case FileStatusActive, FileStatusProcessed, FileStatusError, FileStatusFailed:
		return true
	}
	return false
}

// BotChat sends a single user prompt to an Ark bot (an application with
// tools such as web search) and returns the reply.
func (a *ArkClient) BotChat(ctx context.Context, botID, prompt, apiKey string) (string, error) {
	key, err := a.key(apiKey)
	if err != nil {
		return "", err
	}
	if botID == "" {
		return "", errors.New("ark bot id is not configured")
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    botID,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}, key, option.WithBaseURL(a.baseURL+"/bots/"))
	if err != nil {
		return "", fmt.Errorf("ark bot error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
