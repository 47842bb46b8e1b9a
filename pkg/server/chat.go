package server

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/inference"
	"atelier/pkg/schema"
	"atelier/pkg/utils"
)

type chatReq struct {
	Messages []schema.ChatMessage `json:"messages"`
	Prompt   string               `json:"prompt"`
	Images   []string             `json:"images"`
	Stream   *bool                `json:"stream"`
	APIKey   string               `json:"apiKey"`
	Model    string               `json:"model"`
}

// POST /api/chat
func (s *Server) handlePostChat(c echo.Context) error {
	var req chatReq
	bindLoose(c, &req)

	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		messages = []schema.ChatMessage{schema.UserMessage(req.Prompt, req.Images...)}
	}
	if len(messages) == 0 {
		messages = []schema.ChatMessage{{Role: schema.RoleUser, Content: "Hello!"}}
	}

	ir := &inference.Request{Messages: messages, APIKey: strings.TrimSpace(req.APIKey)}
	ir.Model = strings.TrimSpace(req.Model)
	if ir.Model == "" {
		ir.Model = s.cfg.Chat.TextModel
		if len(req.Images) > 0 || ir.HasImages() {
			ir.Model = s.cfg.Chat.VisionModel
		}
	}
	log.Info("chat", "model", ir.Model, "messages", len(messages))

	return s.relay(c, s.chat, ir, streamRequested(req.Stream), func(err error) (int, any) {
		return http.StatusInternalServerError, utils.ErrJSON(msgChatFailed)
	})
}

type coachChatReq struct {
	Messages json.RawMessage `json:"messages"`
	Stream   *bool           `json:"stream"`
	APIKey   string          `json:"apiKey"`
	Model    any             `json:"model"`
}

// POST /api/coach-communication
func (s *Server) handlePostCoachCommunication(c echo.Context) error {
	var req coachChatReq
	bindLoose(c, &req)

	ir := &inference.Request{
		System:      s.trainerPrompt,
		Messages:    trainerMessages(req.Messages),
		Temperature: 0.5,
		APIKey:      strings.TrimSpace(req.APIKey),
	}
	if model, ok := req.Model.(string); ok {
		ir.Model = strings.TrimSpace(model)
	}
	log.Info("coach communication", "model", ir.Model, "messages", len(ir.Messages))

	return s.relay(c, s.coach, ir, streamRequested(req.Stream), func(err error) (int, any) {
		if errors.Is(err, inference.ErrMissingAPIKey) {
			return http.StatusInternalServerError, utils.ErrJSON(msgGeminiKeyMissing)
		}
		return http.StatusInternalServerError, utils.ErrJSON(msgGenerateRetry)
	})
}

// trainerMessages keeps object entries of a messages array, mapping the role
// to user or assistant and non-string content to "". Anything but an array
// becomes a single empty user turn.
func trainerMessages(raw json.RawMessage) []schema.ChatMessage {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []schema.ChatMessage{{Role: schema.RoleUser, Content: ""}}
	}

	out := make([]schema.ChatMessage, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role := schema.RoleAssistant
		if m["role"] == schema.RoleUser {
			role = schema.RoleUser
		}
		content, _ := m["content"].(string)
		out = append(out, schema.ChatMessage{Role: role, Content: content})
	}
	return out
}

func streamRequested(v *bool) bool {
	return v == nil || *v
}

// relay answers with the whole completion, or streams it as SSE frames of
// {"content": delta} closed by [DONE]. Errors before the first delta are
// answered with failure as JSON; later errors become an in-band
// {"error":"Stream error"} frame. A client disconnect ends the stream quietly.
func (s *Server) relay(c echo.Context, inf inference.Inferencer, req *inference.Request, stream bool, failure func(error) (int, any)) error {
	ctx := c.Request().Context()

	if !stream {
		out, err := inf.Infer(ctx, req)
		if err != nil && !errors.Is(err, inference.ErrEmptyCompletion) {
			if cancelled(c) {
				return nil
			}
			log.Error("completion failed", "model", req.Model, "error", err)
			return c.JSON(failure(err))
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "content": out})
	}

	next, stop := iter.Pull2(inf.Stream(ctx, req))
	defer stop()

	delta, err, ok := next()
	if ok && err != nil {
		if cancelled(c) || errors.Is(err, context.Canceled) {
			return nil
		}
		log.Error("stream failed to start", "model", req.Model, "error", err)
		return c.JSON(failure(err))
	}

	w, werr := utils.NewSSEWriter(c)
	if werr != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(werr.Error()))
	}
	defer w.Close()

	for ; ok; delta, err, ok = next() {
		if err != nil {
			if cancelled(c) || errors.Is(err, context.Canceled) {
				log.Debug("stream cancelled by client")
				return nil
			}
			log.Error("stream error", "model", req.Model, "error", err)
			_ = w.Data(map[string]string{"error": msgStreamErr})
			return nil
		}
		if delta == "" {
			continue
		}
		if err := w.Data(map[string]string{"content": delta}); err != nil {
			log.Debug("stream write failed", "error", err)
			return nil
		}
	}
	return w.Done()
}
