package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/utils"
)

const minSummaryRunes = 50

var errNoContent = errors.New("summary too short")

// summarizeURL asks the Ark bot to read and summarize an article. Short
// replies are errors so the cache does not keep them.
func (s *Server) summarizeURL(ctx context.Context, u string) (string, error) {
	content, err := s.ark.BotChat(ctx, s.cfg.Ark.BotID, msgSummaryPrompt+u, "")
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) < minSummaryRunes {
		return "", errNoContent
	}
	return content, nil
}

// POST /api/fetch-url
func (s *Server) handlePostFetchURL(c echo.Context) error {
	var req struct {
		URL any `json:"url"`
	}
	bindLoose(c, &req)

	raw, ok := req.URL.(string)
	if !ok || raw == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgURLMissing))
	}
	if _, err := utils.ParseWebURL(raw); err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgURLInvalid))
	}

	content, err := s.summaries.Get(c.Request().Context(), raw)
	switch {
	case errors.Is(err, errNoContent):
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgURLNoContent))
	case err != nil:
		log.Error("fetch url", "url", raw, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"content": content,
		"title":   "",
	})
}
