package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/coach"
	"atelier/pkg/inference"
	"atelier/pkg/schema"
	"atelier/pkg/utils"
)

// POST /api/coach-routes
func (s *Server) handlePostCoachRoutes(c echo.Context) error {
	var req coach.Request
	bindLoose(c, &req)

	if req.Empty() {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgMaterialMissing))
	}

	input, err := req.Input().JSON()
	if err != nil {
		log.Error("encoding coach input", "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgGenerateRetry))
	}

	files := req.Files()
	if log.GetLevel() <= log.DebugLevel {
		if tokens, err := utils.NumTokens(coach.SystemPrompt + input); err == nil {
			log.Debug("coach routes input", "tokens", tokens)
		}
	}
	log.Info("generating coach routes", "chars", len([]rune(input)), "files", len(files), "routes", coach.ClampRouteCount(req.RouteCount))

	out, err := s.ark.Respond(c.Request().Context(), &inference.ResponseRequest{
		Model:       strings.TrimSpace(req.Model),
		System:      coach.SystemPrompt,
		Text:        input,
		FileIDs:     files,
		Temperature: 0.4,
		APIKey:      strings.TrimSpace(req.APIKey),
	})
	if err != nil {
		log.Error("coach routes failed", "error", err)
		if errors.Is(err, inference.ErrMissingAPIKey) {
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgArkKeyMissing))
		}
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgGenerateRetry))
	}

	data, err := coach.Extract(out)
	if err != nil {
		log.Warn("coach routes output is not JSON, returning raw", "error", err, "output", utils.LimitStr(out, 200))
		return c.JSON(http.StatusOK, map[string]any{"success": true, "data": nil, "raw": out})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": data})
}

// GET /api/coach-routes/schema
func (s *Server) handleGetCoachRoutesSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, schema.CoachRoutesSchema)
}
