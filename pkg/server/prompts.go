package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/catalog"
	"atelier/pkg/utils"
)

// GET /api/prompts?kind=&category=
func (s *Server) handleListPrompts(c echo.Context) error {
	kind := catalog.Kind(c.QueryParam("kind"))
	templates := s.prompts.List(kind, c.QueryParam("category"))
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"templates": templates,
		"count":     len(templates),
	})
}

// GET /api/prompts/categories?kind=
func (s *Server) handleGetPromptCategories(c echo.Context) error {
	kind := catalog.Kind(c.QueryParam("kind"))
	if kind == "" {
		kind = catalog.KindCreative
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"kind":       kind,
		"categories": s.prompts.Categories(kind),
	})
}

// GET /api/prompts/:id
func (s *Server) handleGetPrompt(c echo.Context) error {
	t, ok := s.prompts.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, utils.ErrJSON(msgPromptNotFound))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "template": t})
}

// POST /api/prompts
func (s *Server) handlePostPrompt(c echo.Context) error {
	var t catalog.Template
	if err := c.Bind(&t); err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrDetails(catalog.ErrInvalid.Error(), err.Error()))
	}

	created, err := s.prompts.Create(t)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalid) {
			return c.JSON(http.StatusBadRequest, utils.ErrJSON(err.Error()))
		}
		log.Error("creating prompt", "title", t.Title, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgInternal))
	}

	log.Info("prompt created", "id", created.ID, "kind", created.Kind)
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "template": created})
}

// DELETE /api/prompts/:id
func (s *Server) handleDeletePrompt(c echo.Context) error {
	id := c.Param("id")
	switch err := s.prompts.Delete(id); {
	case errors.Is(err, catalog.ErrBuiltin):
		return c.JSON(http.StatusForbidden, utils.ErrJSON(msgPromptBuiltin))
	case errors.Is(err, catalog.ErrNotFound):
		return c.JSON(http.StatusNotFound, utils.ErrJSON(msgPromptNotFound))
	case err != nil:
		log.Error("deleting prompt", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgInternal))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": id})
}
