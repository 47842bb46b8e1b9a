package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleGetRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service": "Atelier Content API",
		"status":  "ok",
		"video":   s.video != nil && s.video.Configured(),
	})
}
