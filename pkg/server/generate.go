package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/generation"
	"atelier/pkg/utils"
)

type generateReq struct {
	Prompt string   `json:"prompt"`
	Image  string   `json:"image"`
	Images []string `json:"images"`
	Model  string   `json:"model"`
	APIKey string   `json:"apiKey"`
}

// POST /api/generate
func (s *Server) handlePostGenerate(c echo.Context) error {
	var req generateReq
	bindLoose(c, &req)

	if strings.TrimSpace(req.Prompt) == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgPromptMissing))
	}

	images := req.Images
	if images == nil && req.Image != "" {
		images = []string{req.Image}
	}

	result, err := s.images.Generate(c.Request().Context(), &generation.Request{
		Prompt: req.Prompt,
		Images: images,
		Model:  req.Model,
		APIKey: strings.TrimSpace(req.APIKey),
	})
	if err != nil {
		log.Error("image generation failed", "model", req.Model, "error", err)
		msg := err.Error()
		if msg == "" {
			msg = msgImageGenFailed
		}
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msg))
	}

	href := result.Href()
	log.Info("image generated", "vendor", result.Vendor, "inline", result.URL == "")
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"imageUrl": href,
		"images":   []string{href},
		"count":    1,
	})
}
