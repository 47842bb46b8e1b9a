package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/video"
)

func videoError(msg string, details any) map[string]any {
	m := map[string]any{"error": msg}
	if details != nil {
		m["details"] = details
	}
	return m
}

type generateVideoReq struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
	// Wait blocks until the task finishes (bounded by the polling policy)
	// and answers with its final status.
	Wait bool `json:"wait"`
}

// POST /api/generate-video
func (s *Server) handlePostGenerateVideo(c echo.Context) error {
	var req generateVideoReq
	bindLoose(c, &req)

	if req.ImageURL == "" || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, videoError(msgVideoParamsMissing, nil))
	}
	if s.video == nil || !s.video.Configured() {
		return c.JSON(http.StatusInternalServerError, videoError(msgVideoNotConfigured, nil))
	}

	ctx := c.Request().Context()
	id, err := s.video.Submit(ctx, req.Prompt, req.ImageURL)
	if err != nil {
		var apiErr *video.APIError
		switch {
		case errors.As(err, &apiErr):
			return c.JSON(apiErr.StatusCode, videoError(msgVideoSubmitFailed, detailsOrUnknown(apiErr.Details)))
		case errors.Is(err, video.ErrNotConfigured):
			return c.JSON(http.StatusInternalServerError, videoError(msgVideoNotConfigured, nil))
		case errors.Is(err, video.ErrMalformed):
			return c.JSON(http.StatusInternalServerError, videoError(msgVideoNoTaskID, nil))
		default:
			log.Error("video submit failed", "error", err)
			return c.JSON(http.StatusInternalServerError, videoError(msgInternal, err.Error()))
		}
	}

	if !req.Wait {
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"taskId":  id,
			"message": msgVideoSubmitted,
		})
	}
	return s.waitForVideo(c, id)
}

// GET /api/video-status?taskId=...&wait=true
func (s *Server) handleGetVideoStatus(c echo.Context) error {
	id := strings.TrimSpace(c.QueryParam("taskId"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, videoError(msgTaskIDMissing, nil))
	}
	if s.video == nil {
		return c.JSON(http.StatusInternalServerError, videoError(msgVideoNotConfigured, nil))
	}

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		return s.waitForVideo(c, id)
	}

	task, err := s.video.Status(c.Request().Context(), id)
	if err != nil {
		return s.videoStatusError(c, err)
	}
	return c.JSON(http.StatusOK, statusReply(task))
}

func (s *Server) waitForVideo(c echo.Context, id string) error {
	task, err := s.video.Wait(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, statusReply(task))
	case errors.Is(err, video.ErrTimeout) && task != nil:
		reply := statusReply(task)
		reply["error"] = msgVideoTimeout
		return c.JSON(http.StatusAccepted, reply)
	case cancelled(c):
		return nil
	default:
		return s.videoStatusError(c, err)
	}
}

func (s *Server) videoStatusError(c echo.Context, err error) error {
	var apiErr *video.APIError
	switch {
	case errors.As(err, &apiErr):
		return c.JSON(apiErr.StatusCode, videoError(msgVideoStatusFailed, detailsOrUnknown(apiErr.Details)))
	case errors.Is(err, video.ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, videoError(msgVideoNotConfigured, nil))
	case errors.Is(err, video.ErrMalformed):
		return c.JSON(http.StatusInternalServerError, videoError(msgVideoNoStatus, nil))
	default:
		log.Error("video status failed", "error", err)
		return c.JSON(http.StatusInternalServerError, videoError(msgInternal, err.Error()))
	}
}

func statusReply(task *video.Task) map[string]any {
	reply := map[string]any{
		"taskId":  task.ID,
		"status":  task.Status,
		"message": video.StatusMessage(task.Status),
	}
	switch {
	case task.Status == video.StatusSucceeded && task.VideoURL != "":
		reply["videoUrl"] = task.VideoURL
		reply["success"] = true
	case task.Status == video.StatusFailed:
		reply["error"] = detailsOr(task.Error, msgVideoSubmitFailed)
	}
	return reply
}

func detailsOrUnknown(details any) any {
	return detailsOr(details, msgUnknown)
}

func detailsOr(details any, fallback string) any {
	if details == nil || details == "" {
		return fallback
	}
	return details
}
