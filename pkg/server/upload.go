package server

import (
	"bytes"
	"cmp"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"atelier/pkg/inference"
	"atelier/pkg/utils"
)

const (
	maxImageUpload = 10 << 20
	maxAttachment  = 20 << 20
)

// POST /api/upload
func (s *Server) handlePostUpload(c echo.Context) error {
	header, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgImageMissing))
	}

	mime := header.Header.Get(echo.HeaderContentType)
	if !utils.StringContains(mime, false, "image/") {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgImageOnly))
	}
	if header.Size > maxImageUpload {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgImageTooLarge))
	}

	data, err := readFormFile(header)
	if err != nil {
		log.Error("reading upload", "filename", header.Filename, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgUploadFailed))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"url":      utils.DataURL(mime, data),
		"filename": header.Filename,
		"size":     header.Size,
		"type":     mime,
	})
}

// POST /api/parse-attachment
func (s *Server) handlePostParseAttachment(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgFileMissing))
	}
	if header.Size > maxAttachment {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgFileTooLarge))
	}

	name := header.Filename
	mime := header.Header.Get(echo.HeaderContentType)

	switch {
	case utils.StringContains(mime, false, "pdf") || utils.HasSuffixFold(name, ".pdf"):
		return s.parsePDF(c, header, name, mime)
	case strings.HasPrefix(mime, "text/") || utils.HasSuffixFold(name, ".txt", ".md", ".markdown"):
		data, err := readFormFile(header)
		if err != nil {
			log.Error("reading attachment", "filename", name, "error", err)
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgParseFailed))
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success":  true,
			"filename": name,
			"type":     "text",
			"text":     strings.TrimSpace(string(data)),
		})
	default:
		return c.JSON(http.StatusBadRequest, utils.ErrJSON(msgFileUnsupported))
	}
}

func (s *Server) parsePDF(c echo.Context, header *multipart.FileHeader, name, mime string) error {
	data, err := readFormFile(header)
	if err != nil {
		log.Error("reading attachment", "filename", name, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgParseFailed))
	}

	uploadName := utils.ASCIIFilename(name)
	file, err := s.ark.UploadFile(
		c.Request().Context(),
		bytes.NewReader(data),
		uploadName,
		cmp.Or(mime, "application/pdf"),
		strings.TrimSpace(c.FormValue("apiKey")),
	)
	if err != nil {
		if errors.Is(err, inference.ErrMissingAPIKey) {
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgArkKeyMissing))
		}
		log.Error("uploading attachment", "filename", name, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrDetails(msgParseFailed, err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"filename":       name,
		"type":           "pdf",
		"fileId":         file.ID,
		"status":         file.Status,
		"uploadFilename": uploadName,
	})
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
