package server

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"atelier/pkg/utils"
)

type htmlFile struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Href  string `json:"href"`
}

// GET /api/html
func (s *Server) handleListHTML(c echo.Context) error {
	entries, err := os.ReadDir(s.cfg.HTMLDir)
	if err != nil && !os.IsNotExist(err) {
		log.Error("listing html", "dir", s.cfg.HTMLDir, "error", err)
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(msgInternal))
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && utils.HasSuffixFold(e.Name(), ".html") {
			names = append(names, e.Name())
		}
	}
	collate.New(language.SimplifiedChinese).SortStrings(names)

	files := make([]htmlFile, 0, len(names))
	for _, name := range names {
		files = append(files, htmlFile{
			Name:  name,
			Title: name[:len(name)-len(".html")],
			Href:  "/html/" + url.PathEscape(name),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "files": files})
}

// GET /html/:file, GET /api/html/:file
func (s *Server) handleGetHTML(c echo.Context) error {
	target, ok := s.htmlPath(c.Param("file"))
	if !ok {
		return c.String(http.StatusNotFound, "Not Found")
	}
	html, err := os.ReadFile(target)
	if err != nil {
		return c.String(http.StatusNotFound, "Not Found")
	}
	return c.Blob(http.StatusOK, "text/html; charset=utf-8", html)
}

// htmlPath resolves file inside HTMLDir, rejecting anything that is not an
// .html file or escapes the directory.
func (s *Server) htmlPath(file string) (string, bool) {
	decoded, err := url.PathUnescape(file)
	if err != nil || !utils.HasSuffixFold(decoded, ".html") {
		return "", false
	}

	base, err := filepath.Abs(s.cfg.HTMLDir)
	if err != nil {
		return "", false
	}
	target, err := filepath.Abs(filepath.Join(base, decoded))
	if err != nil || !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
