package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/pkg/catalog"
)

func TestFetchURLCachesSummary(t *testing.T) {
	ts := newTestServer(t)
	ts.ark.bot = strings.Repeat("这篇文章讨论了内容创作。", 6)

	for range 2 {
		rec := ts.do(http.MethodPost, "/api/fetch-url", `{"url":"https://mp.weixin.qq.com/s/abc"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, ts.ark.bot, body["content"])
		assert.Equal(t, "", body["title"])
	}

	assert.Equal(t, int32(1), ts.ark.botCalls.Load())
	assert.Equal(t, "bot-1", ts.ark.botID)
	assert.Equal(t, msgSummaryPrompt+"https://mp.weixin.qq.com/s/abc", ts.ark.botPrompt)
}

func TestFetchURLShortSummaryIsNotCached(t *testing.T) {
	ts := newTestServer(t)
	ts.ark.bot = "too short"

	for range 2 {
		rec := ts.do(http.MethodPost, "/api/fetch-url", `{"url":"https://example.com/post"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgURLNoContent, decodeBody(t, rec)["error"])
	}
	assert.Equal(t, int32(2), ts.ark.botCalls.Load())
}

func TestFetchURLValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		body string
		want string
	}{
		{`{}`, msgURLMissing},
		{`{"url":42}`, msgURLMissing},
		{`{"url":""}`, msgURLMissing},
		{`{"url":"not a url"}`, msgURLInvalid},
		{`{"url":"ftp://example.com/a"}`, msgURLInvalid},
	}
	for _, tt := range tests {
		rec := ts.do(http.MethodPost, "/api/fetch-url", tt.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		assert.Equal(t, tt.want, decodeBody(t, rec)["error"], tt.body)
	}
	assert.Zero(t, ts.ark.botCalls.Load())
}

func TestFetchURLBotError(t *testing.T) {
	ts := newTestServer(t)
	ts.ark.botErr = errors.New("ark bot error: 401")

	rec := ts.do(http.MethodPost, "/api/fetch-url", `{"url":"https://example.com/post"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ark bot error: 401", decodeBody(t, rec)["error"])
}

func writeHTMLFixtures(t *testing.T, ts *testServer) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "html")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte("<p>b</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte("<p>a</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.html"), []byte("secret"), 0o644))
	ts.cfg.HTMLDir = dir
}

func TestListHTML(t *testing.T) {
	ts := newTestServer(t)
	writeHTMLFixtures(t, ts)

	rec := ts.do(http.MethodGet, "/api/html", "")
	require.Equal(t, http.StatusOK, rec.Code)

	files := decodeBody(t, rec)["files"].([]any)
	require.Len(t, files, 2)
	first := files[0].(map[string]any)
	assert.Equal(t, "a.html", first["name"])
	assert.Equal(t, "a", first["title"])
	assert.Equal(t, "/html/a.html", first["href"])
}

func TestListHTMLMissingDir(t *testing.T) {
	ts := newTestServer(t)
	ts.cfg.HTMLDir = filepath.Join(t.TempDir(), "absent")

	rec := ts.do(http.MethodGet, "/api/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["files"])
}

func TestGetHTML(t *testing.T) {
	ts := newTestServer(t)
	writeHTMLFixtures(t, ts)

	for _, target := range []string{"/html/a.html", "/api/html/a.html"} {
		rec := ts.do(http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "<p>a</p>", rec.Body.String())
	}

	for _, target := range []string{"/html/notes.txt", "/html/missing.html"} {
		rec := ts.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "Not Found", rec.Body.String(), target)
	}

	for _, target := range []string{"/html/..%2Fsecret.html", "/api/html/%2E%2E%2Fsecret.html"} {
		rec := ts.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "secret", target)
	}
}

func TestHTMLPath(t *testing.T) {
	ts := newTestServer(t)
	writeHTMLFixtures(t, ts)

	_, ok := ts.htmlPath("../secret.html")
	assert.False(t, ok)
	_, ok = ts.htmlPath("sub/../../secret.html")
	assert.False(t, ok)
	_, ok = ts.htmlPath(".html")
	assert.True(t, ok)

	got, ok := ts.htmlPath("A.HTML")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(ts.cfg.HTMLDir, "A.HTML"), got)
}

func TestPromptsList(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/prompts?kind=creative", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 5, body["count"])

	rec = ts.do(http.MethodGet, "/api/prompts?kind=creative&category=%E9%94%80%E5%94%AE%E6%88%90%E4%BA%A4", "")
	body = decodeBody(t, rec)
	templates := body["templates"].([]any)
	require.Len(t, templates, 1)
	assert.Equal(t, "creative-sales", templates[0].(map[string]any)["id"])

	body = decodeBody(t, ts.do(http.MethodGet, "/api/prompts?kind=image", ""))
	assert.EqualValues(t, 17, body["count"])

	body = decodeBody(t, ts.do(http.MethodGet, "/api/prompts?kind=article", ""))
	templates = body["templates"].([]any)
	require.Len(t, templates, 1)
	assert.Equal(t, "写作辅助", templates[0].(map[string]any)["category"])
}

func TestPromptCategories(t *testing.T) {
	ts := newTestServer(t)

	body := decodeBody(t, ts.do(http.MethodGet, "/api/prompts/categories", ""))
	assert.Equal(t, "creative", body["kind"])
	assert.Len(t, body["categories"], len(catalog.CreativeCategories))

	body = decodeBody(t, ts.do(http.MethodGet, "/api/prompts/categories?kind=image", ""))
	assert.NotEmpty(t, body["categories"])
}

func TestPromptsCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/prompts/creative-sales", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["template"].(map[string]any)["builtin"])

	rec = ts.do(http.MethodGet, "/api/prompts/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgPromptNotFound, decodeBody(t, rec)["error"])

	rec = ts.do(http.MethodPost, "/api/prompts", `{"title":"小红书标题","category":"营销文案","systemPrompt":"写 10 个标题"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)["template"].(map[string]any)
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "creative", created["kind"])
	assert.Equal(t, false, created["builtin"])

	rec = ts.do(http.MethodGet, "/api/prompts/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/prompts/creative-sales", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgPromptBuiltin, decodeBody(t, rec)["error"])

	rec = ts.do(http.MethodDelete, "/api/prompts/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/prompts/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromptsCreateInvalid(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/prompts", `{"title":"x","category":"不存在","systemPrompt":"p"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "unknown category")

	rec = ts.do(http.MethodPost, "/api/prompts", `{"kind":"image","title":"t","category":"c"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
