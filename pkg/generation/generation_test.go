package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arkm "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
	"google.golang.org/genai"

	"atelier/pkg/inference"
)

type fakeGenerator struct {
	vendor Vendor
	got    *Request
}

func (f *fakeGenerator) Vendor() Vendor { return f.vendor }

func (f *fakeGenerator) Generate(_ context.Context, req *Request) (*Result, error) {
	f.got = req
	return &Result{URL: "https://img.example/" + string(f.vendor) + ".png"}, nil
}

func TestDispatcherSelect(t *testing.T) {
	doubao := &fakeGenerator{vendor: VendorDoubao}
	gemini := &fakeGenerator{vendor: VendorGemini}
	d := NewDispatcher(VendorGemini, doubao, gemini)

	tests := []struct {
		model string
		want  Vendor
	}{
		{"Doubao", VendorDoubao},
		{"doubao", VendorDoubao},
		{"Gemini", VendorGemini},
		{"", VendorGemini},
		{"anything", VendorGemini},
	}
	for _, tt := range tests {
		g, err := d.Select(tt.model)
		require.NoError(t, err, tt.model)
		assert.Equal(t, tt.want, g.Vendor(), tt.model)
	}

	_, err := d.Select("gemini-native")
	assert.ErrorIs(t, err, ErrUnknownVendor)
}

func TestDispatcherGenerateTagsVendor(t *testing.T) {
	doubao := &fakeGenerator{vendor: VendorDoubao}
	d := NewDispatcher(VendorGeminiNative, doubao, &fakeGenerator{vendor: VendorGeminiNative})

	res, err := d.Generate(context.Background(), &Request{Prompt: "a cat", Model: "Doubao", Images: []string{"https://ref"}})
	require.NoError(t, err)
	assert.Equal(t, VendorDoubao, res.Vendor)
	assert.Equal(t, "https://img.example/doubao.png", res.Href())
	assert.Equal(t, []string{"https://ref"}, doubao.got.Images)

	res, err = d.Generate(context.Background(), &Request{Prompt: "a cat"})
	require.NoError(t, err)
	assert.Equal(t, VendorGeminiNative, res.Vendor)
}

func TestResultHref(t *testing.T) {
	assert.Equal(t, "https://x/y.png", (&Result{URL: "https://x/y.png", Data: []byte("ignored")}).Href())
	assert.Equal(t, "data:image/png;base64,aGk=", (&Result{Data: []byte("hi")}).Href())
	assert.Equal(t, "data:image/jpeg;base64,aGk=", (&Result{Data: []byte("hi"), MIMEType: "image/jpeg"}).Href())
}

func TestDecodeDoubao(t *testing.T) {
	res, err := decodeDoubao(&arkm.ImagesResponse{Data: []*arkm.Image{{Url: volcengine.String("https://ark/img.png")}}})
	require.NoError(t, err)
	assert.Equal(t, "https://ark/img.png", res.Href())

	res, err = decodeDoubao(&arkm.ImagesResponse{Data: []*arkm.Image{{B64Json: volcengine.String("aGk=")}}})
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), res.Data)
	assert.Equal(t, "data:image/png;base64,aGk=", res.Href())

	_, err = decodeDoubao(&arkm.ImagesResponse{})
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = decodeDoubao(&arkm.ImagesResponse{Data: []*arkm.Image{{}}})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestDecodeGeminiChat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"image_url", `{"choices":[{"message":{"content":"","images":[{"image_url":{"url":"https://g/1.png"}}]}}]}`, "https://g/1.png"},
		{"url", `{"choices":[{"message":{"images":[{"url":"https://g/2.png"}]}}]}`, "https://g/2.png"},
		{"b64", `{"choices":[{"message":{"images":[{"b64_json":"aGk="}]}}]}`, "data:image/png;base64,aGk="},
		{"data url in images", `{"choices":[{"message":{"images":[{"image_url":{"url":"data:image/webp;base64,aGk="}}]}}]}`, "data:image/webp;base64,aGk="},
		{"content url", `{"choices":[{"message":{"content":" https://g/3.png "}}]}`, "https://g/3.png"},
		{"content data", `{"choices":[{"message":{"content":"data:image/png;base64,aGk="}}]}`, "data:image/png;base64,aGk="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := decodeGeminiChat([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Href())
		})
	}

	for _, raw := range []string{
		`{"choices":[{"message":{"content":"I cannot draw that"}}]}`,
		`{"choices":[]}`,
		`{"choices":[{"message":{"images":[{}]}}]}`,
	} {
		_, err := decodeGeminiChat([]byte(raw))
		assert.ErrorIs(t, err, ErrNoImage, raw)
	}
}

func TestDecodeGeminiNative(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			genai.NewPartFromText("here you go"),
			genai.NewPartFromBytes([]byte("png"), "image/png"),
		}},
	}}}
	res, err := decodeGeminiNative(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), res.Data)
	assert.Equal(t, "image/png", res.MIMEType)

	resp.Candidates[0].Content.Parts = []*genai.Part{genai.NewPartFromText("https://g/native.png")}
	res, err = decodeGeminiNative(resp)
	require.NoError(t, err)
	assert.Equal(t, "https://g/native.png", res.URL)

	resp.Candidates[0].Content.Parts = []*genai.Part{genai.NewPartFromText("no")}
	_, err = decodeGeminiNative(resp)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = decodeGeminiNative(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestGeminiGenerateSendsReferences(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer client-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"","images":[{"type":"image_url","image_url":{"url":"https://g/out.png"}}]}}]}`)
	}))
	defer srv.Close()

	g := NewGemini("", srv.URL, "gemini-3.0-pro-image-preview", 0)

	_, err := g.Generate(context.Background(), &Request{Prompt: "p"})
	assert.ErrorIs(t, err, inference.ErrMissingAPIKey)

	res, err := g.Generate(context.Background(), &Request{
		Prompt: "make it blue",
		Images: []string{"https://ref/1.png", "data:image/png;base64,aGk="},
		APIKey: "client-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://g/out.png", res.Href())

	assert.Equal(t, "gemini-3.0-pro-image-preview", body["model"])
	content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 3)
	assert.Equal(t, "make it blue", content[0].(map[string]any)["text"])
}

func TestGeminiNativeUsesBaseURL(t *testing.T) {
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, key = r.URL.Path, r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"AQI="}}]}}]}`)
	}))
	defer srv.Close()

	g := NewGeminiNative("server-key", "gemini-2.5-flash-image", 0).ChangeBaseURL(srv.URL)
	res, err := g.Generate(context.Background(), &Request{Prompt: "a fox"})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.5-flash-image:generateContent"), path)
	assert.Equal(t, "server-key", key)
	assert.Equal(t, []byte{1, 2}, res.Data)
	assert.Equal(t, "image/png", res.MIMEType)
}

func TestDoubaoMissingKey(t *testing.T) {
	d := NewDoubao("", "http://127.0.0.1:1", "seedream", "", 0)
	_, err := d.Generate(context.Background(), &Request{Prompt: "p"})
	assert.ErrorIs(t, err, inference.ErrMissingAPIKey)
}
