package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/pkg/schema"
)

type capturedChat struct {
	auth string
	body map[string]any
}

func fakeChatServer(t *testing.T, captured *capturedChat, reply func(w http.ResponseWriter, stream bool)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))
		stream, _ := captured.body["stream"].(bool)
		reply(w, stream)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
}

func TestOpenAIInferMultimodal(t *testing.T) {
	var got capturedChat
	srv := fakeChatServer(t, &got, func(w http.ResponseWriter, _ bool) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("hello back"))
	})

	inf := NewOpenAIInferencer("server-key", "text-model").ChangeBaseURL(srv.URL)
	out, err := inf.Infer(context.Background(), &Request{
		Model:       "vision-model",
		System:      "be brief",
		Messages:    []schema.ChatMessage{schema.UserMessage("what is this", "data:image/png;base64,AAAA")},
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	assert.Equal(t, "Bearer server-key", got.auth)
	assert.Equal(t, "vision-model", got.body["model"])
	assert.InDelta(t, 0.5, got.body["temperature"], 1e-9)

	messages := got.body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestOpenAIKeyOverride(t *testing.T) {
	var got capturedChat
	srv := fakeChatServer(t, &got, func(w http.ResponseWriter, _ bool) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion("ok"))
	})

	inf := NewOpenAIInferencer("", "m").ChangeBaseURL(srv.URL)

	_, err := inf.Infer(context.Background(), &Request{Messages: []schema.ChatMessage{schema.UserMessage("hi")}})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = inf.Infer(context.Background(), &Request{
		Messages: []schema.ChatMessage{schema.UserMessage("hi")},
		APIKey:   "client-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer client-key", got.auth)
	assert.Equal(t, "m", got.body["model"])
}

func TestOpenAIInferEmpty(t *testing.T) {
	var got capturedChat
	srv := fakeChatServer(t, &got, func(w http.ResponseWriter, _ bool) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completion(""))
	})

	inf := NewOpenAIInferencer("k", "m").ChangeBaseURL(srv.URL)
	_, err := inf.Infer(context.Background(), &Request{Messages: []schema.ChatMessage{schema.UserMessage("hi")}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIStream(t *testing.T) {
	var got capturedChat
	srv := fakeChatServer(t, &got, func(w http.ResponseWriter, stream bool) {
		assert.True(t, stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	inf := NewOpenAIInferencer("k", "m").ChangeBaseURL(srv.URL)

	var out []string
	for delta, err := range inf.Stream(context.Background(), &Request{
		Messages: []schema.ChatMessage{
			{Role: schema.RoleUser, Content: "hi"},
			{Role: schema.RoleAssistant, Content: "hello"},
			{Role: schema.RoleUser, Content: "again"},
		},
	}) {
		require.NoError(t, err)
		out = append(out, delta)
	}
	assert.Equal(t, []string{"Hel", "lo"}, out)
	assert.Len(t, got.body["messages"], 3)
}

func TestOpenAIStreamMissingKey(t *testing.T) {
	inf := NewOpenAIInferencer("", "m")

	var errs []error
	for _, err := range inf.Stream(context.Background(), &Request{}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingAPIKey)
}

func TestRequestHasImages(t *testing.T) {
	req := &Request{Messages: []schema.ChatMessage{schema.UserMessage("a")}}
	assert.False(t, req.HasImages())

	req.Messages = append(req.Messages, schema.UserMessage("b", "https://img.example/x.png"))
	assert.True(t, req.HasImages())
}

func TestImagePart(t *testing.T) {
	inline := ImagePart("data:image/png;base64,iVBORw0K")
	require.NotNil(t, inline)
	require.NotNil(t, inline.InlineData)
	assert.Equal(t, "image/png", inline.InlineData.MIMEType)

	remote := ImagePart("https://img.example/a.webp?sig=1")
	require.NotNil(t, remote)
	require.NotNil(t, remote.FileData)
	assert.Equal(t, "image/webp", remote.FileData.MIMEType)

	assert.Nil(t, ImagePart("data:image/png,notbase64"))
}
