package schema

import (
	"encoding/json"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation as sent by the browser. Content is
// either a plain string or a list of typed parts; a list is kept in Parts and
// leaves Content empty.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content string        `json:"content"`
	Parts   []ContentPart `json:"-"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// UserMessage builds a user turn with optional image references.
func UserMessage(text string, images ...string) ChatMessage {
	if len(images) == 0 {
		return ChatMessage{Role: RoleUser, Content: text}
	}
	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, ContentPart{Type: "text", Text: text})
	for _, u := range images {
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: u}})
	}
	return ChatMessage{Role: RoleUser, Parts: parts}
}

// Text returns the string content, or the text parts joined by newlines.
func (m ChatMessage) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the URLs of image parts in order.
func (m ChatMessage) Images() []string {
	var urls []string
	for _, p := range m.Parts {
		if p.ImageURL != nil && p.ImageURL.URL != "" {
			urls = append(urls, p.ImageURL.URL)
		}
	}
	return urls
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}
	if len(m.Parts) > 0 {
		return json.Marshal(wire{Role: m.Role, Content: m.Parts})
	}
	return json.Marshal(wire{Role: m.Role, Content: m.Content})
}

// UnmarshalJSON tolerates loosely shaped browser input: a non-string role is
// dropped and content that is neither a string nor a part list is ignored.
func (m *ChatMessage) UnmarshalJSON(b []byte) error {
	var raw struct {
		Role    any             `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = ChatMessage{}
	m.Role, _ = raw.Role.(string)

	content := strings.TrimSpace(string(raw.Content))
	switch {
	case strings.HasPrefix(content, `"`):
		return json.Unmarshal(raw.Content, &m.Content)
	case strings.HasPrefix(content, "["):
		var parts []ContentPart
		if err := json.Unmarshal(raw.Content, &parts); err == nil {
			m.Parts = parts
		}
	}
	return nil
}
