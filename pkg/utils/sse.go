package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("sse: response writer is not flushable")

// SSEWriter emits unnamed server-sent events of the form "data: ...\n\n".
type SSEWriter struct {
	w    *echo.Response
	fl   http.Flusher
	done bool
}

// NewSSEWriter sets the event-stream headers and returns a writer.
func NewSSEWriter(c echo.Context) (*SSEWriter, error) {
	w := c.Response()
	f, ok := w.Writer.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &SSEWriter{w: w, fl: f}, nil
}

// Data sends one frame. Strings are written verbatim; anything else is JSON.
func (s *SSEWriter) Data(data any) error {
	if s.done {
		return nil
	}
	var payload string
	switch v := data.(type) {
	case string:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.fl.Flush()
	return nil
}

// Done sends the [DONE] sentinel and closes the writer.
func (s *SSEWriter) Done() error {
	if s.done {
		return nil
	}
	err := s.Data("[DONE]")
	s.done = true
	return err
}

// Close stops further writes without sending a sentinel.
func (s *SSEWriter) Close() {
	s.done = true
}
