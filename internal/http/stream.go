package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// uiStream writes a UI message stream: server-sent events whose data lines
// are JSON chunks, terminated by [DONE]. Headers are sent with the first
// chunk.
type uiStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	textID  string
	inText  bool
	closed  bool
}

func newUIStream(w http.ResponseWriter) *uiStream {
	f, _ := w.(http.Flusher)
	return &uiStream{w: w, flusher: f, textID: uuid.NewString()}
}

func (s *uiStream) open() error {
	if s.started {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("x-vercel-ai-ui-message-stream", "v1")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return s.send(map[string]any{"type": "start"})
}

// Delta relays one text fragment, opening the text part if needed.
func (s *uiStream) Delta(text string) error {
	if err := s.open(); err != nil {
		return err
	}
	if !s.inText {
		if err := s.send(map[string]any{"type": "text-start", "id": s.textID}); err != nil {
			return err
		}
		s.inText = true
	}
	return s.send(map[string]any{"type": "text-delta", "id": s.textID, "delta": text})
}

// Finish closes the text part and the stream.
func (s *uiStream) Finish() error {
	if err := s.open(); err != nil {
		return err
	}
	if s.inText {
		if err := s.send(map[string]any{"type": "text-end", "id": s.textID}); err != nil {
			return err
		}
		s.inText = false
	}
	if err := s.send(map[string]any{"type": "finish"}); err != nil {
		return err
	}
	return s.done()
}

// Fail reports an error to the client and closes the stream.
func (s *uiStream) Fail(msg string) error {
	if err := s.open(); err != nil {
		return err
	}
	if err := s.send(map[string]any{"type": "error", "errorText": msg}); err != nil {
		return err
	}
	return s.done()
}

func (s *uiStream) done() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *uiStream) send(chunk map[string]any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(s.w, "data: "+string(data)+"\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *uiStream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
