package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bull/ragchat/internal/chain"
	"github.com/bull/ragchat/internal/history"
)

// maxRequestBytes caps a /chat request body.
const maxRequestBytes = 1 << 20

// Asker answers turns and replays sessions. *chain.Chain implements it.
type Asker interface {
	Ask(ctx context.Context, session, input string, sink chain.Sink) (*chain.Result, error)
	History(ctx context.Context, session string) ([]history.Turn, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Session string `json:"session"`
	Input   string `json:"input"`
}

// SegmentEvent is sent once per streamed segment.
type SegmentEvent struct {
	Text string `json:"text"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	Session  string `json:"session"`
	Segments int    `json:"segments"`
	Answer   string `json:"answer"`
}

// ErrorResponse is returned as JSON, or as an error event once streaming has begun.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TurnResponse is one turn in a history listing.
type TurnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the body of GET /sessions/{id}/history.
type HistoryResponse struct {
	Session string         `json:"session"`
	Turns   []TurnResponse `json:"turns"`
}

// NewChatHandler streams an answer as Server-Sent Events: one "segment"
// event per model segment, then "done", or "error" if the turn fails after
// streaming started. Failures before the first segment get a plain JSON error.
func NewChatHandler(asker Asker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
		if req.Session == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "session is required"})
			return
		}

		stream := &eventStream{w: w, rc: http.NewResponseController(w)}
		res, err := asker.Ask(r.Context(), req.Session, req.Input, func(segment string) error {
			if err := r.Context().Err(); err != nil {
				return err
			}
			return stream.send("segment", SegmentEvent{Text: segment})
		})
		if err != nil {
			logger.Warn("Chat turn failed", "session", req.Session, "error", err)
			if !stream.started {
				writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
				return
			}
			_ = stream.send("error", ErrorResponse{Error: err.Error()})
			return
		}

		_ = stream.send("done", DoneEvent{Session: req.Session, Segments: res.Segments, Answer: res.Answer})
	}
}

// NewHistoryHandler lists the stored turns of the session named in the path.
func NewHistoryHandler(asker Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := r.PathValue("id")
		turns, err := asker.History(r.Context(), session)
		if err != nil {
			writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
			return
		}

		out := HistoryResponse{Session: session, Turns: make([]TurnResponse, len(turns))}
		for i, t := range turns {
			out.Turns[i] = TurnResponse{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrEmptyInput), errors.Is(err, history.ErrEmptySession):
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

// eventStream writes SSE frames, sending headers with the first frame.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (s *eventStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
