package fetchhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/directory"
	"github.com/OliverSchlueter/openack/internal/fetching"
	"github.com/go-chi/chi/v5"
)

const (
	HeaderSkipped    = "X-Openack-Skipped"
	HeaderUnarchived = "X-Openack-Unarchived"
)

type Handler struct {
	fetching *fetching.Service
}

func New(fetchingService *fetching.Service) *Handler {
	return &Handler{
		fetching: fetchingService,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/messages", h.handleMessages)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.fetchMessages(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) fetchMessages(w http.ResponseWriter, r *http.Request) {
	res, err := h.fetching.Fetch(r.Context(), r.URL.Query().Get("id"))
	switch {
	case errors.Is(err, fetching.ErrMissingAgentID):
		problems.ValidationError("id", "Missing id query parameter").WriteToHTTP(w)
		return
	case errors.Is(err, directory.ErrUnknownAgentID):
		problems.ValidationError("id", "Unknown agent id").WriteToHTTP(w)
		return
	case err != nil && res == nil:
		slog.Error("Failed to fetch messages", sloki.WrapError(err))
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	case err != nil:
		// The request was cancelled halfway, what has been archived is
		// still returned.
		slog.Warn("Fetch interrupted", slog.String("agent", res.Agent), sloki.WrapError(err))
	}

	data, err := json.Marshal(res.Messages)
	if err != nil {
		problems.InternalServerError("Error marshalling messages").WriteToHTTP(w)
		return
	}

	if n := len(res.Skipped); n > 0 {
		w.Header().Set(HeaderSkipped, strconv.Itoa(n))
	}
	if n := len(res.Unarchived); n > 0 {
		w.Header().Set(HeaderUnarchived, strconv.Itoa(n))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
