package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/vetassist/internal/app/conversation"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

type Server struct {
	svc      *conversation.Service
	upgrader websocket.Upgrader
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// In the MVP we leave everything open, same as CORS.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	// /pets/{pet}/requests             → POST: submit symptoms / notes / photo
	// /pets/{pet}/conversation         → GET: snapshot, DELETE: tear down
	// /pets/{pet}/conversation/stream  → websocket snapshots
	mux.HandleFunc("/pets/", s.handlePets)

	return chainMiddlewares(mux, withCORS, withLogging)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type submitRequest struct {
	Symptoms []string `json:"symptoms"`
	Notes    string   `json:"notes,omitempty"`
	PhotoURL string   `json:"photo_url,omitempty"`
}

type submitResponse struct {
	RequestID    string                `json:"request_id"`
	Conversation conversation.Snapshot `json:"conversation"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /pets/{pet}/...
func (s *Server) handlePets(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/pets/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	pet := domain.PetID(parts[0])

	switch {
	case len(parts) == 2 && parts[1] == "requests":
		switch r.Method {
		case http.MethodPost:
			s.handleSubmit(w, r, pet)
		default:
			methodNotAllowed(w)
		}

	case len(parts) == 2 && parts[1] == "conversation":
		switch r.Method {
		case http.MethodGet:
			s.handleGetConversation(w, r, pet)
		case http.MethodDelete:
			s.handleCloseConversation(w, r, pet)
		default:
			methodNotAllowed(w)
		}

	case len(parts) == 3 && parts[1] == "conversation" && parts[2] == "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleStream(w, r, pet)

	default:
		http.NotFound(w, r)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, pet domain.PetID) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	conv, err := s.svc.Open(r.Context(), pet)
	if err != nil {
		internalError(w, r, err)
		return
	}

	rec, err := conv.Submit(r.Context(), conversation.SubmitInput{
		Symptoms: req.Symptoms,
		Notes:    req.Notes,
		PhotoURL: req.PhotoURL,
	})
	switch {
	case errors.Is(err, conversation.ErrEmptySubmission):
		badRequest(w, "symptoms, notes or photo_url is required")
		return
	case errors.Is(err, conversation.ErrSubmitFailed):
		observability.LoggerFromContext(r.Context()).Error("submit failed", "pet_id", pet, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "could not store the request, try again"})
		return
	case errors.Is(err, conversation.ErrClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation closed"})
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		RequestID:    string(rec.ID),
		Conversation: conv.Snapshot(),
	})
}

// GET opens the conversation if needed. ?exclusive=true also closes every
// other open conversation, which is what a client does when it switches pets.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, pet domain.PetID) {
	open := s.svc.Open
	if r.URL.Query().Get("exclusive") == "true" {
		open = s.svc.Switch
	}

	conv, err := open(r.Context(), pet)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv.Snapshot())
}

func (s *Server) handleCloseConversation(w http.ResponseWriter, r *http.Request, pet domain.PetID) {
	if !s.svc.Close(pet) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
