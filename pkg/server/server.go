package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/m-mizutani/kaze/pkg/usecase/conversation"
	"github.com/m-mizutani/kaze/pkg/utils/logging"
)

// Session is the conversation surface exposed over HTTP
type Session interface {
	State() *conversation.State
	Send(ctx context.Context, text string) error
	SendPending(ctx context.Context) error
	SetPendingInput(text string)
	ToggleVoice() bool
	Listen(ctx context.Context) bool
	StopListening()
	StopSpeaking()
}

// VoiceCatalog lists and selects synthesizer voices
type VoiceCatalog interface {
	Voices() []*model.Voice
	SelectedVoice() *model.Voice
	SelectVoice(name string) bool
}

type Server struct {
	router  *chi.Mux
	session Session
	voices  VoiceCatalog
	logger  *slog.Logger
}

type Option func(*Server)

// WithAllowedOrigins enables CORS for browser front ends served elsewhere
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(session Session, voices VoiceCatalog, opts ...Option) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		session: session,
		voices:  voices,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.accessLog)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/messages", s.handleSendMessage)
		r.Put("/input", s.handleSetInput)
		r.Post("/voice/toggle", s.handleToggleVoice)
		r.Post("/speech/stop", s.handleStopSpeaking)
		r.Post("/listen", s.handleStartListening)
		r.Delete("/listen", s.handleStopListening)
		r.Get("/voices", s.handleVoices)
		r.Put("/voices/selected", s.handleSelectVoice)
	})
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

type sendMessageRequest struct {
	// nil sends the pending input
	Text *string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, goerr.Wrap(err, "invalid request body"))
		return
	}

	// a turn runs to completion even if the client goes away
	ctx := context.WithoutCancel(r.Context())

	var err error
	if req.Text != nil {
		err = s.session.Send(ctx, *req.Text)
	} else {
		err = s.session.SendPending(ctx)
	}

	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, conversation.ErrTurnInProgress):
		s.writeError(w, http.StatusConflict, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, s.session.State())
	}
}

type setInputRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var req setInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, goerr.Wrap(err, "invalid request body"))
		return
	}

	s.session.SetPendingInput(req.Text)
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleToggleVoice(w http.ResponseWriter, r *http.Request) {
	s.session.ToggleVoice()
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	s.session.StopSpeaking()
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleStartListening(w http.ResponseWriter, r *http.Request) {
	state := s.session.State()
	if !state.Input.Supported {
		s.writeError(w, http.StatusNotImplemented, goerr.New("speech input is not supported"))
		return
	}

	if !s.session.Listen(r.Context()) {
		s.writeError(w, http.StatusConflict, goerr.New("already listening"))
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.State())
}

func (s *Server) handleStopListening(w http.ResponseWriter, r *http.Request) {
	s.session.StopListening()
	writeJSON(w, http.StatusOK, s.session.State())
}

type voicesResponse struct {
	Voices   []*model.Voice `json:"voices"`
	Selected *model.Voice   `json:"selected,omitempty"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, voicesResponse{
		Voices:   s.voices.Voices(),
		Selected: s.voices.SelectedVoice(),
	})
}

type selectVoiceRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSelectVoice(w http.ResponseWriter, r *http.Request) {
	var req selectVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, goerr.Wrap(err, "invalid request body"))
		return
	}

	if !s.voices.SelectVoice(req.Name) {
		s.writeError(w, http.StatusNotFound, goerr.New("voice not found", goerr.V("name", req.Name)))
		return
	}
	writeJSON(w, http.StatusOK, voicesResponse{
		Voices:   s.voices.Voices(),
		Selected: s.voices.SelectedVoice(),
	})
}
