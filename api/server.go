package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/bingo-client/game/board"
	"github.com/wricardo/bingo-client/session"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// Connection is the websocket client surface the API drives
type Connection interface {
	Connected() bool
	URL() string
	Send(action websocket.Action, payload any) error
	Login(key string) error
	DrawNumber(n int) error
}

// Pages reports the page the session gate last navigated to
type Pages interface {
	Current() session.Page
}

// Server represents the local control API
type Server struct {
	conn   Connection
	gate   *session.Gate
	pages  Pages
	board  *board.Board
	router *mux.Router
	logger zerolog.Logger
}

// NewServer creates a new API server. board may be nil, in which case the
// board routes answer 404.
func NewServer(conn Connection, gate *session.Gate, pages Pages, b *board.Board, logger *zerolog.Logger) *Server {
	s := &Server{
		conn:   conn,
		gate:   gate,
		pages:  pages,
		board:  b,
		router: mux.NewRouter(),
		logger: zerolog.Nop(),
	}
	if logger != nil {
		s.logger = logger.With().Str("component", "api").Logger()
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Session gate
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session", s.handleSaveSession).Methods("PUT")
	api.HandleFunc("/session", s.handleLogout).Methods("DELETE")
	api.HandleFunc("/access", s.handleCheckAccess).Methods("GET")

	// Connection
	api.HandleFunc("/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/draw", s.handleDraw).Methods("POST")
	api.HandleFunc("/actions/{action}", s.handleSendAction).Methods("POST")

	// Draw mirror
	if s.board != nil {
		api.HandleFunc("/board", s.handleBoard).Methods("GET")
		api.HandleFunc("/board/history", s.handleBoardHistory).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSendError maps websocket send failures onto status codes
func respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, websocket.ErrNotConnected):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, websocket.ErrLocalAction),
		errors.Is(err, websocket.ErrUnknownAction),
		errors.Is(err, websocket.ErrInvalidNumber),
		errors.Is(err, websocket.ErrMalformedEnvelope):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func sessionResponse(rec session.Record) SessionResponse {
	return SessionResponse{
		LoggedIn:   rec.LoggedIn(),
		Key:        session.MaskKey(rec.Key),
		IsOperator: rec.IsOperator,
		DrawID:     rec.DrawID,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Connected: s.conn.Connected(),
		URL:       s.conn.URL(),
		Page:      string(s.pages.Current()),
	})
}

// Session Handlers

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.gate.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(rec))
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.gate.Save(r.Context(), req.Key, req.IsOperator, req.DrawID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse(session.Record{
		Key:        req.Key,
		IsOperator: req.IsOperator,
		DrawID:     req.DrawID,
	}))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Logout(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out",
		"page":    string(s.pages.Current()),
	})
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	requireOperator := false
	if v := r.URL.Query().Get("operator"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid operator value %q", v))
			return
		}
		requireOperator = b
	}

	allowed, err := s.gate.CheckAccess(r.Context(), requireOperator)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, AccessResponse{
		Allowed: allowed,
		Page:    string(s.pages.Current()),
	})
}

// Connection Handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := req.Key
	if key == "" {
		stored, err := s.gate.StoredKey(r.Context())
		if errors.Is(err, session.ErrNoCredential) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		key = stored
	}

	if err := s.conn.Login(key); err != nil {
		respondSendError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Login sent",
	})
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	var req DrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.conn.DrawNumber(req.Number); err != nil {
		respondSendError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Number sent",
		"number":  req.Number,
	})
}

func (s *Server) handleSendAction(w http.ResponseWriter, r *http.Request) {
	action := websocket.Action(mux.Vars(r)["action"])

	var payload map[string]interface{}
	if err := decodeOptional(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}

	var body any
	if payload != nil {
		body = payload
	}
	if err := s.conn.Send(action, body); err != nil {
		respondSendError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Action sent",
		"action":  string(action),
	})
}

// Board Handlers

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.board.Snapshot())
}

func (s *Server) handleBoardHistory(w http.ResponseWriter, r *http.Request) {
	history := s.board.History()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(history) {
			history = history[len(history)-l:]
		}
	}

	respondJSON(w, http.StatusOK, history)
}

// decodeOptional decodes a JSON body into v, treating an empty body as absent
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
