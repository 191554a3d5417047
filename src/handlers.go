package main

import (
	// stdlib
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	// internal
	"github.com/Robogera/detectdemo/pkg/app"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/orchestrator"
	"github.com/Robogera/detectdemo/pkg/session"
	"github.com/Robogera/detectdemo/pkg/source"

	// external
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const session_cookie = "detectdemo_session"

//go:embed ui/index.html
var ui embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handlers struct {
	demo *app.App
	// runs outlive the request that started them
	run_ctx      context.Context
	upload_limit int64
	logger       *slog.Logger
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type urlRequest struct {
	URL string `json:"url"`
}

func (h *handlers) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.index).Methods("GET")
	r.HandleFunc("/stream", h.withSession(h.stream)).Methods("GET")
	r.HandleFunc("/ws", h.withSession(h.messages)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.withSession(h.status)).Methods("GET")
	api.HandleFunc("/preview/{source}", h.withSession(h.preview)).Methods("GET")
	api.HandleFunc("/settings", h.withSession(h.settings)).Methods("POST")
	api.HandleFunc("/image", h.withSession(h.image)).Methods("POST")
	api.HandleFunc("/video", h.withSession(h.video)).Methods("POST")
	api.HandleFunc("/youtube", h.withSession(h.youtube)).Methods("POST")
	api.HandleFunc("/stream", h.withSession(h.streamURL)).Methods("POST")
	api.HandleFunc("/detect/{source}", h.withSession(h.detect)).Methods("POST")
	api.HandleFunc("/quit", h.withSession(h.quit)).Methods("POST")
	return r
}

// Finds the caller's session by cookie, a new one is created
// for an unknown or reaped cookie
func (h *handlers) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	if cookie, err := r.Cookie(session_cookie); err == nil {
		if s, ok := h.demo.Session(cookie.Value); ok {
			return s
		}
	}
	s := h.demo.NewSession()
	http.SetCookie(w, &http.Cookie{
		Name:     session_cookie,
		Value:    s.Id(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

func (h *handlers) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, h.sessionFor(w, r))
	}
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	h.sessionFor(w, r)
	page, err := ui.ReadFile("ui/index.html")
	if err != nil {
		sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request, s *session.Session) {
	s.Display().ServeHTTP(w, r)
}

func (h *handlers) messages(w http.ResponseWriter, r *http.Request, s *session.Session) {
	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", "error", err)
		return
	}
	connection.SetReadLimit(512)
	if err := s.Hub().Register(connection, s.Messages()); err != nil {
		h.logger.Debug("Viewer not registered", "session", s.Id(), "error", err)
		return
	}
	defer s.Hub().Unregister(connection)
	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request, s *session.Session) {
	sendJSON(w, http.StatusOK, h.demo.Status(s))
}

// Shows the bound input before detection
func (h *handlers) preview(w http.ResponseWriter, r *http.Request, s *session.Session) {
	kind := enums.Sources.Parse(mux.Vars(r)["source"])
	if kind == nil {
		sendError(w, fmt.Errorf("%w: unknown source %q", ERR_BAD_REQUEST, mux.Vars(r)["source"]))
		return
	}
	switch *kind {
	case enums.SourceImage:
		_, data, _, err := s.Image.Preview()
		if err != nil {
			sendError(w, err)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Write(data)
	case enums.SourceVideo:
		http.ServeFile(w, r, s.Video.Path())
	default:
		sendError(w, fmt.Errorf("%w: no preview for %q", ERR_BAD_REQUEST, mux.Vars(r)["source"]))
	}
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var settings session.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		sendError(w, fmt.Errorf("%w: %w", ERR_BAD_REQUEST, err))
		return
	}
	if err := h.demo.Configure(s, settings); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, s.Settings())
}

func (h *handlers) image(w http.ResponseWriter, r *http.Request, s *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, h.upload_limit)
	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, fmt.Errorf("%w: %w", ERR_BAD_REQUEST, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		sendError(w, fmt.Errorf("%w: %w", ERR_BAD_REQUEST, err))
		return
	}
	if err := h.demo.BindImage(s, header.Filename, data); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, h.demo.Status(s))
}

func (h *handlers) video(w http.ResponseWriter, r *http.Request, s *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, h.upload_limit)
	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, fmt.Errorf("%w: %w", ERR_BAD_REQUEST, err))
		return
	}
	defer file.Close()
	if err := h.demo.BindVideo(s, header.Filename, file); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, h.demo.Status(s))
}

func (h *handlers) youtube(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.bindURL(w, r, s, h.demo.BindYouTube)
}

func (h *handlers) streamURL(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.bindURL(w, r, s, h.demo.BindStream)
}

func (h *handlers) bindURL(w http.ResponseWriter, r *http.Request, s *session.Session, bind func(*session.Session, string) error) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, fmt.Errorf("%w: %w", ERR_BAD_REQUEST, err))
		return
	}
	if err := bind(s, req.URL); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, h.demo.Status(s))
}

func (h *handlers) detect(w http.ResponseWriter, r *http.Request, s *session.Session) {
	kind := enums.Sources.Parse(mux.Vars(r)["source"])
	if kind == nil {
		sendError(w, fmt.Errorf("%w: unknown source %q", ERR_BAD_REQUEST, mux.Vars(r)["source"]))
		return
	}
	if err := h.demo.Detect(h.run_ctx, s, *kind); err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusAccepted, h.demo.Status(s))
}

func (h *handlers) quit(w http.ResponseWriter, r *http.Request, s *session.Session) {
	h.demo.Quit(s)
	sendJSON(w, http.StatusOK, h.demo.Status(s))
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	sendJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, orchestrator.ERR_BUSY):
		return "busy", http.StatusConflict
	case errors.Is(err, app.ERR_NO_MODEL):
		return "model_error", http.StatusServiceUnavailable
	case errors.Is(err, session.ERR_CLOSED):
		return "session_closed", http.StatusGone
	case errors.Is(err, source.ERR_EXTENSION):
		return "unsupported_file", http.StatusUnsupportedMediaType
	case errors.Is(err, orchestrator.ERR_NOT_BOUND),
		errors.Is(err, app.ERR_SETTINGS),
		errors.Is(err, ERR_BAD_REQUEST):
		return "invalid_request", http.StatusBadRequest
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
