// Package httpapi serves the Ladybot window: a single page on localhost driven
// over a websocket, plus a small JSON API for scripts.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	log "log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"ladybot/internal/assistant"
	"ladybot/internal/history"
	"ladybot/internal/observability"
)

// Engine is the part of assistant.Engine the window drives.
type Engine interface {
	Send(ctx context.Context, text string) error
	StartListening(ctx context.Context) error
	StopListening()
	IsListening() bool
	Exit()
	Transcript() string
	History(ctx context.Context, limit int) ([]history.Turn, error)
}

type Server struct {
	engine   Engine
	hub      *Hub
	metrics  *observability.Metrics
	title    string
	upgrader websocket.Upgrader
	static   http.Handler
	index    *template.Template
	// base outlives requests; turns started from the UI run on it.
	base context.Context
}

func New(base context.Context, engine Engine, hub *Hub, metrics *observability.Metrics, title string) *Server {
	return &Server{
		engine:  engine,
		hub:     hub,
		metrics: metrics,
		title:   title,
		static:  newStaticHandler(),
		index:   indexTemplate(),
		base:    base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// sameOrigin only lets pages served by this process drive the assistant.
// Non-browser clients omit Origin and are allowed.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui/", s.handleIndex)
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.handleSend)
		r.Post("/listen", s.handleListen)
		r.Post("/listen/stop", s.handleStopListening)
		r.Post("/exit", s.handleExit)
		r.Get("/transcript", s.handleTranscript)
		r.Get("/history", s.handleHistory)
	})
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, map[string]string{"Title": s.title}); err != nil {
		log.Error("Failed to render index", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"listening": s.engine.IsListening(),
		"clients":   s.hub.Clients(),
	})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_prompt", assistant.ErrEmptyPrompt.Error())
		return
	}
	s.startTurn(req.Text)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleListen(w http.ResponseWriter, _ *http.Request) {
	switch err := s.engine.StartListening(s.base); {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]any{"listening": true})
	case errors.Is(err, assistant.ErrBusy):
		respondError(w, http.StatusConflict, "busy", err.Error())
	default:
		respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	}
}

func (s *Server) handleStopListening(w http.ResponseWriter, _ *http.Request) {
	s.engine.StopListening()
	respondJSON(w, http.StatusOK, map[string]any{"listening": false})
}

func (s *Server) handleExit(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "exiting"})
	go s.engine.Exit()
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"text": s.engine.Transcript()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	turns, err := s.engine.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// startTurn runs a typed turn in the background; its output reaches the page
// through the hub.
func (s *Server) startTurn(text string) {
	go func() {
		if err := s.engine.Send(s.base, text); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Turn failed", "err", err)
		}
	}()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	listening := s.engine.IsListening()
	c, ok := s.hub.register(Message{Type: TypeSnapshot, Text: s.engine.Transcript(), Listening: &listening})
	if !ok {
		_ = conn.WriteJSON(Message{Type: TypeClosed})
		return
	}
	defer s.hub.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, c)
		cancel()
		// unblock the reader
		conn.Close()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for ctx.Err() == nil {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			break
		}
		s.metrics.ObserveWS("inbound", msg.Type)
		s.handleClientMessage(c, msg)
	}

	cancel()
	<-writerDone
}

func (s *Server) handleClientMessage(c *client, msg Message) {
	switch msg.Type {
	case TypeSend:
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		s.startTurn(msg.Text)
	case TypeListen:
		if err := s.engine.StartListening(s.base); err != nil {
			on := s.engine.IsListening()
			s.reply(c, Message{Type: TypeError, Text: err.Error()})
			s.reply(c, Message{Type: TypeListening, Listening: &on})
		}
	case TypeStop:
		go s.engine.StopListening()
	case TypeExit:
		go s.engine.Exit()
	default:
		s.reply(c, Message{Type: TypeError, Text: "unknown message type " + strconv.Quote(msg.Type)})
	}
}

func (s *Server) reply(c *client, m Message) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.clients[c]; ok {
		s.hub.enqueue(c, m)
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-c.send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
