package http

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

const roomCodeLength = 6

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Handler exposes room creation plus the host and player websocket
// endpoints over the room engine.
type Handler struct {
	engine   *app.RoomEngine
	upgrader websocket.Upgrader
}

func NewHandler(engine *app.RoomEngine) *Handler {
	return &Handler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/rooms", h.CreateRoom)
	mux.HandleFunc("/ws/host", h.ServeHost)
	mux.HandleFunc("/ws/player", h.ServePlayer)
}

// wsSink adapts one gorilla connection to app.EventSink. The mutex
// serializes writers (fanout goroutines, replay, error events); a failed
// write marks the sink dead so later sends are skipped instead of retried.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) SendEvent(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("connection closed")
	}
	if err := s.conn.WriteJSON(domain.Event{Event: event, Payload: payload}); err != nil {
		s.closed = true
		return err
	}
	return nil
}

func (s *wsSink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *wsSink) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type createRoomRequest struct {
	QuizID         string          `json:"quiz_id"`
	AutoStartDelay json.RawMessage `json:"auto_start_delay,omitempty"`
}

type createRoomResponse struct {
	RoomID    string                            `json:"room_id"`
	QuizID    string                            `json:"quiz_id,omitempty"`
	AutoStart *domain.AutoStartScheduledPayload `json:"auto_start,omitempty"`
}

// CreateRoom creates a room under a fresh join code. An explicit
// auto_start_delay schedules an automatic start; an unparseable or negative
// delay is rejected rather than silently defaulted, since the caller asked
// for a specific time.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var delay int
	scheduled := false
	if len(req.AutoStartDelay) > 0 {
		parsed, err := parseDelaySeconds(req.AutoStartDelay)
		if err != nil {
			http.Error(w, domain.ErrInvalidSchedule.Error(), http.StatusBadRequest)
			return
		}
		delay = parsed
		scheduled = true
	}

	code := newRoomCode()
	room := h.engine.CreateRoom(code, req.QuizID)

	// Warm the quiz cache so the first start does not wait on the backing
	// store. Best effort.
	if req.QuizID != "" {
		go func() {
			if _, err := h.engine.LoadQuestions(context.Background(), code); err != nil {
				log.Warn().Err(err).Str("room", code).Str("quiz", req.QuizID).Msg("question preload failed")
			}
		}()
	}

	resp := createRoomResponse{RoomID: room.ID(), QuizID: room.QuizID()}
	if scheduled {
		at := time.Now().UTC().Add(time.Duration(delay) * time.Second)
		if err := h.engine.ScheduleAutoStart(code, at, "create_room"); err != nil {
			log.Error().Err(err).Str("room", code).Msg("auto start scheduling failed")
		} else {
			resp.AutoStart = &domain.AutoStartScheduledPayload{
				ScheduledAt: at.Format(time.RFC3339Nano),
				Delay:       float64(delay),
				Origin:      "create_room",
				ServerTime:  time.Now().UTC().Format(time.RFC3339Nano),
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

type hostMessage struct {
	Action  string          `json:"action"`
	StartAt string          `json:"start_at,omitempty"`
	Delay   json.RawMessage `json:"delay,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// ServeHost attaches the shared display connection and executes host
// commands. Command failures go back as error events on this connection
// only; they are never broadcast to the room.
func (h *Handler) ServeHost(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if _, ok := h.engine.Room(roomID); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("host ws upgrade failed")
		return
	}
	defer conn.Close()

	sink := newWSSink(conn)
	if err := h.engine.ConnectScreen(roomID, sink); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
		return
	}
	defer func() {
		sink.markClosed()
		h.engine.DisconnectScreen(roomID)
	}()

	for {
		var msg hostMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "start_game":
			h.handleManualStart(r, roomID, sink)
		case "show_question":
			if err := h.engine.ShowNextQuestion(roomID); err != nil {
				h.sendError(sink, "room not found")
			}
		case "schedule_auto_start":
			h.handleScheduleAutoStart(roomID, sink, msg)
		case "cancel_auto_start":
			origin := msg.Origin
			if origin == "" {
				origin = "host"
			}
			if err := h.engine.CancelAutoStart(roomID, origin, msg.Reason); err != nil {
				h.sendError(sink, "room not found")
			}
		default:
			// Unknown actions are ignored, matching the lenient host UI.
		}
	}
}

func (h *Handler) handleManualStart(r *http.Request, roomID string, sink *wsSink) {
	// A manual start supersedes any pending auto start.
	_ = h.engine.CancelAutoStart(roomID, "host_manual_start", "manual_start")

	questions, err := h.engine.LoadQuestions(r.Context(), roomID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoQuizAssigned):
			h.sendError(sink, "no quiz selected for this room")
		case errors.Is(err, domain.ErrQuizNotFound):
			h.sendError(sink, "quiz not found")
		case errors.Is(err, domain.ErrNoQuestions):
			h.sendError(sink, "the selected quiz has no questions")
		default:
			h.sendError(sink, "failed to load quiz questions")
		}
		return
	}
	if err := h.engine.StartGame(roomID, questions); err != nil {
		h.sendError(sink, "room not found")
	}
}

func (h *Handler) handleScheduleAutoStart(roomID string, sink *wsSink, msg hostMessage) {
	origin := msg.Origin
	if origin == "" {
		origin = "host"
	}

	var at time.Time
	if msg.StartAt != "" {
		if parsed, err := time.Parse(time.RFC3339, msg.StartAt); err == nil {
			at = parsed.UTC()
		}
	}
	if at.IsZero() {
		delay, err := parseDelaySeconds(msg.Delay)
		if err != nil {
			h.sendError(sink, "invalid auto-start schedule")
			return
		}
		at = time.Now().UTC().Add(time.Duration(delay) * time.Second)
	}

	if err := h.engine.ScheduleAutoStart(roomID, at, origin); err != nil {
		h.sendError(sink, "room not found")
	}
}

type playerMessage struct {
	Action string `json:"action"`
	Player string `json:"player,omitempty"`
	Answer string `json:"answer,omitempty"`
}

// ServePlayer attaches one participant connection. The first message must
// be a join; answers before the join or for inactive questions are
// absorbed by the engine.
func (h *Handler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if _, ok := h.engine.Room(roomID); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("player ws upgrade failed")
		return
	}
	defer conn.Close()

	sink := newWSSink(conn)
	playerName := ""
	defer func() {
		sink.markClosed()
		if playerName != "" {
			h.engine.DisconnectPlayer(roomID, playerName)
		}
	}()

	for {
		var msg playerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "join":
			if msg.Player == "" {
				return
			}
			playerName = msg.Player
			if _, err := h.engine.ConnectPlayer(roomID, playerName, sink); err != nil {
				return
			}
		case "answer":
			if playerName == "" {
				continue
			}
			if err := h.engine.SubmitAnswer(roomID, playerName, msg.Answer); err != nil {
				log.Debug().Err(err).Str("room", roomID).Str("player", playerName).Msg("answer rejected")
			}
		default:
			continue
		}
	}
}

func (h *Handler) sendError(sink *wsSink, message string) {
	if err := sink.SendEvent(domain.EventError, domain.ErrorPayload{Message: message}); err != nil {
		log.Debug().Err(err).Msg("error event dropped")
	}
}

// parseDelaySeconds reads a delay value that may arrive as a JSON number or
// a numeric string. Negative or fractional delays are rejected.
func parseDelaySeconds(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, domain.ErrInvalidSchedule
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, domain.ErrInvalidSchedule
		}
		n = json.Number(s)
	}
	seconds, err := n.Int64()
	if err != nil || seconds < 0 {
		return 0, domain.ErrInvalidSchedule
	}
	return int(seconds), nil
}

func newRoomCode() string {
	code := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the process is in real trouble;
			// fall back to a fixed character rather than crash a handler.
			code[i] = roomCodeAlphabet[0]
			continue
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code)
}
