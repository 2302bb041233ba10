// Package server exposes the daily challenge over HTTP and streams attempts
// to browser renderers over a websocket.
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
	"github.com/gorilla/websocket"

	"github.com/brensch/gridle/challenge"
	"github.com/brensch/gridle/game"
	"github.com/brensch/gridle/rules"
	"github.com/brensch/gridle/session"
	"github.com/brensch/gridle/store"
)

const Version = "1.0.0"

// Deps are the collaborators of a Server. Only Loader is required.
type Deps struct {
	Loader    *challenge.Loader
	Wins      *store.WinLog
	DB        *store.SQLiteStore
	Events    *store.EventLog
	ReplayDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Server{
		deps:   d,
		logger: d.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			// Renderers are served from other origins during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/challenge/today", s.handleToday)
		r.Get("/challenge/{date}", s.handleChallenge)
		r.Get("/stats/{date}", s.handleStats)
		r.Get("/streak", s.handleStreak)
	})
	r.Get("/ws/play", s.handlePlay)
	return r
}

type infoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Today   string `json:"today"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{Name: "gridle", Version: Version, Today: s.today()})
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	s.serveChallenge(w, r, s.today())
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	s.serveChallenge(w, r, chi.URLParam(r, "date"))
}

func (s *Server) serveChallenge(w http.ResponseWriter, r *http.Request, date string) {
	cfg, err := s.deps.Loader.Load(r.Context(), date)
	if errors.Is(err, challenge.ErrInvalidDateFormat) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.logger.Error("load challenge", "date", date, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := challenge.ValidateDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.deps.DB == nil {
		writeError(w, http.StatusNotFound, errors.New("stats are not enabled"))
		return
	}
	st, err := s.deps.DB.DayStats(r.Context(), date)
	if err != nil {
		s.logger.Error("day stats", "date", date, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type streakResponse struct {
	Today     string `json:"today"`
	Streak    int    `json:"streak"`
	WonToday  bool   `json:"won_today"`
	TotalWins int    `json:"total_wins"`
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wins == nil {
		writeError(w, http.StatusNotFound, errors.New("streaks are not enabled"))
		return
	}
	today := s.today()
	streak, err := s.deps.Wins.Streak(today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	_, won := s.deps.Wins.Won(today)
	writeJSON(w, http.StatusOK, streakResponse{Today: today, Streak: streak, WonToday: won, TotalWins: s.deps.Wins.Count()})
}

func (s *Server) today() string {
	return challenge.Today(s.deps.Now())
}

// outcomeFanout forwards an outcome to every non-nil observer.
type outcomeFanout []rules.OutcomeObserver

func (f outcomeFanout) ObserveOutcome(o rules.Outcome) {
	for _, obs := range f {
		obs.ObserveOutcome(o)
	}
}

// clientMessage is sent by the renderer/input client.
type clientMessage struct {
	Type string `json:"type"`
	Dir  string `json:"dir,omitempty"`
}

// serverMessage is pushed after every processed tick and control change.
type serverMessage struct {
	Type     string            `json:"type"`
	Config   *challenge.Config `json:"config,omitempty"`
	Snapshot *rules.Snapshot   `json:"snapshot,omitempty"`
	Cells    []int             `json:"cells,omitempty"`
}

func newServerMessage(kind string, snap rules.Snapshot) serverMessage {
	cells := make([]int, len(snap.Cells))
	for i, c := range snap.Cells {
		cells[i] = int(c)
	}
	return serverMessage{Type: kind, Snapshot: &snap, Cells: cells}
}

// handlePlay runs one attempt for the socket's lifetime. Closing the socket
// abandons the attempt.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.today()
	}
	cfg, err := s.deps.Loader.Load(r.Context(), date)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, challenge.ErrInvalidDateFormat) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var observers outcomeFanout
	if s.deps.DB != nil {
		observers = append(observers, s.deps.DB)
	}
	if s.deps.Events != nil {
		observers = append(observers, s.deps.Events)
	}
	opts := []rules.Option{rules.WithLogger(s.logger), rules.WithOutcomeObserver(observers)}
	// Only today's challenge counts towards the streak.
	if s.deps.Wins != nil && date == s.today() {
		opts = append(opts, rules.WithWinReporter(s.deps.Wins))
	}
	engine := rules.NewEngine(cfg, opts...)
	logger := s.logger.With("attempt", engine.AttemptID(), "date", date)

	if s.deps.Events != nil {
		if err := s.deps.Events.Write(store.Event{Kind: "started", AttemptID: engine.AttemptID(), Date: date, State: rules.Running, Source: "websocket"}); err != nil {
			logger.Warn("event log write failed", "err", err)
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(serverMessage{Type: "config", Config: &cfg}); err != nil {
		logger.Debug("config write failed", "err", err)
		return
	}

	recorder := store.NewReplayRecorder(cfg, "human")
	sess := session.New(engine,
		session.WithLogger(logger),
		session.WithSnapshotHandler(func(snap rules.Snapshot) {
			recorder.Record(snap)
			// Only the Run goroutine writes to the socket.
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(newServerMessage("snapshot", snap)); err != nil {
				logger.Debug("snapshot write failed", "err", err)
			}
		}),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readInputs(ctx, cancel, conn, sess, logger)

	final, err := sess.Run(ctx)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteJSON(newServerMessage("finished", final))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, final.State.String()), time.Now().Add(time.Second))
	}

	if s.deps.ReplayDir != "" && final.Tick > 0 {
		path, err := store.WriteReplay(s.deps.ReplayDir, recorder.Finish(engine.Inputs()))
		if err != nil {
			logger.Error("write replay", "err", err)
		} else {
			logger.Info("replay written", "path", path, "state", final.State, "ticks", final.Tick)
		}
	}
}

// readInputs feeds client messages to the session until the socket closes.
func (s *Server) readInputs(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, logger *slog.Logger) {
	defer cancel()
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		switch msg.Type {
		case "heading":
			d, err := game.ParseDirection(msg.Dir)
			if err != nil {
				logger.Debug("bad heading", "dir", msg.Dir)
				continue
			}
			sess.SetHeading(d)
		case "pause":
			sess.Pause()
		case "resume":
			sess.Resume()
		case "abandon":
			sess.Abandon()
		default:
			logger.Debug("unknown message", "type", msg.Type)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
