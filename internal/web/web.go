// Package web exposes the agenda and task classifications over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tasknotes/internal/agenda"
	"tasknotes/internal/config"
	"tasknotes/internal/dateutil"
	"tasknotes/internal/ics"
	appLog "tasknotes/internal/log"
	"tasknotes/internal/notes"
	"tasknotes/internal/temporal"
)

// agendaCacheTTL bounds how stale a served agenda may be. Note and feed
// loading is repeated work; classification itself is pure and cheap.
const agendaCacheTTL = time.Minute

// Server provides the HTTP API: /health, /api/agenda, /api/tasks.
type Server struct {
	cfg      *config.Config
	mux      *http.ServeMux
	resolver *temporal.Resolver
	fetcher  *ics.Fetcher

	agendaMu    sync.RWMutex
	agendaCache *agendaCacheEntry
}

type agendaCacheEntry struct {
	key       string
	agenda    agenda.Agenda
	fetchedAt time.Time
}

func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		resolver: newResolver(cfg),
		fetcher:  ics.NewFetcher(cfg.CacheDir),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	return s
}

// newResolver builds the resolver from config. A bad work_week entry keeps
// the built-in monday-friday set rather than refusing to serve.
func newResolver(cfg *config.Config) *temporal.Resolver {
	r := &temporal.Resolver{DoneStatuses: cfg.DoneStatuses}
	ww, err := cfg.WorkWeekSet()
	if err != nil {
		appLog.Error("invalid work_week config, using monday-friday", err)
		return r
	}
	r.WorkWeek = ww
	return r
}

// Handler returns the mux wrapped with basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// StartServer serves the API on cfg.Listen until ctx is canceled.
func StartServer(ctx context.Context, cfg *config.Config) error {
	s := NewServer(cfg)
	srv := &http.Server{Addr: cfg.Listen, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="TaskNotes", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAgenda serves the aggregated agenda. Query params: date=YYYY-MM-DD
// (default: today in the configured zone), horizon=N days (default: config).
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loc := s.cfg.Location()
	today := dateutil.TodayIn(loc)
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := dateutil.ParseLocalDate(q)
		if err != nil {
			http.Error(w, "bad date parameter", http.StatusBadRequest)
			return
		}
		today = d
	}
	horizon := s.cfg.HorizonDays
	if q := r.URL.Query().Get("horizon"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 366 {
			http.Error(w, "bad horizon parameter", http.StatusBadRequest)
			return
		}
		horizon = n
	}

	key := fmt.Sprintf("%s/%d", today, horizon)
	if cached, ok := s.cachedAgenda(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ag, err := s.buildAgenda(r.Context(), today, horizon, loc)
	if err != nil {
		appLog.Error("agenda build failed", err)
		http.Error(w, "agenda build failed", http.StatusInternalServerError)
		return
	}

	s.agendaMu.Lock()
	s.agendaCache = &agendaCacheEntry{key: key, agenda: ag, fetchedAt: time.Now()}
	s.agendaMu.Unlock()

	writeJSON(w, http.StatusOK, ag)
}

func (s *Server) cachedAgenda(key string) (agenda.Agenda, bool) {
	s.agendaMu.RLock()
	defer s.agendaMu.RUnlock()
	c := s.agendaCache
	if c == nil || c.key != key || time.Since(c.fetchedAt) > agendaCacheTTL {
		return agenda.Agenda{}, false
	}
	return c.agenda, true
}

func (s *Server) buildAgenda(ctx context.Context, today dateutil.LocalDate, horizon int, loc *time.Location) (agenda.Agenda, error) {
	loaded, err := notes.LoadDir(s.cfg.NotesDir, loc)
	if err != nil {
		return agenda.Agenda{}, err
	}

	var entries []ics.Entry
	if len(s.cfg.ICS) > 0 {
		feeds := make([]ics.Feed, 0, len(s.cfg.ICS))
		for _, f := range s.cfg.ICS {
			feeds = append(feeds, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
		}
		results, _ := s.fetcher.FetchAll(ctx, feeds)
		var events []ics.Event
		for _, res := range results {
			evs, perr := ics.ParseFeed(res.Feed, res.Body)
			if perr != nil {
				continue // already logged, feed isolated
			}
			events = append(events, evs...)
		}
		entries, err = ics.ExpandEntries(events, ics.ExpandConfig{
			DisplayLocation: loc,
			From:            today,
			To:              today.AddDays(horizon - 1),
		})
		if err != nil {
			return agenda.Agenda{}, err
		}
	}

	return agenda.Build(s.resolver, loaded.Tasks, entries, today, horizon), nil
}

// taskView is the /api/tasks row shape.
type taskView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Priority  string `json:"priority,omitempty"`
	Due       string `json:"due,omitempty"`
	Scheduled string `json:"scheduled,omitempty"`
	Recurring bool   `json:"recurring"`
	State     string `json:"state"`
	Overdue   bool   `json:"overdue"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	loc := s.cfg.Location()
	today := dateutil.TodayIn(loc)

	loaded, err := notes.LoadDir(s.cfg.NotesDir, loc)
	if err != nil {
		appLog.Error("notes load failed", err, "dir", s.cfg.NotesDir)
		http.Error(w, "notes load failed", http.StatusInternalServerError)
		return
	}

	views := make([]taskView, 0, len(loaded.Tasks))
	for _, t := range loaded.Tasks {
		v := taskView{
			ID:        t.ID,
			Title:     t.Title,
			Status:    string(t.Status),
			Priority:  t.Priority,
			Recurring: t.IsRecurring(),
		}
		if t.Due != nil {
			v.Due = t.Due.Date.String()
		}
		if t.Scheduled != nil {
			v.Scheduled = t.Scheduled.Date.String()
		}

		st, cerr := s.resolver.ClassifyForDate(t, today)
		if cerr != nil {
			v.Error = cerr.Error()
			v.State = temporal.KindNotApplicable.String()
			views = append(views, v)
			continue
		}
		v.State = st.Kind.String()
		if overdue, oerr := s.resolver.IsOverdueAsOf(t, today); oerr == nil {
			v.Overdue = overdue
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("json encode failed", err)
	}
}
