package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"

	"athand/internal/config"
	appLog "athand/internal/log"
	"athand/internal/model"
	"athand/internal/session"
)

// Server exposes the read-only schedule snapshot and the settings mutation
// endpoints. All writes funnel through the session coordinator.
type Server struct {
	cfg   *config.Config
	coord *session.Coordinator
	mux   *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, coord *session.Coordinator) *Server {
	s := &Server{
		cfg:   cfg,
		coord: coord,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health is always reachable without credentials.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="athand", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/next", s.handleNext)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/active", s.handleActive)
	s.mux.HandleFunc("/api/calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// entryDTO is a JSON-friendly view of a prayer entry.
type entryDTO struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Name    string    `json:"name"`
	At      time.Time `json:"at"`
	LocalAt string    `json:"local_at"`
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	Timezone string     `json:"timezone"`
	Entries  []entryDTO `json:"entries"`
	Next     *entryDTO  `json:"next,omitempty"`
	Active   bool       `json:"active"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	snap := s.coord.Snapshot()
	resp := scheduleResponse{Active: snap.Active}
	if snap.Schedule != nil {
		resp.Timezone = snap.Schedule.Loc.String()
		for _, e := range snap.Schedule.Entries {
			resp.Entries = append(resp.Entries, toDTO(e, snap.Schedule.Loc))
		}
	}
	if snap.Next != nil && snap.Schedule != nil {
		dto := toDTO(*snap.Next, snap.Schedule.Loc)
		resp.Next = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	snap := s.coord.Snapshot()
	if snap.Next == nil || snap.Schedule == nil {
		writeError(w, http.StatusNotFound, "no upcoming prayer")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*snap.Next, snap.Schedule.Loc))
}

// settingsUpdateRequest carries a partial settings update; nil fields are
// left untouched.
type settingsUpdateRequest struct {
	Location           *model.LocationSelection       `json:"location"`
	Method             *model.CalculationMethodOption `json:"method"`
	Prefs              *model.AlertPreferences        `json:"prefs"`
	LeadTime           *model.LeadTime                `json:"lead_time"`
	OnboardingComplete *bool                          `json:"onboarding_complete"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.coord.Snapshot().Settings)

	case http.MethodPut:
		var req settingsUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Method != nil && !req.Method.Valid() {
			writeError(w, http.StatusBadRequest, "unknown calculation method")
			return
		}

		if req.Location != nil {
			s.coord.UpdateLocation(*req.Location)
		}
		if req.Method != nil {
			s.coord.UpdateMethod(*req.Method)
		}
		if req.Prefs != nil {
			s.coord.UpdatePreferences(*req.Prefs)
		}
		if req.LeadTime != nil {
			s.coord.SetLeadTime(*req.LeadTime)
		}
		if req.OnboardingComplete != nil && *req.OnboardingComplete {
			s.coord.CompleteOnboarding()
		}
		writeJSON(w, http.StatusOK, s.coord.Snapshot().Settings)

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or PUT only")
	}
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "PUT only")
		return
	}
	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.coord.SetActive(req.Active)
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// handleCalendar serves today's and tomorrow's entries as an iCalendar feed
// so external calendar clients always see something upcoming, even near the
// end of the local day.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	snap := s.coord.Snapshot()
	if snap.Schedule == nil {
		writeError(w, http.StatusNotFound, "no schedule available")
		return
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//athand//prayer schedule//EN")

	now := time.Now()
	entries := append(append([]model.PrayerEntry{}, snap.Schedule.Entries...), snap.Tomorrow...)
	for _, entry := range entries {
		ev := cal.AddEvent(entry.ID.String() + "@athand")
		ev.SetDtStampTime(now)
		ev.SetStartAt(entry.At)
		ev.SetEndAt(entry.At.Add(15 * time.Minute))
		ev.SetSummary(entry.Kind.DisplayName())
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal.Serialize()))
}

func toDTO(e model.PrayerEntry, loc *time.Location) entryDTO {
	return entryDTO{
		ID:      e.ID.String(),
		Kind:    string(e.Kind),
		Name:    e.Kind.DisplayName(),
		At:      e.At,
		LocalAt: e.At.In(loc).Format("15:04"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
