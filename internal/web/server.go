// Package web exposes the JSON API consumed by the dashboard.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bourbonwatch/internal/catalog"
	"bourbonwatch/internal/config"
	"bourbonwatch/internal/model"
	"bourbonwatch/internal/notify"
	"bourbonwatch/internal/scanner"
	"bourbonwatch/internal/storage"
)

// Server wires the API handlers to their collaborators.
type Server struct {
	store  storage.Storage
	cat    *catalog.Catalog
	orch   *scanner.Orchestrator
	router *notify.Router
	cfg    *config.Config
	log    *slog.Logger
}

// New creates a Server.
func New(store storage.Storage, cat *catalog.Catalog, orch *scanner.Orchestrator,
	router *notify.Router, cfg *config.Config, log *slog.Logger) *Server {
	return &Server{store: store, cat: cat, orch: orch, router: router, cfg: cfg, log: log}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/bourbons", s.handleBourbons)
		r.Get("/inventory", s.handleInventory)
		r.Get("/scan/history", s.handleScanHistory)
		r.Post("/scan/start", s.handleScanStart)
		r.Get("/scan/status", s.handleScanStatus)
		r.Post("/search", s.handleSearch)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)
		r.Post("/notifications/test", s.handleTestNotifications)
	})
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DashboardStats(r.Context())
	if err != nil {
		s.serverError(w, "dashboard stats", err)
		return
	}
	kb := s.cat.KnowledgeStats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_tracked": stats.TotalTracked,
		"in_stock":      stats.InStock,
		"alerts_today":  stats.AlertsToday,
		"last_scan":     stats.LastScan,
		"knowledge_base": map[string]any{
			"total":        kb.Total,
			"tiers":        kb.Tiers,
			"version":      kb.Version,
			"last_updated": kb.LastUpdated,
		},
	})
}

type bourbonView struct {
	model.CatalogEntry
	TierLabel string `json:"tier_label"`
}

func (s *Server) handleBourbons(w http.ResponseWriter, r *http.Request) {
	tier, _ := strconv.Atoi(r.URL.Query().Get("tier"))

	var out []bourbonView
	for _, e := range s.cat.Entries {
		if tier != 0 && e.RarityTier != tier {
			continue
		}
		out = append(out, bourbonView{CatalogEntry: e, TierLabel: model.TierLabel(e.RarityTier)})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestSnapshots(r.Context(), r.URL.Query().Get("catalog_id"))
	if err != nil {
		s.serverError(w, "latest snapshots", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	history, err := s.store.ScanHistory(r.Context(), limit)
	if err != nil {
		s.serverError(w, "scan history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

type scanStartRequest struct {
	Type string `json:"type"`
	Tier int    `json:"tier"`
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	req := scanStartRequest{Type: "full"}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var err error
	if req.Type == "quick" {
		err = s.orch.StartQuickScan(req.Tier)
	} else {
		err = s.orch.StartFullScan()
	}
	if errors.Is(err, scanner.ErrScanRunning) {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "Scan already in progress"})
		return
	}
	if err != nil {
		s.serverError(w, "start scan", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started", "type": req.Type})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	running, last := s.orch.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":     running,
		"last_result": last,
	})
}

type searchRequest struct {
	Term string `json:"term"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Term == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Search term required"})
		return
	}

	listings, err := s.orch.SearchOnce(r.Context(), req.Term)
	if err != nil {
		s.serverError(w, "search", err)
		return
	}
	s.writeJSON(w, http.StatusOK, listings)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"email_enabled":   s.cfg.EmailEnabled,
		"sms_enabled":     s.cfg.SMSEnabled,
		"discord_enabled": s.cfg.DiscordEnabled,
		"slack_enabled":   s.cfg.SlackEnabled,
		"scan_interval":   int(s.cfg.ScanInterval.Minutes()),
		"alert_cooldown":  int(s.cfg.AlertCooldown.Hours()),
		"tier_map":        s.cfg.TierChannels,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var data map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || len(data) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}

	for key, raw := range data {
		value := string(raw)
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			value = str
		}
		if err := s.store.SetSetting(r.Context(), key, value); err != nil {
			s.serverError(w, "save setting", err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleTestNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.router.TestAll(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.log.Error(what, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
