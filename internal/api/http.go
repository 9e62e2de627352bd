package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfsentry/rfsentry/internal/correlate"
	"github.com/rfsentry/rfsentry/internal/model"
	"github.com/rfsentry/rfsentry/internal/store"
)

// HTTPAPI exposes read-only operator endpoints over the engine's state.
// Everything here is a view; no mutation of the store or the finding set
// happens through HTTP.
type HTTPAPI struct {
	engine *correlate.Engine
	store  *store.ObservationStore
	audit  *store.FindingAudit
	nowFn  func() time.Time
}

// NewHTTPAPI creates the API over the given engine and stores.
func NewHTTPAPI(engine *correlate.Engine, obsStore *store.ObservationStore, audit *store.FindingAudit) *HTTPAPI {
	return &HTTPAPI{
		engine: engine,
		store:  obsStore,
		audit:  audit,
		nowFn:  time.Now,
	}
}

// Router builds the chi router with all routes mounted.
func (a *HTTPAPI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/findings", a.handleFindings)
	r.Get("/findings/{id}", a.handleFindingByID)
	r.Get("/networks", a.handleNetworks)
	r.Get("/networks/{bssid}", a.handleNetworkByBSSID)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.handleHealth)
	r.Get("/readyz", a.handleReady)

	return r
}

// handleFindings serves GET /findings with optional status, type and
// severity filters. Default view is the active set; resolved findings come
// from the audit trail.
func (a *HTTPAPI) handleFindings(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	typeFilter := r.URL.Query().Get("type")
	severityFilter := r.URL.Query().Get("severity")

	var findings []*model.Finding
	switch status {
	case "", "active", "open":
		findings = a.engine.ActiveFindings()
	case "resolved":
		findings = a.audit.All()
	default:
		writeError(w, http.StatusBadRequest, "status must be active or resolved")
		return
	}

	var filtered []*model.Finding
	for _, f := range findings {
		if typeFilter != "" && string(f.Type) != typeFilter {
			continue
		}
		if severityFilter != "" && string(f.Severity) != severityFilter {
			continue
		}
		filtered = append(filtered, f)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"findings": filtered,
		"count":    len(filtered),
	})
}

// handleFindingByID serves GET /findings/{id}, searching the active set
// first and the audit trail second.
func (a *HTTPAPI) handleFindingByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, f := range a.engine.ActiveFindings() {
		if f.ID == id {
			writeJSON(w, http.StatusOK, f)
			return
		}
	}
	for _, f := range a.audit.All() {
		if f.ID == id {
			writeJSON(w, http.StatusOK, f)
			return
		}
	}
	writeError(w, http.StatusNotFound, "finding not found")
}

// networkSummary is the operator-facing view of one tracked BSSID.
type networkSummary struct {
	BSSID        string         `json:"bssid"`
	SSIDs        []string       `json:"ssids"`
	LastChannel  int            `json:"last_channel"`
	LastSignal   int            `json:"last_signal"`
	LastSecurity model.Security `json:"last_security"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
}

func summarize(h *model.NetworkHistory) networkSummary {
	return networkSummary{
		BSSID:        h.BSSID,
		SSIDs:        h.SSIDsWithin(time.Time{}),
		LastChannel:  h.LastChannel,
		LastSignal:   h.LastSignal,
		LastSecurity: h.LastSecurity,
		FirstSeen:    h.FirstSeen,
		LastSeen:     h.LastSeen,
	}
}

// handleNetworks serves GET /networks: the currently active population.
func (a *HTTPAPI) handleNetworks(w http.ResponseWriter, r *http.Request) {
	active := a.store.AllActive(a.nowFn())
	summaries := make([]networkSummary, 0, len(active))
	for _, h := range active {
		summaries = append(summaries, summarize(h))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"networks": summaries,
		"count":    len(summaries),
	})
}

// handleNetworkByBSSID serves GET /networks/{bssid} with the full history
// and any findings the BSSID accumulated.
func (a *HTTPAPI) handleNetworkByBSSID(w http.ResponseWriter, r *http.Request) {
	bssid := chi.URLParam(r, "bssid")
	history, err := a.store.HistoryFor(bssid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "network not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var related []*model.Finding
	for _, f := range a.engine.ActiveFindings() {
		if f.SubjectBSSID == bssid || f.CounterpartBSSID == bssid {
			related = append(related, f)
		}
	}
	related = append(related, a.audit.ByBSSID(bssid)...)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":  history,
		"findings": related,
	})
}

func (a *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *HTTPAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"cycles": a.engine.CycleCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
