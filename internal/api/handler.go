// Package api implements the HTTP handlers of the allocation service.
//
// Routes:
//
//	POST /allocation/start                         → lock preferences, run round 1
//	GET  /allocation/snapshot                      → full engine state
//	GET  /allocation/statistics                    → global statistics
//	GET  /allocation/groups                        → per-group statistics
//	GET  /allocation/report                        → plain-text report download
//	POST /offers/{id}/accept                       → confirm an offer
//	POST /offers/{id}/reject                       → decline an offer
//	GET  /candidates/{id}                          → one candidate
//	GET  /candidates/{id}/eligible                 → positions the candidate may choose
//	POST /candidates/{id}/preferences/{positionId} → toggle a preference
//	PUT  /candidates/{id}/preferences              → reorder preferences
//	GET  /events                                   → server-sent engine events
//
// Mutating routes are rate limited per client.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"code.cloudfoundry.org/clock"

	"jobmate/allocation-service/internal/allocation"
	"jobmate/allocation-service/internal/events"
	"jobmate/allocation-service/internal/report"
)

// Allocator is the business layer behind the handlers.
type Allocator interface {
	Start() bool
	Accept(offerID string) error
	Reject(offerID string) error
	Snapshot() allocation.Snapshot
	Statistics() allocation.Statistics
	GroupStatistics() []allocation.GroupStatistics
	Candidate(id string) (allocation.Candidate, error)
	TogglePreference(candidateID, positionID string) (allocation.Candidate, error)
	ReorderPreferences(candidateID string, positionIDs []string) (allocation.Candidate, error)
	EligiblePositions(candidateID string) ([]allocation.Position, error)
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	alloc   Allocator
	hub     *events.Hub
	limiter *clientLimiter
	clock   clock.Clock
	logger  *slog.Logger
}

// NewHandler returns a configured Handler. ratePerSec limits mutating
// requests per client; hub may be nil, which disables /events.
func NewHandler(alloc Allocator, hub *events.Hub, ratePerSec float64, clk clock.Clock, logger *slog.Logger) *Handler {
	if clk == nil {
		clk = clock.NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		alloc:   alloc,
		hub:     hub,
		limiter: newClientLimiter(ratePerSec, burstFor(ratePerSec)),
		clock:   clk,
		logger:  logger,
	}
}

// RegisterRoutes mounts all allocation-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/allocation/", h.handleAllocation)
	mux.HandleFunc("/offers/", h.limited(h.handleOfferAction))
	mux.HandleFunc("/candidates/", h.handleCandidate)
	if h.hub != nil {
		mux.HandleFunc("/events", h.serveEvents)
	}
}

// ─── Route dispatch ──────────────────────────────────────────────────────────

// handleAllocation handles /allocation/{action}
func (h *Handler) handleAllocation(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/allocation/")
	switch action {
	case "start":
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.limited(h.start)(w, r)
		return
	case "snapshot", "statistics", "groups", "report":
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "snapshot":
		jsonOK(w, h.alloc.Snapshot())
	case "statistics":
		jsonOK(w, h.alloc.Statistics())
	case "groups":
		jsonOK(w, h.alloc.GroupStatistics())
	case "report":
		h.report(w, r)
	}
}

// handleOfferAction handles POST /offers/{id}/accept|reject
func (h *Handler) handleOfferAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[1] == "" {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	offerID, action := parts[1], parts[2]

	var err error
	switch action {
	case "accept":
		err = h.alloc.Accept(offerID)
	case "reject":
		err = h.alloc.Reject(offerID)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.offer(w, offerID)
}

// handleCandidate handles /candidates/{id}[/eligible|/preferences[/{positionId}]]
func (h *Handler) handleCandidate(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[1] == "" {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	candidateID := parts[1]

	switch {
	case len(parts) == 2:
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c, err := h.alloc.Candidate(candidateID)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		jsonOK(w, c)
	case len(parts) == 3 && parts[2] == "eligible":
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		positions, err := h.alloc.EligiblePositions(candidateID)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		jsonOK(w, positions)
	case len(parts) == 3 && parts[2] == "preferences":
		if r.Method != http.MethodPut {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.limited(func(w http.ResponseWriter, r *http.Request) { h.reorder(w, r, candidateID) })(w, r)
	case len(parts) == 4 && parts[2] == "preferences" && parts[3] != "":
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		positionID := parts[3]
		h.limited(func(w http.ResponseWriter, _ *http.Request) { h.toggle(w, candidateID, positionID) })(w, r)
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

// ─── Individual handlers ─────────────────────────────────────────────────────

func (h *Handler) start(w http.ResponseWriter, _ *http.Request) {
	started := h.alloc.Start()
	jsonOK(w, map[string]any{
		"started":    started,
		"statistics": h.alloc.Statistics(),
	})
}

// offer writes the current state of one offer.
func (h *Handler) offer(w http.ResponseWriter, offerID string) {
	for _, o := range h.alloc.Snapshot().Offers {
		if o.ID == offerID {
			jsonOK(w, o)
			return
		}
	}
	jsonError(w, "offer not found", http.StatusNotFound)
}

func (h *Handler) report(w http.ResponseWriter, _ *http.Request) {
	now := h.clock.Now()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(now)))
	if err := report.Write(w, h.alloc.Snapshot(), now); err != nil {
		h.logger.Warn("report write failed", "err", err)
	}
}

func (h *Handler) toggle(w http.ResponseWriter, candidateID, positionID string) {
	c, err := h.alloc.TogglePreference(candidateID, positionID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, c)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request, candidateID string) {
	var body struct {
		PositionIDs []string `json:"positionIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	c, err := h.alloc.ReorderPreferences(candidateID, body.PositionIDs)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	jsonOK(w, c)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// httpStatus maps domain errors to HTTP status codes.
func httpStatus(err error) int {
	var ve *allocation.ValidationError
	switch {
	case errors.Is(err, allocation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, allocation.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
		jsonError(w, "internal server error", code)
		return
	}
	jsonError(w, err.Error(), code)
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
