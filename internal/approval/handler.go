package approval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/orionerr"
)

// pendingView is the admin-facing projection of a pending request — enough
// to decide, not the full internal contract shape.
type pendingView struct {
	ApprovalRequestID string `json:"approval_request_id"`
	DecisionID        string `json:"decision_id"`
	ActionType        string `json:"action_type"`
	RiskLevel         string `json:"risk_level"`
	ExpiresAt         string `json:"expires_at"`
}

type decideRequest struct {
	AdminIdentity    string `json:"admin_identity"`
	Reason           string `json:"reason"`
	OverrideBreaker  bool   `json:"override_breaker,omitempty"`
	OverrideCooldown bool   `json:"override_cooldown,omitempty"`
}

// Handler exposes the admin CLI surface for the Approval Coordinator over
// HTTP: list pending requests, approve, deny, force. Every call is
// channel-scoped to ChannelCLI — a Telegram-originated approval still goes
// through Coordinator.Approve directly from the bot integration, never
// through this handler.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler wraps coordinator for CLI-channel admin operations.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// Register mounts the handler's routes onto mux under prefix "/approvals".
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/approvals/pending", h.listPending)
	mux.HandleFunc("/approvals/approve/", h.decide(h.coordinator.Approve))
	mux.HandleFunc("/approvals/deny/", h.decide(h.coordinator.Deny))
	mux.HandleFunc("/approvals/force/", h.decideForce)
}

// decideSimple is the shape shared by Coordinator.Approve and Coordinator.Deny.
type decideSimple func(ctx context.Context, requestID string, channel Channel, adminIdentity, reason string) (*contracts.ApprovalDecision, error)

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	views := make([]pendingView, 0, h.coordinator.PendingCount())
	h.coordinator.mu.Lock()
	for _, req := range h.coordinator.pending {
		views = append(views, pendingView{
			ApprovalRequestID: req.ApprovalRequestID,
			DecisionID:        req.DecisionID,
			ActionType:        req.ActionType,
			RiskLevel:         req.RiskLevel,
			ExpiresAt:         req.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	h.coordinator.mu.Unlock()
	writeJSON(w, http.StatusOK, views)
}

// decide adapts Coordinator.Approve/Deny into an http.HandlerFunc.
func (h *Handler) decide(fn decideSimple) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := pathTail(r.URL.Path)
		if !ok {
			http.Error(w, "missing approval_request_id", http.StatusBadRequest)
			return
		}
		var body decideRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		decision, err := fn(r.Context(), requestID, ChannelCLI, body.AdminIdentity, body.Reason)
		writeDecisionResult(w, decision, err)
	}
}

func (h *Handler) decideForce(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathTail(r.URL.Path)
	if !ok {
		http.Error(w, "missing approval_request_id", http.StatusBadRequest)
		return
	}
	var body decideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	decision, err := h.coordinator.Force(r.Context(), requestID, ChannelCLI, body.AdminIdentity, body.Reason, body.OverrideBreaker, body.OverrideCooldown)
	writeDecisionResult(w, decision, err)
}

func writeDecisionResult(w http.ResponseWriter, decision interface{}, err error) {
	if err != nil {
		switch {
		case errors.Is(err, orionerr.ErrIdentityMismatch):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, orionerr.ErrNotPending), errors.Is(err, orionerr.ErrExpired):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, orionerr.ErrInvalidReason):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathTail extracts the final path segment after the last "/" — the
// approval_request_id for /approvals/{verb}/{id} routes.
func pathTail(path string) (string, bool) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			tail := path[i+1:]
			return tail, tail != ""
		}
	}
	return "", false
}
