package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"dava-bot/internal/convo"
	"dava-bot/internal/metrics"
	"dava-bot/internal/repo"
)

// Notifier sends WhatsApp notifications to conversation identities.
type Notifier interface {
	SendText(ctx context.Context, to string, text string) error
}

// API serves the owner-facing draft review endpoints and a test console
// for driving conversations without WhatsApp.
type API struct {
	repo       *repo.Repository
	engine     *convo.Engine
	logger     *slog.Logger
	metrics    *metrics.Metrics
	notifier   Notifier
	businessID string
}

// New constructs the API handler set.
func New(repository *repo.Repository, engine *convo.Engine, notifier Notifier, m *metrics.Metrics, logger *slog.Logger, businessID string) *API {
	return &API{
		repo:       repository,
		engine:     engine,
		logger:     logger.With("component", "api"),
		metrics:    m,
		notifier:   notifier,
		businessID: businessID,
	}
}

// Register mounts all routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /drafts", a.handleListDrafts)
	mux.HandleFunc("GET /drafts/{id}", a.handleGetDraft)
	mux.HandleFunc("POST /drafts/{id}/approve", a.statusHandler(convo.StatusApproved))
	mux.HandleFunc("POST /drafts/{id}/reject", a.statusHandler(convo.StatusRejected))
	mux.HandleFunc("POST /drafts/{id}/execute", a.statusHandler(convo.StatusExecuted))
	mux.HandleFunc("POST /messages", a.handleMessage)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	status := convo.DraftStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	drafts, err := a.repo.ListDrafts(r.Context(), a.businessID, status, limit)
	if err != nil {
		a.logger.Error("list drafts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list drafts failed")
		return
	}
	if drafts == nil {
		drafts = []convo.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := a.repo.GetDraft(r.Context(), r.PathValue("id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	if err != nil {
		a.logger.Error("get draft failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get draft failed")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// statusHandler builds the lifecycle endpoints. Drafts only move
// draft -> approved -> executed, or draft -> rejected; rejected and
// executed are final.
func (a *API) statusHandler(target convo.DraftStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		current, err := a.repo.GetDraft(r.Context(), id)
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		if err != nil {
			a.logger.Error("get draft failed", "error", err)
			writeError(w, http.StatusInternalServerError, "get draft failed")
			return
		}

		if !validTransition(current.Status, target) {
			writeError(w, http.StatusConflict,
				fmt.Sprintf("cannot move draft from %s to %s", current.Status, target))
			return
		}

		updated, err := a.repo.SetDraftStatus(r.Context(), id, target)
		if errors.Is(err, repo.ErrTerminalStatus) {
			writeError(w, http.StatusConflict, "draft status is final")
			return
		}
		if err != nil {
			a.logger.Error("set draft status failed", "error", err, "draft", id, "status", target)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}

		a.metrics.Drafts.WithLabelValues(string(target)).Inc()
		a.logger.Info("draft status changed", "draft", id, "from", current.Status, "to", target)
		a.notifyStatusChange(r.Context(), updated)
		writeJSON(w, http.StatusOK, updated)
	}
}

func validTransition(from, to convo.DraftStatus) bool {
	switch from {
	case convo.StatusDraft:
		return to == convo.StatusApproved || to == convo.StatusRejected
	case convo.StatusApproved:
		return to == convo.StatusExecuted
	default:
		return false
	}
}

func (a *API) notifyStatusChange(ctx context.Context, draft *convo.Draft) {
	if a.notifier == nil {
		return
	}
	var text string
	switch draft.Status {
	case convo.StatusApproved:
		text = fmt.Sprintf("Order approve ho gaya: %s", draft.SummaryLine())
	case convo.StatusRejected:
		text = fmt.Sprintf("Order reject ho gaya: %s", draft.SummaryLine())
	case convo.StatusExecuted:
		text = fmt.Sprintf("Invoice ban gaya: %s", draft.SummaryLine())
	default:
		return
	}
	if err := a.notifier.SendText(ctx, draft.ConversationID, text); err != nil {
		a.logger.Warn("failed sending status notification", "error", err, "draft", draft.ID)
	}
}

type messageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// handleMessage is the test console: it drives the conversation core
// directly and returns the structured response, bypassing WhatsApp.
func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Text = strings.TrimSpace(req.Text)
	if req.ConversationID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "conversation_id and text are required")
		return
	}

	resp, err := a.engine.HandleMessage(r.Context(), req.ConversationID, req.Text)
	if err != nil {
		a.logger.Error("console message failed", "error", err, "conversation", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "message handling failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
