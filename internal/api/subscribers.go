package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/webberzone/gluelink/internal/domain"
	"github.com/webberzone/gluelink/internal/store"
)

// SubscriberHandler exposes the stored subscriber records for reporting.
type SubscriberHandler struct {
	store *store.PostgresStore
}

func NewSubscriberHandler(s *store.PostgresStore) *SubscriberHandler {
	return &SubscriberHandler{store: s}
}

type listSubscribersResponse struct {
	Subscribers []domain.Subscriber `json:"subscribers"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	PerPage     int                 `json:"per_page"`
}

func (h *SubscriberHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := store.SubscriberFilter{
		Search:   query.Get("search"),
		Statuses: domain.ParseList(query.Get("status")),
		Page:     queryInt(query.Get("page"), 1),
		PerPage:  queryInt(query.Get("per_page"), 10),
		OrderBy:  query.Get("orderby"),
		Order:    query.Get("order"),
	}

	subscribers, err := h.store.ListSubscribers(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}

	total, err := h.store.CountSubscribers(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count subscribers")
		return
	}

	respondJSON(w, http.StatusOK, listSubscribersResponse{
		Subscribers: subscribers,
		Total:       total,
		Page:        filter.Page,
		PerPage:     filter.PerPage,
	})
}

func (h *SubscriberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	sub, err := h.store.GetSubscriber(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscriber")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subscriber id")
		return
	}

	if err := h.store.DeleteSubscriber(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete subscriber")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *SubscriberHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "at least one id is required")
		return
	}

	if err := h.store.DeleteSubscribers(r.Context(), req.IDs); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete subscribers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

func (h *SubscriberHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.SubscriberCountsByStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscriber counts")
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": counts,
	})
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
