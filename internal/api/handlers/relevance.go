package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/service"
)

type RelevanceHandler struct {
	svc      *service.SignalService
	scorer   *service.RelevanceScorer
	embedder domain.EmbeddingClient
}

func NewRelevanceHandler(svc *service.SignalService, scorer *service.RelevanceScorer, embedder domain.EmbeddingClient) *RelevanceHandler {
	return &RelevanceHandler{svc: svc, scorer: scorer, embedder: embedder}
}

type rankRequest struct {
	Query       string   `json:"query,omitempty"`
	EntityType  string   `json:"entity_type,omitempty"`
	EntityID    string   `json:"entity_id,omitempty"`
	ContextTag  string   `json:"context_tag,omitempty"`
	SignalTypes []string `json:"signal_types,omitempty"`
	TopN        int      `json:"top_n,omitempty"`
	AsOf        string   `json:"as_of,omitempty"`
}

// Rank scores signals against a query context and returns the top matches.
// An empty query ranks by decayed confidence alone.
func (h *RelevanceHandler) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := domain.EventQuery{ContextTag: req.ContextTag}
	if req.EntityType != "" || req.EntityID != "" {
		if !domain.ValidEntityType(req.EntityType) {
			writeError(w, http.StatusBadRequest, "invalid entity_type")
			return
		}
		if req.EntityID == "" {
			writeError(w, http.StatusBadRequest, "entity_id is required with entity_type")
			return
		}
		q.Entity = &domain.EntityRef{Type: domain.EntityType(req.EntityType), ID: req.EntityID}
	}
	for _, t := range req.SignalTypes {
		if !domain.ValidSignalType(t) {
			writeError(w, http.StatusBadRequest, "invalid signal_type: "+t)
			return
		}
		q.SignalTypes = append(q.SignalTypes, domain.SignalType(t))
	}

	asOf, err := parseTimeParam(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of timestamp")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var queryEmbedding []float32
	if req.Query != "" {
		if h.embedder == nil {
			writeError(w, http.StatusServiceUnavailable, "embedding provider not configured")
			return
		}
		queryEmbedding, err = h.embedder.Embed(r.Context(), req.Query)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to embed query")
			return
		}
	}

	events, err := h.svc.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query signals")
		return
	}

	scored := h.scorer.Rank(events, queryEmbedding, asOf, req.TopN)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": scored,
		"count":   len(scored),
	})
}
