package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EntityHandler struct {
	entities domain.EntityStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

func NewEntityHandler(entities domain.EntityStore, embedder domain.EmbeddingClient, logger *zap.Logger) *EntityHandler {
	return &EntityHandler{entities: entities, embedder: embedder, logger: logger}
}

type createEntityRequest struct {
	Type       string         `json:"entity_type"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	Domains    []string       `json:"domains,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEntityType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid entity_type")
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	entity := &domain.Entity{
		Type:       domain.EntityType(req.Type),
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Aliases:    req.Aliases,
		Domains:    req.Domains,
		Metadata:   req.Metadata,
	}

	if h.embedder != nil {
		vec, err := h.embedder.Embed(r.Context(), req.Name)
		if err != nil {
			h.logger.Warn("embed entity name failed", zap.Error(err))
		} else {
			entity.Embedding = vec
		}
	}

	if err := h.entities.Create(r.Context(), entity); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create entity")
		return
	}

	writeJSON(w, http.StatusCreated, entity)
}

func (h *EntityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	entity, err := h.entities.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get entity")
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

// defaultSimilarityThreshold is the floor for semantic entity search;
// matches below it are noise from the embedding space, not candidates.
const defaultSimilarityThreshold = 0.5

// Search finds entities by name/alias, email domain, or semantic similarity
// to a free-text query.
func (h *EntityHandler) Search(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	if !domain.ValidEntityType(entityType) {
		writeError(w, http.StatusBadRequest, "invalid entity_type")
		return
	}

	name := r.URL.Query().Get("name")
	emailDomain := r.URL.Query().Get("domain")
	query := r.URL.Query().Get("query")

	switch {
	case query != "":
		h.searchBySimilarity(w, r, domain.EntityType(entityType), query)

	case name != "":
		entity, err := h.entities.FindByNameOrAlias(r.Context(), domain.EntityType(entityType), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no matching entity")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to search entities")
			return
		}
		writeJSON(w, http.StatusOK, entity)

	case emailDomain != "":
		entity, err := h.entities.FindByDomain(r.Context(), domain.EntityType(entityType), emailDomain)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no matching entity")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to search entities")
			return
		}
		writeJSON(w, http.StatusOK, entity)

	default:
		entities, err := h.entities.ListByType(r.Context(), domain.EntityType(entityType))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list entities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entities": entities,
			"count":    len(entities),
		})
	}
}

// searchBySimilarity embeds the query text and finds the closest entities by
// vector distance. This is the lookup behind the description-mining tier:
// free text in, ranked entity candidates out.
func (h *EntityHandler) searchBySimilarity(w http.ResponseWriter, r *http.Request, entityType domain.EntityType, query string) {
	if h.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "embedding provider not configured")
		return
	}

	vec, err := h.embedder.Embed(r.Context(), query)
	if err != nil {
		h.logger.Warn("embed entity query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to embed query")
		return
	}

	threshold := float32(defaultSimilarityThreshold)
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 32)
		if err != nil || parsed < 0 || parsed > 1 {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = float32(parsed)
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entities, err := h.entities.FindByEmbeddingSimilarity(r.Context(), entityType, vec, threshold, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search entities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}
