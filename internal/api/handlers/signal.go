package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/service"
	"github.com/calder-labs/sigil/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SignalHandler struct {
	svc      *service.SignalService
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

func NewSignalHandler(svc *service.SignalService, embedder domain.EmbeddingClient, logger *zap.Logger) *SignalHandler {
	return &SignalHandler{svc: svc, embedder: embedder, logger: logger}
}

type emitSignalRequest struct {
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	SignalType string  `json:"signal_type"`
	Source     string  `json:"source"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	// HalfLife overrides the source default, as a Go duration string.
	HalfLife   string `json:"half_life,omitempty"`
	ContextTag string `json:"context_tag,omitempty"`
	// EmbedText, when set, is embedded and stored alongside the signal for
	// relevance ranking.
	EmbedText   string `json:"embed_text,omitempty"`
	Invalidates string `json:"invalidates,omitempty"`
}

func (h *SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req emitSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	emit := service.EmitRequest{
		Entity: domain.EntityRef{
			Type: domain.EntityType(req.EntityType),
			ID:   req.EntityID,
		},
		SignalType: domain.SignalType(req.SignalType),
		Source:     domain.SignalSource(req.Source),
		Value:      req.Value,
		Confidence: req.Confidence,
		ContextTag: req.ContextTag,
	}

	if req.HalfLife != "" {
		d, err := time.ParseDuration(req.HalfLife)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid half_life")
			return
		}
		emit.HalfLife = d
	}

	if req.Invalidates != "" {
		id, err := uuid.Parse(req.Invalidates)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid invalidates id")
			return
		}
		emit.Invalidates = &id
	}

	if req.EmbedText != "" && h.embedder != nil {
		vec, err := h.embedder.Embed(r.Context(), req.EmbedText)
		if err != nil {
			// Embedding failures degrade relevance ranking but never block
			// ingestion.
			h.logger.Warn("embed signal text failed", zap.Error(err))
		} else {
			emit.Embedding = vec
		}
	}

	id, err := h.svc.Emit(r.Context(), emit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEntityIDMissing),
			errors.Is(err, service.ErrUnknownEntityType),
			errors.Is(err, service.ErrUnknownSignalType),
			errors.Is(err, service.ErrUnknownSignalSource):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to record signal")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

// Get returns one event plus how many events were derived from it.
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	ev, derived, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get signal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event":         ev,
		"derived_count": derived,
	})
}

// List reads the event log, newest filters via query parameters.
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := domain.EventQuery{
		ContextTag: r.URL.Query().Get("context_tag"),
	}

	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType != "" || entityID != "" {
		if entityType == "" || entityID == "" {
			writeError(w, http.StatusBadRequest, "entity_type and entity_id must be provided together")
			return
		}
		if !domain.ValidEntityType(entityType) {
			writeError(w, http.StatusBadRequest, "invalid entity_type")
			return
		}
		q.Entity = &domain.EntityRef{Type: domain.EntityType(entityType), ID: entityID}
	}

	for _, t := range splitCSV(r.URL.Query().Get("signal_types")) {
		if !domain.ValidSignalType(t) {
			writeError(w, http.StatusBadRequest, "invalid signal_type: "+t)
			return
		}
		q.SignalTypes = append(q.SignalTypes, domain.SignalType(t))
	}

	var err error
	if q.Since, err = parseTimeParam(r.URL.Query().Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	if q.Until, err = parseTimeParam(r.URL.Query().Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid until timestamp")
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	events, err := h.svc.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query signals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Confidence returns the fused confidence for one entity's signals.
func (h *SignalHandler) Confidence(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if !domain.ValidEntityType(entityType) {
		writeError(w, http.StatusBadRequest, "invalid entity_type")
		return
	}
	if entityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	var signalTypes []domain.SignalType
	for _, t := range splitCSV(r.URL.Query().Get("signal_types")) {
		if !domain.ValidSignalType(t) {
			writeError(w, http.StatusBadRequest, "invalid signal_type: "+t)
			return
		}
		signalTypes = append(signalTypes, domain.SignalType(t))
	}

	asOf, err := parseTimeParam(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of timestamp")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	score, err := h.svc.FuseConfidence(r.Context(),
		domain.EntityRef{Type: domain.EntityType(entityType), ID: entityID},
		signalTypes, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fuse confidence")
		return
	}

	writeJSON(w, http.StatusOK, score)
}
