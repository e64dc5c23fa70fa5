package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/service"
)

type ResolveHandler struct {
	resolver *service.Resolver
}

func NewResolveHandler(resolver *service.Resolver) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

type resolveRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	AsOf        string `json:"as_of,omitempty"`
}

// Resolve runs the tier cascade for one subject against its current signals.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEntityType(req.SubjectType) {
		writeError(w, http.StatusBadRequest, "invalid subject_type")
		return
	}
	if req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	asOf, err := parseTimeParam(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of timestamp")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	subject := domain.EntityRef{Type: domain.EntityType(req.SubjectType), ID: req.SubjectID}
	res, err := h.resolver.ResolveSubject(r.Context(), subject, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve subject")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
