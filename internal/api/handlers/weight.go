package handlers

import (
	"net/http"

	"github.com/calder-labs/sigil/internal/service"
)

type WeightHandler struct {
	learner *service.CorrectionLearner
}

func NewWeightHandler(learner *service.CorrectionLearner) *WeightHandler {
	return &WeightHandler{learner: learner}
}

// List returns every learned reliability estimate.
func (h *WeightHandler) List(w http.ResponseWriter, r *http.Request) {
	weights, err := h.learner.Weights(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list weights")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"weights": weights,
		"count":   len(weights),
	})
}
