package handlers

import (
	"net/http"

	"github.com/calder-labs/sigil/internal/service"
)

type ReviewHandler struct {
	review *service.ReviewService
}

func NewReviewHandler(review *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{review: review}
}

// TriggerSweep runs one review sweep immediately instead of waiting for the
// background schedule.
func (h *ReviewHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.review.RunSweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "review sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
