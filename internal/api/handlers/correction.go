package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calder-labs/sigil/internal/domain"
	"github.com/calder-labs/sigil/internal/service"
)

type CorrectionHandler struct {
	learner     *service.CorrectionLearner
	corrections domain.CorrectionStore
}

func NewCorrectionHandler(learner *service.CorrectionLearner, corrections domain.CorrectionStore) *CorrectionHandler {
	return &CorrectionHandler{learner: learner, corrections: corrections}
}

type createCorrectionRequest struct {
	SubjectType    string `json:"subject_type"`
	SubjectID      string `json:"subject_id"`
	OldEntityID    string `json:"old_entity_id,omitempty"`
	NewEntityID    string `json:"new_entity_id"`
	BlamedSource   string `json:"blamed_source,omitempty"`
	BlamedSignal   string `json:"blamed_signal,omitempty"`
	CreditedSource string `json:"credited_source,omitempty"`
	CreditedSignal string `json:"credited_signal,omitempty"`
}

func (h *CorrectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEntityType(req.SubjectType) {
		writeError(w, http.StatusBadRequest, "invalid subject_type")
		return
	}
	if req.BlamedSource != "" && !domain.ValidSignalSource(req.BlamedSource) {
		writeError(w, http.StatusBadRequest, "invalid blamed_source")
		return
	}
	if req.CreditedSource != "" && !domain.ValidSignalSource(req.CreditedSource) {
		writeError(w, http.StatusBadRequest, "invalid credited_source")
		return
	}
	if req.BlamedSignal != "" && !domain.ValidSignalType(req.BlamedSignal) {
		writeError(w, http.StatusBadRequest, "invalid blamed_signal")
		return
	}
	if req.CreditedSignal != "" && !domain.ValidSignalType(req.CreditedSignal) {
		writeError(w, http.StatusBadRequest, "invalid credited_signal")
		return
	}

	rec := &domain.CorrectionRecord{
		SubjectType:    domain.EntityType(req.SubjectType),
		SubjectID:      req.SubjectID,
		OldEntityID:    req.OldEntityID,
		NewEntityID:    req.NewEntityID,
		BlamedSource:   domain.SignalSource(req.BlamedSource),
		BlamedSignal:   domain.SignalType(req.BlamedSignal),
		CreditedSource: domain.SignalSource(req.CreditedSource),
		CreditedSignal: domain.SignalType(req.CreditedSignal),
	}

	if err := h.learner.RecordCorrection(r.Context(), rec); err != nil {
		switch {
		case errors.Is(err, service.ErrCorrectionSubjectMissing),
			errors.Is(err, service.ErrCorrectionNewEntityMissing):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to record correction")
		}
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// List returns the correction audit trail for one subject.
func (h *CorrectionHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectType := r.URL.Query().Get("subject_type")
	subjectID := r.URL.Query().Get("subject_id")
	if !domain.ValidEntityType(subjectType) {
		writeError(w, http.StatusBadRequest, "invalid subject_type")
		return
	}
	if subjectID == "" {
		writeError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	records, err := h.corrections.ListBySubject(r.Context(), domain.EntityType(subjectType), subjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list corrections")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"corrections": records,
		"count":       len(records),
	})
}
