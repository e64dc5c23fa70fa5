package domain

import (
	"time"

	"github.com/google/uuid"
)

// CorrectionRecord captures a user overriding a resolution. It is appended
// once, consumed exactly once by the learner, and retained for audit.
type CorrectionRecord struct {
	ID          uuid.UUID  `json:"id"`
	SubjectType EntityType `json:"subject_type"`
	SubjectID   string     `json:"subject_id"`
	OldEntityID string     `json:"old_entity_id,omitempty"`
	NewEntityID string     `json:"new_entity_id"`
	// BlamedSource is the source whose evidence produced the wrong answer.
	BlamedSource SignalSource `json:"blamed_source,omitempty"`
	BlamedSignal SignalType   `json:"blamed_signal,omitempty"`
	// CreditedSource/CreditedSignal identify the combination that argued for
	// the corrected answer, when one existed.
	CreditedSource SignalSource `json:"credited_source,omitempty"`
	CreditedSignal SignalType   `json:"credited_signal,omitempty"`
	CorrectedAt    time.Time    `json:"corrected_at"`
}
