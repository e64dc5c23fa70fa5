package domain

import "time"

// WeightKey identifies a reliability estimate: how trustworthy a source is
// for a given signal type about a given entity category.
type WeightKey struct {
	Source     SignalSource `json:"source"`
	EntityType EntityType   `json:"entity_type"`
	SignalType SignalType   `json:"signal_type"`
}

// SignalWeight holds Beta-distribution parameters accumulated from
// correction outcomes. Alpha counts confirmations, Beta counts blame.
// Both stay strictly positive.
type SignalWeight struct {
	Key       WeightKey `json:"key"`
	Alpha     float64   `json:"alpha"`
	Beta      float64   `json:"beta"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSignalWeight returns the uninformative prior for a key.
func NewSignalWeight(key WeightKey) *SignalWeight {
	return &SignalWeight{Key: key, Alpha: 1, Beta: 1}
}

// Mean is the point estimate alpha/(alpha+beta).
func (w *SignalWeight) Mean() float64 {
	return w.Alpha / (w.Alpha + w.Beta)
}
