package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a known real-world entity the cascade can link subjects to.
// Names, aliases, and email domains feed the keyword and domain-heuristic
// tiers; the embedding feeds description mining.
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	Type       EntityType     `json:"entity_type"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Aliases    []string       `json:"aliases,omitempty"`
	Domains    []string       `json:"domains,omitempty"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
