// Package embedding supplies the vector-embedding capability injected into
// relevance ranking and semantic entity search. The core never calls a
// model directly; it only sees the EmbeddingClient interface.
package embedding

import (
	"fmt"

	"github.com/calder-labs/sigil/internal/domain"
)

// Known provider names for NewClient.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient builds the embedding client named by provider. The mock
// provider is deterministic and keyless, for tests and local development;
// everything else needs an API key up front so a misconfigured deployment
// fails at startup rather than on the first embed call.
func NewClient(provider, apiKey string) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("openai embedding provider requires an API key")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want %q or %q)", provider, ProviderOpenAI, ProviderMock)
	}
}
