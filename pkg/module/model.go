package module

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExampleUsage a code snippet shown on the listing detail page
type ExampleUsage struct {
	Title    string `json:"title" yaml:"title"`
	Language string `json:"language" yaml:"language"`
	Code     string `json:"code" yaml:"code"`
}

// ListingDocs defines model for ListingDocs.
type ListingDocs struct {
	Overview string `json:"overview" yaml:"overview"`
	Setup    string `json:"setup" yaml:"setup"`
	Api      string `json:"api" yaml:"api"`
}

// ModelListing defines model for ModelListing.
type ModelListing struct {
	// Id unique within the merged catalog
	Id string `json:"id"`

	// ModelType text, image, audio or multimodal
	ModelType string `json:"modelType"`

	Name        string `json:"name"`
	Description string `json:"description"`

	// PricePerInference unit price, copied onto every request at submission
	PricePerInference decimal.Decimal `json:"pricePerInference"`

	// ResponseTimeMs only set for instrumented listings
	ResponseTimeMs *int64 `json:"responseTimeMs,omitempty"`

	// AccuracyRate percent, only set for instrumented listings
	AccuracyRate *float64 `json:"accuracyRate,omitempty"`

	// Origin curated or registered
	Origin string `json:"origin"`

	// ProviderId the owning provider, empty for curated listings
	ProviderId string `json:"providerId,omitempty"`
	// ProviderOwner identity of the owning provider, the key outcomes are counted under
	ProviderOwner string `json:"-"`

	Capabilities []string       `json:"capabilities,omitempty"`
	Examples     []ExampleUsage `json:"exampleUsage,omitempty"`
	Docs         *ListingDocs   `json:"docs,omitempty"`

	// Active false once the provider deactivated a registered listing
	Active    bool  `json:"active"`
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// ListingInput defines body for RegisterModel for application/json ContentType.
type ListingInput struct {
	Id                string          `json:"id"`
	ModelType         string          `json:"modelType"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	PricePerInference decimal.Decimal `json:"pricePerInference"`
	ResponseTimeMs    *int64          `json:"responseTimeMs"`
	AccuracyRate      *float64        `json:"accuracyRate"`
	Capabilities      []string        `json:"capabilities"`
}

// Provider defines model for Provider.
type Provider struct {
	Id                 string          `json:"id"`
	OwnerIdentity      string          `json:"ownerIdentity"`
	Name               string          `json:"providerName"`
	Description        string          `json:"description"`
	Website            string          `json:"website"`
	StakeAmount        decimal.Decimal `json:"stakeAmount"`
	TotalRequests      int64           `json:"totalRequests"`
	SuccessfulRequests int64           `json:"successfulRequests"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ReputationScore derived from the counters, never stored
func (p *Provider) ReputationScore() float64 {
	return ReputationScore(p.TotalRequests, p.SuccessfulRequests)
}

func (p Provider) MarshalJSON() ([]byte, error) {
	type provider Provider
	return json.Marshal(struct {
		provider
		ReputationScore float64 `json:"reputationScore"`
	}{
		provider:        provider(p),
		ReputationScore: p.ReputationScore(),
	})
}

// ProfileInput defines body for UpdateProvider, nil fields are left unchanged.
type ProfileInput struct {
	Name        *string          `json:"providerName"`
	Description *string          `json:"description"`
	Website     *string          `json:"website"`
	StakeAmount *decimal.Decimal `json:"stakeAmount"`
}

// ApiKey defines model for ApiKey.
type ApiKey struct {
	Id            string    `json:"id"`
	OwnerIdentity string    `json:"ownerIdentity"`
	DisplayName   string    `json:"displayName"`
	Secret        string    `json:"secret"`
	CreatedAt     time.Time `json:"createdAt"`
}

// InferenceRequest defines model for InferenceRequest.
type InferenceRequest struct {
	Id                string `json:"id"`
	DeveloperIdentity string `json:"developerIdentity"`
	ModelId           string `json:"modelId"`

	// ProviderId copied from the listing, empty for curated models
	ProviderId    string `json:"providerId,omitempty"`
	ProviderOwner string `json:"-"`

	Status string `json:"status"`

	// Price copied from the listing at submission, never recomputed
	Price decimal.Decimal `json:"price"`

	// ProcessingTimeMs set on terminal states only
	ProcessingTimeMs *int64 `json:"processingTimeMs,omitempty"`

	// OutcomeCounted the terminal outcome reached the provider counters
	OutcomeCounted bool `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// RequestStats defines model for RequestStats.
type RequestStats struct {
	TotalSpent              decimal.Decimal `json:"totalSpent"`
	TotalRequests           int64           `json:"totalRequests"`
	CompletedCount          int64           `json:"completedCount"`
	AverageProcessingTimeMs float64         `json:"averageProcessingTimeMs"`
}
