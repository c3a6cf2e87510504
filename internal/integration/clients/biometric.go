package clients

import (
	"context"
	"fmt"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// KeyBiometric is the registry key for the face-match vendor.
const KeyBiometric = "biometric"

// Biometric asks the vendor to compare the applicant's selfie against the
// registry photo. The vendor returns a similarity in [0,1]; the acceptance
// threshold comes from service config params as an integer percentage.
type Biometric struct {
	integration.Base

	client    *httpClient
	threshold float64
}

func NewBiometric(cfg integration.Config) (integration.Integration, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("biometric config %q: address is required", cfg.Name)
	}
	percent := cfg.Params.Int("match_threshold_percent", 85)
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("biometric config %q: match_threshold_percent %d out of range", cfg.Name, percent)
	}
	return &Biometric{
		client:    newHTTPClient(cfg),
		threshold: float64(percent) / 100,
	}, nil
}

func (b *Biometric) Conditions(_ context.Context, sub subject.Subject) bool {
	return sub.Reference() != ""
}

func (b *Biometric) Run(ctx context.Context, sub subject.Subject) (integration.Payload, error) {
	var result struct {
		Similarity float64 `json:"similarity"`
		Liveness   bool    `json:"liveness"`
	}
	req := map[string]string{"national_id": sub.Reference()}
	if err := b.client.postJSON(ctx, "/api/v1/match", req, &result); err != nil {
		return nil, err
	}
	return integration.Payload{
		"similarity": result.Similarity,
		"liveness":   result.Liveness,
	}, nil
}

func (b *Biometric) CheckRule(_ context.Context, _ subject.Subject, payload integration.Payload) error {
	if liveness, _ := payload["liveness"].(bool); !liveness {
		return integration.NewRejectError("LIVENESS_FAILED")
	}
	similarity, _ := payload["similarity"].(float64)
	if similarity < b.threshold {
		return integration.NewRejectError("BIOMETRIC_MISMATCH")
	}
	return nil
}
