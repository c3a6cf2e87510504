package clients

import (
	"context"
	"fmt"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// KeyBlacklist is the registry key for the internal blacklist check.
const KeyBlacklist = "blacklist"

// Blacklist checks the applicant against the lender's stop lists. A hit is
// a hard rejection regardless of anything else in the pipeline.
type Blacklist struct {
	integration.Base

	client *httpClient
}

func NewBlacklist(cfg integration.Config) (integration.Integration, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("blacklist config %q: address is required", cfg.Name)
	}
	return &Blacklist{client: newHTTPClient(cfg)}, nil
}

func (b *Blacklist) Conditions(_ context.Context, sub subject.Subject) bool {
	return sub.Reference() != ""
}

func (b *Blacklist) Run(ctx context.Context, sub subject.Subject) (integration.Payload, error) {
	var result struct {
		Listed bool   `json:"listed"`
		List   string `json:"list"`
	}
	req := map[string]string{"national_id": sub.Reference()}
	if err := b.client.postJSON(ctx, "/api/v1/check", req, &result); err != nil {
		return nil, err
	}
	return integration.Payload{"listed": result.Listed, "list": result.List}, nil
}

func (b *Blacklist) CheckRule(_ context.Context, _ subject.Subject, payload integration.Payload) error {
	if listed, _ := payload["listed"].(bool); listed {
		return integration.NewRejectError("BLACKLISTED")
	}
	return nil
}
