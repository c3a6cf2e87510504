package clients

import (
	"context"
	"fmt"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// KeyBanking is the registry key for the core banking sync.
const KeyBanking = "banking"

// Banking registers the applicant as a client in the core accounting
// system and records the returned client number. It never rejects: a core
// system failure is an availability problem, not a credit decision.
type Banking struct {
	integration.Base

	client *httpClient
}

func NewBanking(cfg integration.Config) (integration.Integration, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("banking config %q: address is required", cfg.Name)
	}
	return &Banking{client: newHTTPClient(cfg)}, nil
}

// Conditions: the core system only needs applications, not raw leads.
func (b *Banking) Conditions(_ context.Context, sub subject.Subject) bool {
	_, ok := sub.(*subject.CreditApplication)
	return ok
}

func (b *Banking) Run(ctx context.Context, sub subject.Subject) (integration.Payload, error) {
	app := sub.(*subject.CreditApplication)
	req := map[string]any{
		"national_id": app.NationalID,
		"full_name":   app.FullName,
		"phone":       app.Phone,
		"product":     app.Product,
		"amount":      app.Amount,
		"term_months": app.TermMonths,
	}
	var result struct {
		ClientNumber string `json:"client_number"`
	}
	if err := b.client.postJSON(ctx, "/api/v1/clients", req, &result); err != nil {
		return nil, err
	}
	if result.ClientNumber == "" {
		return nil, integration.NewRemoteError(b.client.cfg.Name, "NO_CLIENT_NUMBER",
			"core system returned an empty client number")
	}
	return integration.Payload{"client_number": result.ClientNumber}, nil
}

func (b *Banking) Save(_ context.Context, sub subject.Subject, payload integration.Payload) error {
	app, ok := sub.(*subject.CreditApplication)
	if !ok {
		return nil
	}
	number, _ := payload["client_number"].(string)
	if number == "" {
		return fmt.Errorf("banking payload has no client number")
	}
	app.SetExtra("client_number", number)
	return nil
}
