package clients

import (
	"context"
	"fmt"
	"strconv"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// KeyBureau is the registry key for the credit bureau report client.
const KeyBureau = "bureau"

// Bureau pulls a credit report and applies the configured score cutoff.
// The report is expensive and slow-changing, so bureau configs normally
// carry a multi-day cache lifetime.
type Bureau struct {
	integration.Base

	client   *httpClient
	minScore int
}

func NewBureau(cfg integration.Config) (integration.Integration, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("bureau config %q: address is required", cfg.Name)
	}
	return &Bureau{
		client:   newHTTPClient(cfg),
		minScore: cfg.Params.Int("min_score", 0),
	}, nil
}

func (b *Bureau) Conditions(_ context.Context, sub subject.Subject) bool {
	return sub.Reference() != ""
}

func (b *Bureau) Run(ctx context.Context, sub subject.Subject) (integration.Payload, error) {
	var report struct {
		Score        int   `json:"score"`
		ActiveLoans  int   `json:"active_loans"`
		OverdueDays  int   `json:"overdue_days"`
		TotalDebt    int64 `json:"total_debt"`
		MonthlyLoad  int64 `json:"monthly_load"`
	}
	req := map[string]string{"national_id": sub.Reference()}
	if err := b.client.postJSON(ctx, "/api/v1/reports", req, &report); err != nil {
		return nil, err
	}
	return integration.Payload{
		"score":        report.Score,
		"active_loans": report.ActiveLoans,
		"overdue_days": report.OverdueDays,
		"total_debt":   report.TotalDebt,
		"monthly_load": report.MonthlyLoad,
	}, nil
}

// CheckRule rejects below the configured cutoff. A zero cutoff disables the
// rule so the report is informational only.
func (b *Bureau) CheckRule(_ context.Context, _ subject.Subject, payload integration.Payload) error {
	if b.minScore <= 0 {
		return nil
	}
	score, ok := payloadInt(payload, "score")
	if !ok {
		return fmt.Errorf("bureau payload has no score")
	}
	if score < b.minScore {
		return integration.NewRejectError("LOW_SCORE")
	}
	return nil
}

func (b *Bureau) Save(_ context.Context, sub subject.Subject, payload integration.Payload) error {
	if app, ok := sub.(*subject.CreditApplication); ok {
		if score, ok := payloadInt(payload, "score"); ok {
			app.Score = score
		}
	}
	if setter, ok := sub.(interface{ SetExtra(key, value string) }); ok {
		if score, ok := payloadInt(payload, "score"); ok {
			setter.SetExtra("bureau_score", strconv.Itoa(score))
		}
	}
	return nil
}

// payloadInt reads an int from a payload value that may have round-tripped
// through JSON as float64.
func payloadInt(payload integration.Payload, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
