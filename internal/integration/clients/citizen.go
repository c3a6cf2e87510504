package clients

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

// KeyCitizen is the registry key for the government citizen registry.
const KeyCitizen = "citizen"

// Citizen verifies the applicant's identity against the state registry. The
// registry speaks SOAP, so this client carries its own envelope handling
// instead of the shared JSON helper.
type Citizen struct {
	integration.Base

	cfg  integration.Config
	http *http.Client
}

func NewCitizen(cfg integration.Config) (integration.Integration, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("citizen config %q: address is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Citizen{cfg: cfg, http: &http.Client{Timeout: timeout}}, nil
}

type citizenRequest struct {
	XMLName    xml.Name `xml:"PersonRequest"`
	NationalID string   `xml:"Iin"`
	Login      string   `xml:"Login"`
	Password   string   `xml:"Password"`
}

type citizenResponse struct {
	XMLName   xml.Name `xml:"PersonResponse"`
	Found     bool     `xml:"Found"`
	FullName  string   `xml:"FullName"`
	BirthDate string   `xml:"BirthDate"`
	Deceased  bool     `xml:"Deceased"`
	Fault     string   `xml:"Fault"`
}

func (c *Citizen) Conditions(_ context.Context, sub subject.Subject) bool {
	return sub.Reference() != ""
}

func (c *Citizen) Run(ctx context.Context, sub subject.Subject) (integration.Payload, error) {
	body, err := xml.Marshal(citizenRequest{
		NationalID: sub.Reference(),
		Login:      c.cfg.Login,
		Password:   c.cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("encode citizen request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build citizen request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, integration.NewTransportError(c.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, integration.NewTransportError(c.cfg.Name,
			fmt.Errorf("registry returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, integration.NewTransportError(c.cfg.Name, err)
	}
	var parsed citizenResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, integration.NewRemoteError(c.cfg.Name, "BAD_RESPONSE",
			fmt.Sprintf("decode registry response: %v", err))
	}
	if parsed.Fault != "" {
		return nil, integration.NewRemoteError(c.cfg.Name, "FAULT", parsed.Fault)
	}

	return integration.Payload{
		"found":      parsed.Found,
		"full_name":  parsed.FullName,
		"birth_date": parsed.BirthDate,
		"deceased":   parsed.Deceased,
	}, nil
}

func (c *Citizen) CheckRule(_ context.Context, _ subject.Subject, payload integration.Payload) error {
	if found, _ := payload["found"].(bool); !found {
		return integration.NewRejectError("IDENTITY_NOT_FOUND")
	}
	if deceased, _ := payload["deceased"].(bool); deceased {
		return integration.NewRejectError("REGISTRY_DECEASED")
	}
	return nil
}

func (c *Citizen) Save(_ context.Context, sub subject.Subject, payload integration.Payload) error {
	setter, ok := sub.(interface{ SetExtra(key, value string) })
	if !ok {
		return nil
	}
	if name, _ := payload["full_name"].(string); name != "" {
		setter.SetExtra("registry_full_name", name)
	}
	if birth, _ := payload["birth_date"].(string); birth != "" {
		if _, err := time.Parse("2006-01-02", birth); err == nil {
			setter.SetExtra("registry_birth_date", birth)
		}
	}
	return nil
}
