package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/integration"
	"loanflow/internal/subject"
)

func testConfig(name, address string) integration.Config {
	return integration.Config{
		ID:          1,
		Name:        name,
		Integration: name,
		Address:     address,
		Timeout:     2 * time.Second,
		Params:      integration.Params{},
		Active:      true,
	}
}

func testApp() *subject.CreditApplication {
	return &subject.CreditApplication{
		ID:         uuid.New(),
		NationalID: "900101300123",
		FullName:   "Test Applicant",
		Product:    "consumer",
		Amount:     500000,
		TermMonths: 12,
	}
}

func TestBureau_RunAndScoreCutoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports", r.URL.Path)
		w.Write([]byte(`{"score": 640, "active_loans": 2, "overdue_days": 0}`))
	}))
	defer srv.Close()

	cfg := testConfig("bureau", srv.URL)
	cfg.Params = integration.Params{"min_score": "600"}
	svc, err := NewBureau(cfg)
	require.NoError(t, err)

	payload, err := svc.Run(context.Background(), testApp())
	require.NoError(t, err)
	assert.Equal(t, 640, payload["score"])
	require.NoError(t, svc.CheckRule(context.Background(), testApp(), payload))

	payload["score"] = 550
	err = svc.CheckRule(context.Background(), testApp(), payload)
	reject, ok := integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "LOW_SCORE", reject.Reason)
}

func TestBureau_ZeroCutoffDisablesRule(t *testing.T) {
	svc, err := NewBureau(testConfig("bureau", "http://bureau.local"))
	require.NoError(t, err)

	err = svc.CheckRule(context.Background(), testApp(), integration.Payload{"score": 1})
	assert.NoError(t, err)
}

func TestBureau_SaveWritesScore(t *testing.T) {
	svc, err := NewBureau(testConfig("bureau", "http://bureau.local"))
	require.NoError(t, err)

	app := testApp()
	// score arrives as float64 after a JSON round trip
	require.NoError(t, svc.Save(context.Background(), app, integration.Payload{"score": float64(712)}))
	assert.Equal(t, 712, app.Score)
	assert.Equal(t, "712", app.Extra["bureau_score"])
}

func TestBureau_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc, err := NewBureau(testConfig("bureau", srv.URL))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), testApp())
	assert.True(t, integration.IsTransport(err), "5xx must be classified as unavailability")
}

func TestBureau_UnreachableHostIsTransport(t *testing.T) {
	svc, err := NewBureau(testConfig("bureau", "http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), testApp())
	assert.True(t, integration.IsTransport(err))
}

func TestBureau_VendorErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code": "UNKNOWN_SUBJECT", "message": "no credit file"}`))
	}))
	defer srv.Close()

	svc, err := NewBureau(testConfig("bureau", srv.URL))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), testApp())
	require.Error(t, err)
	assert.False(t, integration.IsTransport(err), "a 4xx is the vendor answering, not an outage")
	assert.ErrorContains(t, err, "UNKNOWN_SUBJECT")
}

func TestBureau_RequiresAddress(t *testing.T) {
	_, err := NewBureau(testConfig("bureau", ""))
	assert.Error(t, err)
}

func TestBlacklist_HitRejects(t *testing.T) {
	svc, err := NewBlacklist(testConfig("blacklist", "http://lists.local"))
	require.NoError(t, err)

	err = svc.CheckRule(context.Background(), testApp(), integration.Payload{"listed": true, "list": "fraud"})
	reject, ok := integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "BLACKLISTED", reject.Reason)

	assert.NoError(t, svc.CheckRule(context.Background(), testApp(), integration.Payload{"listed": false}))
}

func TestCitizen_RunParsesRegistryResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<PersonResponse><Found>true</Found><FullName>Test Applicant</FullName><BirthDate>1990-01-01</BirthDate><Deceased>false</Deceased></PersonResponse>`))
	}))
	defer srv.Close()

	svc, err := NewCitizen(testConfig("citizen", srv.URL))
	require.NoError(t, err)

	payload, err := svc.Run(context.Background(), testApp())
	require.NoError(t, err)
	assert.Equal(t, true, payload["found"])
	assert.Equal(t, "Test Applicant", payload["full_name"])

	app := testApp()
	require.NoError(t, svc.Save(context.Background(), app, payload))
	assert.Equal(t, "Test Applicant", app.Extra["registry_full_name"])
	assert.Equal(t, "1990-01-01", app.Extra["registry_birth_date"])
}

func TestCitizen_Rules(t *testing.T) {
	svc, err := NewCitizen(testConfig("citizen", "http://registry.local"))
	require.NoError(t, err)

	err = svc.CheckRule(context.Background(), testApp(), integration.Payload{"found": false})
	reject, ok := integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "IDENTITY_NOT_FOUND", reject.Reason)

	err = svc.CheckRule(context.Background(), testApp(), integration.Payload{"found": true, "deceased": true})
	reject, ok = integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "REGISTRY_DECEASED", reject.Reason)

	assert.NoError(t, svc.CheckRule(context.Background(), testApp(),
		integration.Payload{"found": true, "deceased": false}))
}

func TestCitizen_FaultIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<PersonResponse><Fault>service window closed</Fault></PersonResponse>`))
	}))
	defer srv.Close()

	svc, err := NewCitizen(testConfig("citizen", srv.URL))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), testApp())
	require.Error(t, err)
	assert.False(t, integration.IsTransport(err))
	assert.ErrorContains(t, err, "service window closed")
}

func TestBiometric_Threshold(t *testing.T) {
	cfg := testConfig("biometric", "http://faces.local")
	cfg.Params = integration.Params{"match_threshold_percent": "90"}
	svc, err := NewBiometric(cfg)
	require.NoError(t, err)

	assert.NoError(t, svc.CheckRule(context.Background(), testApp(),
		integration.Payload{"similarity": 0.95, "liveness": true}))

	err = svc.CheckRule(context.Background(), testApp(),
		integration.Payload{"similarity": 0.80, "liveness": true})
	reject, ok := integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "BIOMETRIC_MISMATCH", reject.Reason)

	err = svc.CheckRule(context.Background(), testApp(),
		integration.Payload{"similarity": 0.99, "liveness": false})
	reject, ok = integration.AsReject(err)
	require.True(t, ok)
	assert.Equal(t, "LIVENESS_FAILED", reject.Reason)
}

func TestBiometric_ThresholdOutOfRange(t *testing.T) {
	cfg := testConfig("biometric", "http://faces.local")
	cfg.Params = integration.Params{"match_threshold_percent": "150"}
	_, err := NewBiometric(cfg)
	assert.Error(t, err)
}

func TestBanking_OnlyProcessesApplications(t *testing.T) {
	svc, err := NewBanking(testConfig("banking", "http://core.local"))
	require.NoError(t, err)

	lead := &subject.Lead{ID: uuid.New(), NationalID: "900101300123"}
	assert.False(t, svc.Conditions(context.Background(), lead))
	assert.True(t, svc.Conditions(context.Background(), testApp()))
}

func TestBanking_RunAndSave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/clients", r.URL.Path)
		w.Write([]byte(`{"client_number": "CL-000451"}`))
	}))
	defer srv.Close()

	svc, err := NewBanking(testConfig("banking", srv.URL))
	require.NoError(t, err)

	app := testApp()
	payload, err := svc.Run(context.Background(), app)
	require.NoError(t, err)
	require.NoError(t, svc.Save(context.Background(), app, payload))
	assert.Equal(t, "CL-000451", app.Extra["client_number"])
}

func TestRegisterAll(t *testing.T) {
	registry := integration.NewRegistry()
	RegisterAll(registry)
	assert.Equal(t, []string{"banking", "biometric", "blacklist", "bureau", "citizen"}, registry.List())
}
