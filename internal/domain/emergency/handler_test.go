package emergency

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/erflow/erflow/internal/domain/hospital"
	"github.com/erflow/erflow/internal/domain/patient"
	"github.com/erflow/erflow/internal/platform/gateway"
)

func newTestHandler(assessor *mockAssessor) (*echo.Echo, *patient.Store) {
	store := patient.NewStore()
	svc := NewService(store, assessor, hospital.NewRegistry(hospital.DefaultHospitals()), 15, zerolog.Nop())
	h := NewHandler(svc, store)

	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, store
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RegisterAndFetch(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{
		assessment: &gateway.Assessment{Severity: 9, TriageNotes: "suspected stroke"},
	})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"John Smith","nhs_number":"943-476-5919","symptoms":"facial droop"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result RegisterResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if result.Case == nil || result.Case.Status != patient.StatusDispatched {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/patients/"+result.Case.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_RegisterClarifyingQuestion(t *testing.T) {
	e, store := newTestHandler(&mockAssessor{
		assessment: &gateway.Assessment{NeedsMoreInfo: true, Question: "Is the patient conscious?"},
	})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Clara Novak","nhs_number":"980-185-3343","symptoms":"collapsed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for clarifying question, got %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Error("no case should exist yet")
	}
}

func TestHandler_RegisterValidation(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients", `{"name":"No NHS","symptoms":"pain"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetUnknownPatient(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{})

	rec := doJSON(e, http.MethodGet, "/api/v1/patients/1b4e28ba-2fa1-11d2-883f-0016d3cca427", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/patients/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestHandler_DispatchConflict(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{
		assessment: &gateway.Assessment{Severity: 9, TriageNotes: "critical"},
	})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Aisha Ahmed","nhs_number":"625-833-2278","symptoms":"unresponsive"}`)
	var result RegisterResult
	json.Unmarshal(rec.Body.Bytes(), &result)

	// Already dispatched at intake; a second dispatch conflicts.
	rec = doJSON(e, http.MethodPost, "/api/v1/patients/"+result.Case.ID.String()+"/dispatch",
		`{"eta_minutes":10}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestHandler_UpdateApproveFlow(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{
		assessment: &gateway.Assessment{Severity: 9, TriageNotes: "critical"},
		plan:       &gateway.Plan{PlanText: "clear resus bay", Entrance: "Entrance B"},
	})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Frank Doyle","nhs_number":"843-918-6490","symptoms":"severe trauma"}`)
	var result RegisterResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	id := result.Case.ID.String()

	rec = doJSON(e, http.MethodPost, "/api/v1/patients/"+id+"/updates",
		`{"text":"vitals unstable","video":"clip1.mp4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/views/awaiting-approval", "")
	var pending []patient.Case
	json.Unmarshal(rec.Body.Bytes(), &pending)
	if len(pending) != 1 {
		t.Fatalf("expected 1 case awaiting approval, got %d", len(pending))
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/patients/"+id+"/approve", `{"plan_text":"edited plan"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var approved patient.Case
	json.Unmarshal(rec.Body.Bytes(), &approved)
	if approved.Status != patient.StatusPrepReady {
		t.Errorf("expected prep_ready, got %s", approved.Status)
	}
	if approved.ResourcePlan == nil || approved.ResourcePlan.PlanText != "edited plan" {
		t.Errorf("expected edited plan text, got %+v", approved.ResourcePlan)
	}
}

func TestHandler_GatewayErrorsMapToStatusCodes(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{assessErr: &gateway.RateLimitError{RetryAfter: 30}})

	rec := doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Rate Limited","nhs_number":"111-222-3333","symptoms":"pain"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}

	e, _ = newTestHandler(&mockAssessor{assessErr: gateway.ErrUnavailable})
	rec = doJSON(e, http.MethodPost, "/api/v1/patients",
		`{"name":"Down","nhs_number":"111-222-3334","symptoms":"pain"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestHandler_ViewsEmpty(t *testing.T) {
	e, _ := newTestHandler(&mockAssessor{})

	for _, path := range []string{
		"/api/v1/views/active-dispatches",
		"/api/v1/views/awaiting-approval",
		"/api/v1/views/high-severity-inbound",
		"/api/v1/views/waiting",
	} {
		rec := doJSON(e, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("%s: expected empty array, got %s", path, body)
		}
	}
}
