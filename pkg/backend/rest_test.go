package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContractsForPlainResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/contracts/R_10" {
			t.Errorf("path=%s, expected /api/contracts/R_10", r.URL.Path)
		}
		if got := r.URL.Query().Get("family"); got != "basic" {
			t.Errorf("family=%s, expected basic", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization=%q, expected bearer token", got)
		}
		if got := r.Header.Get("X-Terminal-ID"); got != "term-1" {
			t.Errorf("terminal id=%q, expected term-1", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"contract_types": []string{"CALL", "PUT"},
			"duration_units": []string{"t", "s", "m"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "term-1")
	set, err := c.ContractsFor(context.Background(), "R_10", "basic")
	if err != nil {
		t.Fatalf("ContractsFor returned error: %v", err)
	}
	if len(set.ContractTypes) != 2 || set.ContractTypes[0] != "CALL" {
		t.Fatalf("contract_types=%v, expected [CALL PUT]", set.ContractTypes)
	}
	if len(set.DurationUnits) != 3 {
		t.Fatalf("duration_units=%v, expected three entries", set.DurationUnits)
	}
}

func TestContractsForWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"first_supported": "R_25",
			"results": map[string]any{
				"R_25": map[string]any{"contract_types": []string{"MULTUP", "MULTDOWN"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")

	// Direct hit under our own symbol key is preferred when present.
	set, err := c.ContractsFor(context.Background(), "R_25", "multipliers")
	if err != nil {
		t.Fatalf("ContractsFor returned error: %v", err)
	}
	if len(set.ContractTypes) != 2 {
		t.Fatalf("contract_types=%v, expected two entries", set.ContractTypes)
	}

	// A symbol missing from results falls back to first_supported.
	set, err = c.ContractsFor(context.Background(), "R_99", "multipliers")
	if err != nil {
		t.Fatalf("ContractsFor fallback returned error: %v", err)
	}
	if len(set.ContractTypes) != 2 || set.ContractTypes[0] != "MULTUP" {
		t.Fatalf("fallback contract_types=%v, expected [MULTUP MULTDOWN]", set.ContractTypes)
	}
}

func TestContractsForBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "unknown symbol"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	_, err := c.ContractsFor(context.Background(), "NOPE", "basic")
	if err == nil {
		t.Fatalf("ContractsFor accepted a 404")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type=%T, expected *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Detail != "unknown symbol" {
		t.Fatalf("apiErr=%+v, expected 404/unknown symbol", apiErr)
	}
}

func TestSubmitOrderSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Errorf("request=%s %s, expected POST /api/orders", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"contract_id": "c-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "term-1")
	ack, err := c.SubmitOrder(context.Background(), map[string]any{"engine": "CALLPUT", "stake": 1.0})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if ack.ContractID != "c-42" {
		t.Fatalf("contract_id=%s, expected c-42", ack.ContractID)
	}
	if gotBody["engine"] != "CALLPUT" {
		t.Fatalf("posted body=%v, expected the payload verbatim", gotBody)
	}
}

func TestSubmitOrderRejectsMissingContractID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	if _, err := c.SubmitOrder(context.Background(), map[string]any{}); err == nil {
		t.Fatalf("SubmitOrder accepted an ack without contract_id")
	}
}

func TestSubmitOrderBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "stake below minimum"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	_, err := c.SubmitOrder(context.Background(), map[string]any{"stake": 0.01})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type=%T, expected *APIError", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, expected 422", apiErr.Status)
	}
	if apiErr.Detail != "stake below minimum" {
		t.Fatalf("detail=%q, expected the backend message", apiErr.Detail)
	}
}
