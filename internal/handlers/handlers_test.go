package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mealsnap/mealsnap/internal/access"
	"github.com/mealsnap/mealsnap/internal/device"
	"github.com/mealsnap/mealsnap/internal/persist"
	"github.com/mealsnap/mealsnap/internal/scan"
	"github.com/mealsnap/mealsnap/internal/session"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, image []byte) (scan.AnalysisResult, error) {
	return scan.AnalysisResult{
		OverallFoodItem:      "Apple",
		ConstituentFoodItems: []scan.FoodItem{{Name: "Apple", WeightGrams: 182}},
		TotalWeightGrams:     182,
		ConfidencePercentage: 91,
	}, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(result scan.AnalysisResult, image []byte, userID string) {}

func newTestServer(t *testing.T) (*http.ServeMux, *access.Signals, persist.Ledger) {
	t.Helper()
	signals := access.NewSignals()
	adapter := device.NewAdapter(device.NewSimHardware([]byte("IMG1")))
	machine := session.NewMachine(adapter, stubAnalyzer{}, stubDispatcher{}, signals)
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start machine: %v", err)
	}
	t.Cleanup(func() { machine.Stop() })

	ledger := persist.NewMemoryLedger()
	mux := http.NewServeMux()
	New(machine, ledger, signals).Register(mux)
	return mux, signals, ledger
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCaptureRequiresPost(t *testing.T) {
	mux, _, _ := newTestServer(t)
	rec := doJSON(t, mux, "GET", "/api/capture", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestCaptureDeniedReturns403(t *testing.T) {
	mux, _, _ := newTestServer(t)
	rec := doJSON(t, mux, "POST", "/api/capture", "{}")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body %q", rec.Code, rec.Body.String())
	}
}

func TestAuthThenCaptureFlow(t *testing.T) {
	mux, _, _ := newTestServer(t)

	if rec := doJSON(t, mux, "POST", "/api/auth", `{"user_id":"u_123"}`); rec.Code != http.StatusOK {
		t.Fatalf("auth status = %d", rec.Code)
	}
	// Signed in but not entitled yet.
	if rec := doJSON(t, mux, "POST", "/api/capture", "{}"); rec.Code != http.StatusForbidden {
		t.Fatalf("capture without entitlement status = %d, want 403", rec.Code)
	}
	if rec := doJSON(t, mux, "POST", "/api/entitlement", `{"has_access":true}`); rec.Code != http.StatusOK {
		t.Fatalf("entitlement status = %d", rec.Code)
	}
	if rec := doJSON(t, mux, "POST", "/api/capture", "{}"); rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d, body %q", rec.Code, rec.Body.String())
	}

	// The cycle runs async; the session endpoint eventually shows the result.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doJSON(t, mux, "GET", "/api/session", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("session status = %d", rec.Code)
		}
		var snap map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if snap["state"] == string(scan.StateResulted) {
			result, ok := snap["result"].(map[string]any)
			if !ok || result["overall_food_item"] != "Apple" {
				t.Fatalf("unexpected result payload: %v", snap["result"])
			}
			if snap["image_base64"] == nil {
				t.Error("resulted session has no image")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never resulted, last snapshot: %v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCaptureConflictWhileBusy(t *testing.T) {
	mux, signals, _ := newTestServer(t)
	signals.SetUser("u_123")
	signals.SetEntitlement(true)

	if rec := doJSON(t, mux, "POST", "/api/capture", `{"analyze":false}`); rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d", rec.Code)
	}

	// Wait for the frame to land; Captured is still a live state.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doJSON(t, mux, "GET", "/api/session", "")
		var snap map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if snap["state"] == string(scan.StateCaptured) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("capture never completed, last snapshot: %v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := doJSON(t, mux, "POST", "/api/capture", "{}"); rec.Code != http.StatusConflict {
		t.Fatalf("second capture status = %d, want 409", rec.Code)
	}
	if rec := doJSON(t, mux, "POST", "/api/clear", "{}"); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestModeValidation(t *testing.T) {
	mux, _, _ := newTestServer(t)

	if rec := doJSON(t, mux, "POST", "/api/mode", `{"mode":"panoramic"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, mux, "POST", "/api/mode", `{"mode":"volumetric"}`); rec.Code != http.StatusOK {
		t.Fatalf("mode switch status = %d", rec.Code)
	}
}

func TestScansListing(t *testing.T) {
	mux, _, ledger := newTestServer(t)

	rec := scan.NewScanRecord("rec_1", "u_123", "mem://rec_1", scan.AnalysisResult{
		OverallFoodItem:      "Apple",
		TotalWeightGrams:     182,
		ConfidencePercentage: 91,
	}, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	err := ledger.BatchWrite(context.Background(), []persist.Write{
		{Path: persist.GlobalLedgerPath, Record: rec},
		{Path: persist.UserLedgerPath("u_123"), Record: rec},
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	for _, path := range []string{"/api/scans", "/api/scans?user=u_123"} {
		resp := doJSON(t, mux, "GET", path, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.Code)
		}
		var records []scan.ScanRecord
		if err := json.Unmarshal(resp.Body.Bytes(), &records); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if len(records) != 1 || records[0].ID != "rec_1" {
			t.Fatalf("%s records = %+v", path, records)
		}
	}

	if resp := doJSON(t, mux, "GET", "/api/scans?limit=bogus", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", resp.Code)
	}
}

func TestScansEmptyListIsJSONArray(t *testing.T) {
	mux, _, _ := newTestServer(t)
	resp := doJSON(t, mux, "GET", "/api/scans", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := strings.TrimSpace(resp.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
}
