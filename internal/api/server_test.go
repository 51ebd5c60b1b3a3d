package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auriol/strikeplan/internal/combat"
)

// testServer creates a server over an empty parameter cache, so every combat
// lookup answers with defaults.
func testServer(t *testing.T) *Server {
	t.Helper()
	return New(combat.NewCache(nil, nil), nil, "")
}

// optimizeBody builds the standard request: one action whose strategy carries
// an expensive ammunition load, with a cheap replacement on offer. Keeping
// strategy 1 costs 400, swapping in strategy 2 costs 20. Nothing is lost at
// penetration rate 1.0, so prices are exact. The extra string is appended
// inside the top-level JSON object.
func optimizeBody(extra string) string {
	return `{
		"strategies": [
			{"strategy_id": 1, "replaceable": true,
			 "aircraft": [{"aircraft_type": 101, "count": 2, "price": 100}],
			 "ammunition": [{"ammunition_type": 201, "count": 4, "price": 100}],
			 "time_range": {"start": 0, "end": 2},
			 "penetration_rate": 1.0},
			{"strategy_id": 2,
			 "aircraft": [{"aircraft_type": 101, "count": 2, "price": 100}],
			 "ammunition": [{"ammunition_type": 201, "count": 2, "price": 10}],
			 "time_range": {"start": 0, "end": 2},
			 "penetration_rate": 1.0}
		],
		"actions": [{"action_id": 10, "strategy_ids": [1]}],
		"replacement_options": [{"strategy_id": 1, "candidate_ids": [2]}],
		"constraints": {
			"aircraft": [{"type": 101, "count": 5}],
			"ammunition": [{"type": 201, "count": 100}]
		},
		"solution_count": 3` + extra + `
	}`
}

type optimizeEnvelope struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg"`
	Data OptimizeData `json:"data"`
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeOptimize(t *testing.T, rec *httptest.ResponseRecorder) optimizeEnvelope {
	t.Helper()
	var env optimizeEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return env
}

// TestOptimizeFindsCheaperAssignment verifies the full request path: decode,
// build, solve, and report, with the cheap replacement ranked first.
func TestOptimizeFindsCheaperAssignment(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, "/alg/optimize", optimizeBody(`, "solver": "exact"`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}

	env := decodeOptimize(t, rec)
	if env.Code != 200 {
		t.Errorf("Expected envelope code 200, got %d", env.Code)
	}
	if env.Msg != "success" {
		t.Errorf("Expected msg %q, got %q", "success", env.Msg)
	}
	if len(env.Data.Solutions) != 2 {
		t.Fatalf("Expected 2 solutions (swap and keep), got %d", len(env.Data.Solutions))
	}

	best := env.Data.Solutions[0]
	if best.Assignment["1"] != "2" {
		t.Errorf("Expected strategy 1 replaced by 2, got assignment %v", best.Assignment)
	}
	if best.Price != 20 {
		t.Errorf("Expected best price 20, got %v", best.Price)
	}
	if best.AircraftLoss != 0 {
		t.Errorf("Expected no losses at full penetration, got %d", best.AircraftLoss)
	}
	if best.AircraftUsage != 2 {
		t.Errorf("Expected usage 2, got %d", best.AircraftUsage)
	}

	if env.Data.Baseline.Price != 400 {
		t.Errorf("Expected baseline price 400, got %v", env.Data.Baseline.Price)
	}
	if len(env.Data.Baseline.Exceeded) != 0 {
		t.Errorf("Expected a clean baseline, got exceeded %v", env.Data.Baseline.Exceeded)
	}
}

// TestOptimizeDefaultsToGeneticSearch verifies that a request without a
// solver name still finds the swap through the default search.
func TestOptimizeDefaultsToGeneticSearch(t *testing.T) {
	srv := testServer(t)

	rec := postJSON(t, srv, "/alg/optimize", optimizeBody(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeOptimize(t, rec)
	if len(env.Data.Solutions) == 0 {
		t.Fatal("Expected at least one solution")
	}
	if env.Data.Solutions[0].Price != 20 {
		t.Errorf("Expected best price 20, got %v", env.Data.Solutions[0].Price)
	}
}

// TestOptimizeAnswersCreatedWhenNothingFits verifies the 201 answer: the
// search ran, no combination satisfied the caps, and the baseline explains
// which caps the submitted plan already breaks.
func TestOptimizeAnswersCreatedWhenNothingFits(t *testing.T) {
	srv := testServer(t)
	body := strings.Replace(optimizeBody(`, "solver": "exact"`),
		`"ammunition": [{"type": 201, "count": 100}]`,
		`"ammunition": [{"type": 201, "count": 1}]`, 1)

	rec := postJSON(t, srv, "/alg/optimize", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	env := decodeOptimize(t, rec)
	if env.Code != 201 {
		t.Errorf("Expected envelope code 201, got %d", env.Code)
	}
	if env.Msg != "no better solution found" {
		t.Errorf("Expected msg %q, got %q", "no better solution found", env.Msg)
	}
	if len(env.Data.Solutions) != 0 {
		t.Errorf("Expected no solutions, got %d", len(env.Data.Solutions))
	}
	if len(env.Data.Baseline.Exceeded) == 0 {
		t.Error("Expected the baseline to report exceeded caps")
	}
	if env.Data.Baseline.Price != 400 {
		t.Errorf("Expected baseline price 400, got %v", env.Data.Baseline.Price)
	}
}

// TestOptimizeObjectiveSelectsWinner verifies that opt_type changes which
// assignment ranks first: by price the lossy original is cheapest, by losses
// the expensive lossless replacement wins.
func TestOptimizeObjectiveSelectsWinner(t *testing.T) {
	body := func(optType string) string {
		return `{
			"strategies": [
				{"strategy_id": 1, "replaceable": true,
				 "aircraft": [{"aircraft_type": 101, "count": 4, "price": 50}],
				 "penetration_rate": 0.5},
				{"strategy_id": 2,
				 "aircraft": [{"aircraft_type": 101, "count": 4, "price": 50}],
				 "ammunition": [{"ammunition_type": 201, "count": 30, "price": 10}],
				 "penetration_rate": 1.0}
			],
			"actions": [{"action_id": 10, "strategy_ids": [1]}],
			"replacement_options": [{"strategy_id": 1, "candidate_ids": [2]}],
			"solver": "exact",
			"solution_count": 1,
			"opt_type": ` + optType + `
		}`
	}

	srv := testServer(t)

	rec := postJSON(t, srv, "/alg/optimize", body("0"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeOptimize(t, rec)
	if len(env.Data.Solutions) != 1 {
		t.Fatalf("Expected 1 solution, got %d", len(env.Data.Solutions))
	}
	byPrice := env.Data.Solutions[0]
	if len(byPrice.Assignment) != 0 {
		t.Errorf("Expected price objective to keep the original, got %v", byPrice.Assignment)
	}
	if byPrice.Price != 100 {
		t.Errorf("Expected price 100 (2 lost aircraft at 50), got %v", byPrice.Price)
	}

	rec = postJSON(t, srv, "/alg/optimize", body("1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env = decodeOptimize(t, rec)
	if len(env.Data.Solutions) != 1 {
		t.Fatalf("Expected 1 solution, got %d", len(env.Data.Solutions))
	}
	byLoss := env.Data.Solutions[0]
	if byLoss.Assignment["1"] != "2" {
		t.Errorf("Expected loss objective to pick the replacement, got %v", byLoss.Assignment)
	}
	if byLoss.AircraftLoss != 0 {
		t.Errorf("Expected 0 losses, got %d", byLoss.AircraftLoss)
	}
}

// TestOptimizeRejectsBadRequests verifies the 400 answers: every malformed
// request names what was wrong with it.
func TestOptimizeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "malformed json",
			body: "{",
			want: "malformed request body",
		},
		{
			name: "empty scenario",
			body: `{"strategies": [], "actions": []}`,
			want: "no strategies defined",
		},
		{
			name: "duplicate strategy id",
			body: `{"strategies": [{"strategy_id": 1}, {"strategy_id": 1}], "actions": []}`,
			want: "duplicate strategy id 1",
		},
		{
			name: "unknown solver",
			body: optimizeBody(`, "solver": "annealing"`),
			want: `unknown solver "annealing"`,
		},
		{
			name: "unknown objective",
			body: optimizeBody(`, "opt_type": 9`),
			want: "unknown optimization type 9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, testServer(t), "/alg/optimize", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}
			env := decodeOptimize(t, rec)
			if env.Code != 400 {
				t.Errorf("Expected envelope code 400, got %d", env.Code)
			}
			if !strings.HasPrefix(env.Msg, "invalid input") {
				t.Errorf("Expected msg prefixed with %q, got %q", "invalid input", env.Msg)
			}
			if !strings.Contains(env.Msg, tt.want) {
				t.Errorf("Expected msg naming %q, got %q", tt.want, env.Msg)
			}
		})
	}
}

// stubSource counts loads and serves one row per table.
type stubSource struct {
	loads int
}

func (s *stubSource) Load(ctx context.Context) (combat.ExchangeTable, combat.DefenseTable, error) {
	s.loads++
	return combat.ExchangeTable{
			{Ours: "J16", Theirs: "F16"}: {Ours: 1.0, Theirs: 1.5},
		}, combat.DefenseTable{
			"SAM": 0.4,
		}, nil
}

// TestReloadRefreshesParameters verifies that /alg/reload pulls the tables
// from the source again and reports their sizes.
func TestReloadRefreshesParameters(t *testing.T) {
	src := &stubSource{}
	srv := New(combat.NewCache(src, nil), nil, "")

	rec := postJSON(t, srv, "/alg/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Code int            `json:"code"`
		Msg  string         `json:"msg"`
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	if env.Code != 200 || env.Msg != "success" {
		t.Errorf("Expected 200/success, got %d/%q", env.Code, env.Msg)
	}
	if env.Data["exchange_ratios"] != 1 {
		t.Errorf("Expected 1 exchange ratio, got %d", env.Data["exchange_ratios"])
	}
	if env.Data["defense_rates"] != 1 {
		t.Errorf("Expected 1 defense rate, got %d", env.Data["defense_rates"])
	}
	if src.loads != 1 {
		t.Errorf("Expected exactly one source load, got %d", src.loads)
	}
}

// TestHealthEndpoint verifies the liveness probe.
func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	testServer(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("Expected body %q, got %q", "ok", rec.Body.String())
	}
}

// TestPreflightShortCircuits verifies that CORS preflight requests are
// answered before routing, without touching any handler.
func TestPreflightShortCircuits(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/alg/optimize", nil)
	rec := httptest.NewRecorder()
	testServer(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow-all origin, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS, POST" {
		t.Errorf("Unexpected allowed methods %q", got)
	}
}

// TestOptimizeDeterministic verifies that repeated identical requests to the
// exact solver produce identical responses.
func TestOptimizeDeterministic(t *testing.T) {
	srv := testServer(t)
	body := optimizeBody(`, "solver": "exact"`)

	first := postJSON(t, srv, "/alg/optimize", body)
	if first.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", first.Code, first.Body.String())
	}
	for i := 1; i < 5; i++ {
		rec := postJSON(t, srv, "/alg/optimize", body)
		if rec.Body.String() != first.Body.String() {
			t.Errorf("Non-deterministic response on iteration %d:\n%s\nvs\n%s",
				i, rec.Body.String(), first.Body.String())
		}
	}
}

// BenchmarkOptimize measures one full optimize round trip through the
// router, handler, and exact solver.
func BenchmarkOptimize(b *testing.B) {
	srv := New(combat.NewCache(nil, nil), nil, "")
	body := optimizeBody(`, "solver": "exact"`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/alg/optimize", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("Optimize failed with status %d", rec.Code)
		}
	}
}
