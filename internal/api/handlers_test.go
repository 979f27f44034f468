package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetroute/internal/geo"
	"fleetroute/internal/model"
	"fleetroute/internal/solver"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("MATRIX_BASE_URL", "")
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// berlinRequest is a small real-coordinate instance solvable by the
// haversine provider.
func berlinRequest() map[string]any {
	return map[string]any{
		"locations": []map[string]float64{
			{"lat": 52.5200, "lng": 13.4050}, // depot
			{"lat": 52.5300, "lng": 13.4100},
			{"lat": 52.5000, "lng": 13.3900},
			{"lat": 52.5100, "lng": 13.4400},
		},
		"demands":          []float64{30, 40, 20},
		"vehicle_capacity": 100,
		"num_vehicles":     2,
		"mode":             "driving",
	}
}

func postOptimize(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/optimize-routes", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	s.OptimizeRoutesHandler(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOptimizeRoutesSuccess(t *testing.T) {
	s := newTestServer(t)
	rr := postOptimize(t, s, berlinRequest())
	if rr.Code != 200 {
		t.Fatalf("optimize: got %d body %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Routes) != 2 {
		t.Fatalf("want 2 routes, got %d", len(resp.Routes))
	}
	served := 0
	for _, r := range resp.Routes {
		served += len(r.Route)
	}
	if served+len(resp.Unassigned) != 3 {
		t.Fatalf("stops dropped: served=%d unassigned=%d", served, len(resp.Unassigned))
	}
	if resp.TotalDistance <= 0 || resp.TotalDuration <= 0 {
		t.Fatalf("totals missing: %+v", resp)
	}
	if resp.Metrics.TotalDemand != 90 {
		t.Fatalf("total demand: %v", resp.Metrics.TotalDemand)
	}
	if resp.Metrics.NumVehicles != 2 || resp.Metrics.VehicleCapacity != 100 {
		t.Fatalf("metrics echo wrong: %+v", resp.Metrics)
	}
	if resp.Metrics.AverageRouteDistance <= 0 {
		t.Fatalf("average route distance missing: %+v", resp.Metrics)
	}
}

func TestOptimizeRoutesOversizedDemand(t *testing.T) {
	s := newTestServer(t)
	body := berlinRequest()
	body["demands"] = []float64{30, 150, 20} // second stop exceeds capacity

	rr := postOptimize(t, s, body)
	if rr.Code != 200 {
		t.Fatalf("want 200 with partial solution, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Unassigned) != 1 {
		t.Fatalf("want 1 unassigned, got %+v", resp.Unassigned)
	}
	if resp.Unassigned[0].Reason != "CapacityExceeded" {
		t.Fatalf("reason: %s", resp.Unassigned[0].Reason)
	}
	if resp.Unassigned[0].Index != 1 || resp.Unassigned[0].Demand != 150 {
		t.Fatalf("unassigned detail: %+v", resp.Unassigned[0])
	}
}

func TestOptimizeRoutesInvalidInput(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		mut  func(map[string]any)
	}{
		{"zero vehicles", func(b map[string]any) { b["num_vehicles"] = 0 }},
		{"no locations", func(b map[string]any) { b["locations"] = []map[string]float64{} }},
		{"demands mismatch", func(b map[string]any) { b["demands"] = []float64{1} }},
		{"negative demand", func(b map[string]any) { b["demands"] = []float64{30, -1, 20} }},
		{"bad mode", func(b map[string]any) { b["mode"] = "teleport" }},
		{"bad latitude", func(b map[string]any) {
			b["locations"] = []map[string]float64{{"lat": 95, "lng": 0}, {"lat": 1, "lng": 1}}
			b["demands"] = []float64{5}
		}},
	}
	for _, tc := range cases {
		body := berlinRequest()
		tc.mut(body)
		rr := postOptimize(t, s, body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d: %s", tc.name, rr.Code, rr.Body.String())
		}
		var pb Problem
		if err := json.Unmarshal(rr.Body.Bytes(), &pb); err != nil || pb.Status != 400 {
			t.Fatalf("%s: not a problem body: %s", tc.name, rr.Body.String())
		}
	}
}

func TestOptimizeRoutesMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/optimize-routes", bytes.NewReader([]byte(`{nope`)))
	s.OptimizeRoutesHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
}

func TestOptimizeRoutesDeterministic(t *testing.T) {
	s := newTestServer(t)
	first := postOptimize(t, s, berlinRequest()).Body.String()
	for i := 0; i < 3; i++ {
		again := postOptimize(t, s, berlinRequest()).Body.String()
		if again != first {
			t.Fatalf("responses differ between runs:\n%s\n%s", first, again)
		}
	}
}

func TestAsyncSolveLifecycle(t *testing.T) {
	s := newTestServer(t)
	b, _ := json.Marshal(berlinRequest())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solves", bytes.NewReader(b))
	s.SolvesHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var job model.SolveJob
	_ = json.Unmarshal(rr.Body.Bytes(), &job)
	if job.ID == "" || job.Status != model.SolveStatusPending {
		t.Fatalf("job: %+v", job)
	}

	// Poll until the background solve finishes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rr = httptest.NewRecorder()
		s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+job.ID, nil))
		if rr.Code != 200 {
			t.Fatalf("get: %d", rr.Code)
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &job)
		if job.Status == model.SolveStatusCompleted {
			break
		}
		if job.Status == model.SolveStatusFailed {
			t.Fatalf("solve failed: %s", job.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("solve did not finish; status=%s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Result == nil || job.Result.TotalDistance <= 0 {
		t.Fatalf("missing result: %+v", job)
	}

	// Search statistics were persisted.
	rr = httptest.NewRecorder()
	s.SolveMetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/solve-metrics?solve_id="+job.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: %d: %s", rr.Code, rr.Body.String())
	}
	var sm model.SolveMetrics
	_ = json.Unmarshal(rr.Body.Bytes(), &sm)
	if sm.SolveID != job.ID || sm.FinalDistance <= 0 {
		t.Fatalf("metrics row: %+v", sm)
	}

	// Listing includes the job.
	rr = httptest.NewRecorder()
	s.SolvesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves?limit=10", nil))
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}
}

func TestAsyncSolveCancelNotRunning(t *testing.T) {
	s := newTestServer(t)
	job, err := s.Store.CreateSolve(context.Background(), model.OptimizeRequest{})
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solves/"+job.ID+"/cancel", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", rr.Code)
	}
}

func TestSolveNotFound(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/does-not-exist", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"http://example.com/hook","events":["solve.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d: %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.ID == "" {
		t.Fatalf("no id: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double delete: %d", rr.Code)
	}
}

func TestSubscriptionsRejectsEmpty(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", solver.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", geo.ErrInvalidCoordinate), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", geo.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("wrap: %w", solver.ErrTimeout), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusForError(tc.err)
		if got != tc.want {
			t.Fatalf("%v: want %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestProviderUnavailableMapsTo503(t *testing.T) {
	s := newTestServer(t)
	s.Geo = failingProvider{}
	rr := postOptimize(t, s, berlinRequest())
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

type failingProvider struct{}

func (failingProvider) Matrix(_ context.Context, _ []geo.Point, _ geo.Mode) (solver.Matrix, error) {
	return solver.Matrix{}, fmt.Errorf("dial tcp: %w", geo.ErrUnavailable)
}
