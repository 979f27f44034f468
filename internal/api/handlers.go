package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetroute/internal/model"
	"fleetroute/internal/solver"
	"fleetroute/internal/store"
	"fleetroute/internal/webhooks"
)

// OptimizeRoutesHandler handles POST /optimize-routes: a synchronous solve
// that blocks until the solution (or an error) is ready.
func (s *Server) OptimizeRoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid input", "malformed JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if err := ValidateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error(), r.URL.Path)
		return
	}
	resp, _, err := s.runSolve(r.Context(), &req, nil)
	if err != nil {
		status, title := statusForError(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SolvesHandler handles /v1/solves: POST enqueues an asynchronous solve, GET
// lists jobs.
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.OptimizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid input", "malformed JSON body: "+err.Error(), r.URL.Path)
			return
		}
		if err := ValidateRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error(), r.URL.Path)
			return
		}
		job, err := s.Store.CreateSolve(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create failed", err.Error(), r.URL.Path)
			return
		}
		go s.runAsyncSolve(job)
		writeJSON(w, http.StatusAccepted, job)
	case http.MethodGet:
		q := r.URL.Query()
		items, next, err := s.Store.ListSolves(r.Context(), q.Get("status"), q.Get("cursor"), atoiDefault(q.Get("limit"), 100))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveByIDHandler handles /v1/solves/{id}, /v1/solves/{id}/cancel and
// /v1/solves/{id}/events/stream.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		job, err := s.Store.GetSolve(r.Context(), id)
		if err != nil {
			s.writeStoreErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	switch parts[1] {
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		job, err := s.Store.GetSolve(r.Context(), id)
		if err != nil {
			s.writeStoreErr(w, r, err)
			return
		}
		if !s.cancelSolve(id) {
			writeProblem(w, http.StatusConflict, "Not running", "solve is not running; status: "+job.Status, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "cancelling"})
	case "events":
		if len(parts) > 2 && parts[2] == "stream" {
			s.solveEventsSSE(w, r, id)
			return
		}
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) solveEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"solveId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"solveId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// runAsyncSolve drives one background solve to a terminal state, publishing
// progress to the broker and terminal events to webhook subscribers.
func (s *Server) runAsyncSolve(job model.SolveJob) {
	ctx, cancel := context.WithCancel(context.Background())
	s.trackCancel(job.ID, cancel)
	defer s.dropCancel(job.ID)
	defer cancel()

	bg := context.Background()
	_ = s.Store.SetSolveStatus(bg, job.ID, model.SolveStatusRunning, "")
	s.Broker.Publish(job.ID, SolveEvent{Type: "solve.started", Data: map[string]any{"solveId": job.ID}})

	start := time.Now()
	progress := func(pr solver.Progress) {
		s.Broker.Publish(job.ID, SolveEvent{Type: "solve.progress", Data: map[string]any{
			"solveId":  job.ID,
			"state":    string(pr.State),
			"bestDist": pr.BestDistM,
			"scans":    pr.Scans,
		}})
	}
	resp, res, err := s.runSolve(ctx, &job.Request, progress)
	if err != nil {
		status := model.SolveStatusFailed
		if errors.Is(err, solver.ErrCancelled) {
			status = model.SolveStatusCancelled
		}
		_ = s.Store.SetSolveStatus(bg, job.ID, status, err.Error())
		s.Broker.Publish(job.ID, SolveEvent{Type: "solve.failed", Data: map[string]any{"solveId": job.ID, "error": err.Error()}})
		s.Pub.Emit(bg, webhooks.EventSolveFailed, map[string]any{"solveId": job.ID, "error": err.Error()})
		return
	}

	_ = s.Store.SetSolveResult(bg, job.ID, resp)
	_ = s.Store.SaveSolveMetrics(bg, solveMetricsFor(job.ID, res, time.Since(start)))
	if ctx.Err() != nil {
		// Cancelled mid-search: the best-effort solution is kept, status
		// records the interruption.
		_ = s.Store.SetSolveStatus(bg, job.ID, model.SolveStatusCancelled, "")
	}
	s.Broker.Publish(job.ID, SolveEvent{Type: "solve.completed", Data: map[string]any{
		"solveId":       job.ID,
		"totalDistance": resp.TotalDistance,
		"totalDuration": resp.TotalDuration,
		"unassigned":    len(resp.Unassigned),
	}})
	s.Pub.Emit(bg, webhooks.EventSolveCompleted, map[string]any{
		"solveId":       job.ID,
		"totalDistance": resp.TotalDistance,
		"totalDuration": resp.TotalDuration,
		"unassigned":    len(resp.Unassigned),
	})
}

// SubscriptionsHandler handles /v1/subscriptions: POST registers a webhook,
// GET lists registrations.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid input", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		q := r.URL.Query()
		items, next, err := s.Store.ListSubscriptions(r.Context(), q.Get("cursor"), atoiDefault(q.Get("limit"), 100))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SolveMetricsHandler handles GET /v1/admin/solve-metrics, optionally
// filtered with ?solve_id=.
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if id := r.URL.Query().Get("solve_id"); id != "" {
		m, err := s.Store.GetSolveMetrics(r.Context(), id)
		if err != nil {
			s.writeStoreErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}
	items, err := s.Store.ListSolveMetrics(r.Context(), atoiDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Readiness is a cheap store round-trip.
	if _, _, err := s.Store.ListSolves(r.Context(), "", "", 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeStoreErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}
