package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	solves     map[string]model.SolveJob
	solveOrder []string // insertion order, for listing and cursors
	metrics    map[string]model.SolveMetrics
	subs       map[string]model.Subscription
	subOrder   []string
	deliveries map[string]*memDelivery
}

func NewMemory() *Memory {
	return &Memory{
		solves:     map[string]model.SolveJob{},
		metrics:    map[string]model.SolveMetrics{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) CreateSolve(ctx context.Context, req model.OptimizeRequest) (model.SolveJob, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	now := time.Now().UTC()
	job := model.SolveJob{ID: uuid.New().String(), Status: model.SolveStatusPending, Request: req, CreatedAt: now, UpdatedAt: now}
	m.solves[job.ID] = job
	m.solveOrder = append(m.solveOrder, job.ID)
	return job, nil
}

func (m *Memory) GetSolve(ctx context.Context, id string) (model.SolveJob, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	job, ok := m.solves[id]
	if !ok {
		return model.SolveJob{}, ErrNotFound
	}
	return job, nil
}

func (m *Memory) ListSolves(ctx context.Context, status, cursor string, limit int) ([]model.SolveJob, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.solveOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.SolveJob{}
	var next string
	for i := start; i < len(m.solveOrder); i++ {
		job := m.solves[m.solveOrder[i]]
		if status != "" && job.Status != status {
			continue
		}
		if len(out) == limit {
			// More rows exist past this page.
			next = out[limit-1].ID
			break
		}
		out = append(out, job)
	}
	return out, next, nil
}

func (m *Memory) SetSolveStatus(ctx context.Context, id, status, errMsg string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	job, ok := m.solves[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	m.solves[id] = job
	return nil
}

func (m *Memory) SetSolveResult(ctx context.Context, id string, res *model.OptimizeResponse) error {
	m.mu.Lock(); defer m.mu.Unlock()
	job, ok := m.solves[id]
	if !ok {
		return ErrNotFound
	}
	job.Result = res
	job.Status = model.SolveStatusCompleted
	job.UpdatedAt = time.Now().UTC()
	m.solves[id] = job
	return nil
}

func (m *Memory) SaveSolveMetrics(ctx context.Context, sm model.SolveMetrics) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if sm.RecordedAt.IsZero() {
		sm.RecordedAt = time.Now().UTC()
	}
	m.metrics[sm.SolveID] = sm
	return nil
}

func (m *Memory) GetSolveMetrics(ctx context.Context, solveID string) (model.SolveMetrics, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	sm, ok := m.metrics[solveID]
	if !ok {
		return model.SolveMetrics{}, ErrNotFound
	}
	return sm, nil
}

func (m *Memory) ListSolveMetrics(ctx context.Context, limit int) ([]model.SolveMetrics, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]model.SolveMetrics, 0, len(m.metrics))
	for _, sm := range m.metrics {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret, CreatedAt: time.Now().UTC()}
	m.subs[s.ID] = s
	m.subOrder = append(m.subOrder, s.ID)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := 0
	if cursor != "" {
		for i, id := range m.subOrder {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.Subscription{}
	var next string
	for i := start; i < len(m.subOrder); i++ {
		s, ok := m.subs[m.subOrder[i]]
		if !ok {
			continue
		}
		if len(out) == limit {
			next = out[limit-1].ID
			break
		}
		out = append(out, s)
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	var out []model.Subscription
	for _, id := range m.subOrder {
		s, ok := m.subs[id]
		if !ok {
			continue
		}
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
	}}
	m.deliveries[d.ID] = d
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		d.Status = "in_flight"
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		return nil
	}
	d.Status = "pending"
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
