package store

import (
	"context"
	"errors"
	"time"

	"fleetroute/internal/model"
)

// Store is the persistence interface used by the API server and the webhook
// worker. Implementations: Memory (default) and Postgres (DATABASE_URL).
type Store interface {
	// Solves
	CreateSolve(ctx context.Context, req model.OptimizeRequest) (model.SolveJob, error)
	GetSolve(ctx context.Context, id string) (model.SolveJob, error)
	ListSolves(ctx context.Context, status, cursor string, limit int) ([]model.SolveJob, string, error)
	SetSolveStatus(ctx context.Context, id, status, errMsg string) error
	SetSolveResult(ctx context.Context, id string, res *model.OptimizeResponse) error

	// Solve metrics
	SaveSolveMetrics(ctx context.Context, m model.SolveMetrics) error
	GetSolveMetrics(ctx context.Context, solveID string) (model.SolveMetrics, error)
	ListSolveMetrics(ctx context.Context, limit int) ([]model.SolveMetrics, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one pending or in-flight webhook attempt.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
