package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetroute/internal/model"
)

// Postgres persists solves, metrics, subscriptions and webhook deliveries.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.migrate(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS solves (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			request JSONB NOT NULL,
			result JSONB,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS solve_metrics (
			solve_id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			scans INT NOT NULL,
			intra_relocations INT NOT NULL,
			inter_relocations INT NOT NULL,
			two_opt_moves INT NOT NULL,
			initial_distance DOUBLE PRECISION NOT NULL,
			final_distance DOUBLE PRECISION NOT NULL,
			duration_ms BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			events JSONB NOT NULL,
			secret TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			subscription_id UUID,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT,
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateSolve(ctx context.Context, req model.OptimizeRequest) (model.SolveJob, error) {
	id := uuid.New().String()
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return model.SolveJob{}, err
	}
	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `INSERT INTO solves (id, status, request, created_at, updated_at) VALUES ($1,$2,$3,$4,$4)`,
		id, model.SolveStatusPending, reqJSON, now)
	if err != nil {
		return model.SolveJob{}, err
	}
	return model.SolveJob{ID: id, Status: model.SolveStatusPending, Request: req, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (model.SolveJob, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, status, request, result, error, created_at, updated_at FROM solves WHERE id=$1`, id)
	return scanSolve(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSolve(row rowScanner) (model.SolveJob, error) {
	var job model.SolveJob
	var reqJSON []byte
	var resJSON []byte
	var errMsg sql.NullString
	if err := row.Scan(&job.ID, &job.Status, &reqJSON, &resJSON, &errMsg, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SolveJob{}, ErrNotFound
		}
		return model.SolveJob{}, err
	}
	if err := json.Unmarshal(reqJSON, &job.Request); err != nil {
		return model.SolveJob{}, err
	}
	if len(resJSON) > 0 {
		job.Result = &model.OptimizeResponse{}
		if err := json.Unmarshal(resJSON, job.Result); err != nil {
			return model.SolveJob{}, err
		}
	}
	job.Error = errMsg.String
	return job, nil
}

func (p *Postgres) ListSolves(ctx context.Context, status, cursor string, limit int) ([]model.SolveJob, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, status, request, result, error, created_at, updated_at FROM solves`
	args := []any{}
	where := ""
	if status != "" {
		args = append(args, status)
		where = ` WHERE status=$1`
	}
	if cursor != "" {
		args = append(args, cursor)
		if where == "" {
			where = ` WHERE id::text > $1`
		} else {
			where += ` AND id::text > $2`
		}
	}
	// Fetch one extra row to learn whether another page exists.
	args = append(args, limit+1)
	q += where + ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SolveJob{}
	for rows.Next() {
		job, err := scanSolve(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, job)
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) SetSolveStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE solves SET status=$2, error=$3, updated_at=now() WHERE id=$1`,
		id, status, nullIfEmpty(errMsg))
	if err != nil {
		return err
	}
	return notFoundIfZero(res)
}

func (p *Postgres) SetSolveResult(ctx context.Context, id string, r *model.OptimizeResponse) error {
	resJSON, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE solves SET result=$2, status=$3, updated_at=now() WHERE id=$1`,
		id, resJSON, model.SolveStatusCompleted)
	if err != nil {
		return err
	}
	return notFoundIfZero(res)
}

func (p *Postgres) SaveSolveMetrics(ctx context.Context, m model.SolveMetrics) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO solve_metrics
		(solve_id, state, scans, intra_relocations, inter_relocations, two_opt_moves, initial_distance, final_distance, duration_ms, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (solve_id) DO UPDATE SET state=$2, scans=$3, intra_relocations=$4, inter_relocations=$5,
			two_opt_moves=$6, initial_distance=$7, final_distance=$8, duration_ms=$9, recorded_at=$10`,
		m.SolveID, m.State, m.Scans, m.IntraRelocations, m.InterRelocations, m.TwoOptMoves,
		m.InitialDistance, m.FinalDistance, m.DurationMs, m.RecordedAt)
	return err
}

func (p *Postgres) GetSolveMetrics(ctx context.Context, solveID string) (model.SolveMetrics, error) {
	var m model.SolveMetrics
	row := p.db.QueryRowContext(ctx, `SELECT solve_id::text, state, scans, intra_relocations, inter_relocations, two_opt_moves, initial_distance, final_distance, duration_ms, recorded_at FROM solve_metrics WHERE solve_id=$1`, solveID)
	err := row.Scan(&m.SolveID, &m.State, &m.Scans, &m.IntraRelocations, &m.InterRelocations, &m.TwoOptMoves, &m.InitialDistance, &m.FinalDistance, &m.DurationMs, &m.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SolveMetrics{}, ErrNotFound
	}
	return m, err
}

func (p *Postgres) ListSolveMetrics(ctx context.Context, limit int) ([]model.SolveMetrics, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT solve_id::text, state, scans, intra_relocations, inter_relocations, two_opt_moves, initial_distance, final_distance, duration_ms, recorded_at FROM solve_metrics ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SolveMetrics{}
	for rows.Next() {
		var m model.SolveMetrics
		if err := rows.Scan(&m.SolveID, &m.State, &m.Scans, &m.IntraRelocations, &m.InterRelocations, &m.TwoOptMoves, &m.InitialDistance, &m.FinalDistance, &m.DurationMs, &m.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret, CreatedAt: time.Now().UTC()}
	ev, err := json.Marshal(s.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret, created_at) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.URL, ev, nullIfEmpty(s.Secret), s.CreatedAt)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, secret, created_at FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit+1)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events, secret, created_at FROM subscriptions ORDER BY id LIMIT $1`, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var secret sql.NullString
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &secret, &s.CreatedAt); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(events, &s.Events)
		s.Secret = secret.String
		out = append(out, s)
	}
	var next string
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return notFoundIfZero(res)
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret, created_at FROM subscriptions WHERE events @> $1::jsonb OR events @> '["*"]'::jsonb ORDER BY id`,
		fmt.Sprintf("[%q]", eventType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var secret sql.NullString
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &secret, &s.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		s.Secret = secret.String
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `UPDATE webhook_deliveries SET status='in_flight', updated_at=now()
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status='pending' AND next_attempt_at <= now()
			ORDER BY next_attempt_at LIMIT $1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text, subscription_id::text, event_type, url, secret, payload, status, attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var subID, secret sql.NullString
		if err := rows.Scan(&d.ID, &subID, &d.EventType, &d.URL, &secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.SubscriptionID = subID.String
		d.Secret = secret.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', last_error=NULL, updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	var next time.Time
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	} else {
		next = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='pending', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, nullIfEmpty(lastError), next, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func notFoundIfZero(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

