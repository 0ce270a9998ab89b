// Package store — PostgreSQL Store implementation backed by pgx.
// Connection URL comes from DATABASE_URL; the schema is created on startup
// if missing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and runs the schema migration.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS de_predictions (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			type            TEXT NOT NULL,
			category        TEXT NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			model_name      TEXT NOT NULL DEFAULT '',
			fallback        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS de_feedback (
			id              BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			success         BOOLEAN NOT NULL,
			type            TEXT NOT NULL DEFAULT '',
			details         TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_de_feedback_created ON de_feedback (created_at);

		CREATE TABLE IF NOT EXISTS de_outcomes (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			kind            TEXT NOT NULL,
			prediction_id   TEXT NOT NULL DEFAULT '',
			predicted_category TEXT NOT NULL DEFAULT '',
			actual_category TEXT NOT NULL,
			was_correct     BOOLEAN NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_de_outcomes_kind ON de_outcomes (kind, recorded_at);

		CREATE TABLE IF NOT EXISTS de_training_jobs (
			id         TEXT PRIMARY KEY,
			model_name TEXT NOT NULL,
			status     TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time   TIMESTAMPTZ,
			metrics    JSONB,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_de_jobs_model ON de_training_jobs (model_name, status);

		CREATE TABLE IF NOT EXISTS de_models (
			name             TEXT NOT NULL,
			type             TEXT NOT NULL,
			version          INT NOT NULL,
			status           TEXT NOT NULL,
			accuracy         DOUBLE PRECISION NOT NULL DEFAULT 0,
			training_samples INT NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_de_models_active ON de_models (name) WHERE status = 'active';
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── Predictions ─────────────────────────────────────────────

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO de_predictions (id, conversation_id, type, category, confidence, model_name, fallback, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.ConversationID, p.Type, p.Category, p.Confidence, p.ModelName, p.Fallback, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	var p models.Prediction
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, type, category, confidence, model_name, fallback, created_at
		FROM de_predictions WHERE id = $1`, id).
		Scan(&p.ID, &p.ConversationID, &p.Type, &p.Category, &p.Confidence, &p.ModelName, &p.Fallback, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "prediction", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListPredictionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, type, category, confidence, model_name, fallback, created_at
		FROM de_predictions WHERE created_at < $1
		ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.ID, &p.ConversationID, &p.Type, &p.Category, &p.Confidence, &p.ModelName, &p.Fallback, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM de_predictions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Feedback ────────────────────────────────────────────────

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO de_feedback (conversation_id, success, type, details, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		fb.ConversationID, fb.Success, fb.Type, fb.Details, fb.CreatedAt)
	return err
}

func (s *PostgresStore) ListFeedback(ctx context.Context, conversationID string, limit int) ([]models.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, success, type, details, created_at
		FROM de_feedback
		WHERE ($1 = '' OR conversation_id = $1)
		ORDER BY created_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var fb models.FeedbackRecord
		if err := rows.Scan(&fb.ConversationID, &fb.Success, &fb.Type, &fb.Details, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountFeedbackSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM de_feedback WHERE created_at >= $1`, since).Scan(&count)
	return count, err
}

func (s *PostgresStore) ListFeedbackBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, success, type, details, created_at
		FROM de_feedback WHERE created_at < $1
		ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var fb models.FeedbackRecord
		if err := rows.Scan(&fb.ConversationID, &fb.Success, &fb.Type, &fb.Details, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteFeedbackBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM de_feedback WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Outcomes ────────────────────────────────────────────────

func (s *PostgresStore) CreateOutcome(ctx context.Context, o *models.RecordedOutcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO de_outcomes (id, conversation_id, kind, prediction_id, predicted_category, actual_category, was_correct, confidence, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			actual_category = EXCLUDED.actual_category,
			was_correct     = EXCLUDED.was_correct`,
		o.ID, o.ConversationID, o.Kind, o.PredictionID, o.PredictedCategory, o.ActualCategory, o.WasCorrect, o.Confidence, o.RecordedAt)
	return err
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*models.RecordedOutcome, error) {
	var o models.RecordedOutcome
	err := s.pool.QueryRow(ctx, `
		SELECT id, conversation_id, kind, prediction_id, predicted_category, actual_category, was_correct, confidence, recorded_at
		FROM de_outcomes WHERE id = $1`, id).
		Scan(&o.ID, &o.ConversationID, &o.Kind, &o.PredictionID, &o.PredictedCategory, &o.ActualCategory, &o.WasCorrect, &o.Confidence, &o.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "outcome", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, kind string, since time.Time, limit int) ([]models.RecordedOutcome, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, kind, prediction_id, predicted_category, actual_category, was_correct, confidence, recorded_at
		FROM de_outcomes
		WHERE ($1 = '' OR kind = $1) AND recorded_at >= $2
		ORDER BY recorded_at ASC LIMIT $3`, kind, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RecordedOutcome
	for rows.Next() {
		var o models.RecordedOutcome
		if err := rows.Scan(&o.ID, &o.ConversationID, &o.Kind, &o.PredictionID, &o.PredictedCategory, &o.ActualCategory, &o.WasCorrect, &o.Confidence, &o.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ── Training Jobs ───────────────────────────────────────────

func (s *PostgresStore) CreateTrainingJob(ctx context.Context, job *models.TrainingJob) error {
	metrics, err := marshalMetrics(job.Metrics)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO de_training_jobs (id, model_name, status, start_time, end_time, metrics, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		job.ID, job.ModelName, job.Status, job.StartTime, job.EndTime, metrics, job.Error)
	return err
}

func (s *PostgresStore) UpdateTrainingJob(ctx context.Context, job *models.TrainingJob) error {
	existing, err := s.GetTrainingJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing.Status != job.Status && !existing.Status.CanTransition(job.Status) {
		return &ErrInvalidTransition{JobID: job.ID, From: existing.Status, To: job.Status}
	}
	metrics, err := marshalMetrics(job.Metrics)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE de_training_jobs
		SET status = $2, end_time = $3, metrics = $4, error = $5
		WHERE id = $1`,
		job.ID, job.Status, job.EndTime, metrics, job.Error)
	return err
}

func (s *PostgresStore) GetTrainingJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		SELECT id, model_name, status, start_time, end_time, metrics, error
		FROM de_training_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "training job", Key: id}
	}
	return job, err
}

func (s *PostgresStore) ListTrainingJobs(ctx context.Context, filter TrainingFilter) ([]models.TrainingJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, model_name, status, start_time, end_time, metrics, error
		FROM de_training_jobs
		WHERE ($1 = '' OR model_name = $1) AND ($2 = '' OR status = $2)
		ORDER BY start_time DESC, id ASC LIMIT $3`,
		filter.ModelName, string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrainingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveTrainingJob(ctx context.Context, modelName string) (*models.TrainingJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		SELECT id, model_name, status, start_time, end_time, metrics, error
		FROM de_training_jobs
		WHERE model_name = $1 AND status IN ('scheduled','in_progress')
		ORDER BY start_time DESC LIMIT 1`, modelName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "active training job", Key: modelName}
	}
	return job, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.TrainingJob, error) {
	var job models.TrainingJob
	var metrics []byte
	if err := row.Scan(&job.ID, &job.ModelName, &job.Status, &job.StartTime, &job.EndTime, &metrics, &job.Error); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		var m models.TrainingMetrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("unmarshal job metrics: %w", err)
		}
		job.Metrics = &m
	}
	return &job, nil
}

func marshalMetrics(m *models.TrainingMetrics) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// ── Models ──────────────────────────────────────────────────

func (s *PostgresStore) GetModel(ctx context.Context, name string) (*models.ModelRecord, error) {
	var m models.ModelRecord
	err := s.pool.QueryRow(ctx, `
		SELECT name, type, version, status, accuracy, training_samples, updated_at
		FROM de_models WHERE name = $1 AND status = 'active'`, name).
		Scan(&m.Name, &m.Type, &m.Version, &m.Status, &m.Accuracy, &m.TrainingSamples, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "model", Key: name}
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListModels(ctx context.Context, typeFilter models.PredictionType) ([]models.ModelRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, type, version, status, accuracy, training_samples, updated_at
		FROM de_models
		WHERE status = 'active' AND ($1 = '' OR type = $1)
		ORDER BY name ASC`, string(typeFilter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanModels(rows)
}

func (s *PostgresStore) ListModelVersions(ctx context.Context, name string) ([]models.ModelRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, type, version, status, accuracy, training_samples, updated_at
		FROM de_models WHERE name = $1 ORDER BY version DESC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanModels(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &ErrNotFound{Entity: "model", Key: name}
	}
	return out, nil
}

func (s *PostgresStore) PutModel(ctx context.Context, m *models.ModelRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO de_models (name, type, version, status, accuracy, training_samples, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (name, version) DO UPDATE SET
			type = EXCLUDED.type, status = EXCLUDED.status,
			accuracy = EXCLUDED.accuracy,
			training_samples = EXCLUDED.training_samples,
			updated_at = EXCLUDED.updated_at`,
		m.Name, m.Type, m.Version, m.Status, m.Accuracy, m.TrainingSamples, m.UpdatedAt)
	return err
}

// SwapActiveModel retires the current active version and installs the new
// one in a single transaction, so readers never see partial state.
func (s *PostgresStore) SwapActiveModel(ctx context.Context, m *models.ModelRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE de_models SET status = 'retired' WHERE name = $1 AND status = 'active'`, m.Name); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO de_models (name, type, version, status, accuracy, training_samples, updated_at)
		VALUES ($1,$2,$3,'active',$4,$5,$6)`,
		m.Name, m.Type, m.Version, m.Accuracy, m.TrainingSamples, m.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanModels(rows pgx.Rows) ([]models.ModelRecord, error) {
	var out []models.ModelRecord
	for rows.Next() {
		var m models.ModelRecord
		if err := rows.Scan(&m.Name, &m.Type, &m.Version, &m.Status, &m.Accuracy, &m.TrainingSamples, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
