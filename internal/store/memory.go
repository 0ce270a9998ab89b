// Package store — in-memory Store implementation.
// Used when PostgreSQL is not configured (local dev, tests). Supports
// file-based snapshot persistence so feedback, jobs, and model versions
// survive restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Predictions map[string]*models.Prediction     `json:"predictions"`
	Feedback    []*models.FeedbackRecord          `json:"feedback"`
	Outcomes    map[string]*models.RecordedOutcome `json:"outcomes"`
	Jobs        map[string]*models.TrainingJob    `json:"jobs"`
	Models      map[string][]*models.ModelRecord  `json:"models"` // name → version history, newest last
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	predictions map[string]*models.Prediction      // key: id
	feedback    []*models.FeedbackRecord           // append-only log
	outcomes    map[string]*models.RecordedOutcome // key: id
	outcomeLog  []*models.RecordedOutcome          // append order preserved for listing
	jobs        map[string]*models.TrainingJob     // key: id
	modelHist   map[string][]*models.ModelRecord   // key: name → version history, newest last

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If DECISION_DATA_DIR is set, data is persisted to a JSON file in that
// directory; otherwise persistence is disabled.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		predictions: make(map[string]*models.Prediction),
		feedback:    make([]*models.FeedbackRecord, 0),
		outcomes:    make(map[string]*models.RecordedOutcome),
		jobs:        make(map[string]*models.TrainingJob),
		modelHist:   make(map[string][]*models.ModelRecord),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	if dataDir := os.Getenv("DECISION_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close stops the background save goroutine and flushes a final snapshot.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Predictions ─────────────────────────────────────────────

func (m *MemoryStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	m.mu.Lock()
	cp := *p
	m.predictions[p.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetPrediction(ctx context.Context, id string) (*models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.predictions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "prediction", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListPredictionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Prediction
	for _, p := range m.predictions {
		if p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	removed := 0
	for id, p := range m.predictions {
		if p.CreatedAt.Before(cutoff) {
			delete(m.predictions, id)
			removed++
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.requestSave()
	}
	return removed, nil
}

// ── Feedback ────────────────────────────────────────────────

func (m *MemoryStore) CreateFeedback(ctx context.Context, fb *models.FeedbackRecord) error {
	m.mu.Lock()
	cp := *fb
	m.feedback = append(m.feedback, &cp)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListFeedback(ctx context.Context, conversationID string, limit int) ([]models.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FeedbackRecord
	for i := len(m.feedback) - 1; i >= 0; i-- {
		fb := m.feedback[i]
		if conversationID != "" && fb.ConversationID != conversationID {
			continue
		}
		out = append(out, *fb)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CountFeedbackSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, fb := range m.feedback {
		if !fb.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListFeedbackBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.FeedbackRecord
	for _, fb := range m.feedback {
		if fb.CreatedAt.Before(cutoff) {
			out = append(out, *fb)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteFeedbackBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	kept := m.feedback[:0]
	removed := 0
	for _, fb := range m.feedback {
		if fb.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, fb)
	}
	m.feedback = kept
	m.mu.Unlock()
	if removed > 0 {
		m.requestSave()
	}
	return removed, nil
}

// ── Outcomes ────────────────────────────────────────────────

func (m *MemoryStore) CreateOutcome(ctx context.Context, o *models.RecordedOutcome) error {
	m.mu.Lock()
	cp := *o
	if _, exists := m.outcomes[o.ID]; !exists {
		m.outcomeLog = append(m.outcomeLog, &cp)
	}
	m.outcomes[o.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetOutcome(ctx context.Context, id string) (*models.RecordedOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outcomes[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "outcome", Key: id}
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListOutcomes(ctx context.Context, kind string, since time.Time, limit int) ([]models.RecordedOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RecordedOutcome
	for _, o := range m.outcomeLog {
		if kind != "" && o.Kind != kind {
			continue
		}
		if o.RecordedAt.Before(since) {
			continue
		}
		out = append(out, *o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ── Training Jobs ───────────────────────────────────────────

func (m *MemoryStore) CreateTrainingJob(ctx context.Context, job *models.TrainingJob) error {
	m.mu.Lock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateTrainingJob(ctx context.Context, job *models.TrainingJob) error {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.requestSave()
	}()
	existing, ok := m.jobs[job.ID]
	if !ok {
		return &ErrNotFound{Entity: "training job", Key: job.ID}
	}
	if existing.Status != job.Status && !existing.Status.CanTransition(job.Status) {
		return &ErrInvalidTransition{JobID: job.ID, From: existing.Status, To: job.Status}
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrainingJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "training job", Key: id}
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) ListTrainingJobs(ctx context.Context, filter TrainingFilter) ([]models.TrainingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TrainingJob
	for _, job := range m.jobs {
		if filter.ModelName != "" && job.ModelName != filter.ModelName {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, *job)
	}
	// Newest first, deterministic order for equal times.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ActiveTrainingJob(ctx context.Context, modelName string) (*models.TrainingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if job.ModelName == modelName && !job.Status.Terminal() {
			cp := *job
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "active training job", Key: modelName}
}

// ── Models ──────────────────────────────────────────────────

func (m *MemoryStore) GetModel(ctx context.Context, name string) (*models.ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(name)
}

// activeLocked returns the active version of a model. Caller holds the lock.
func (m *MemoryStore) activeLocked(name string) (*models.ModelRecord, error) {
	for _, rec := range m.modelHist[name] {
		if rec.Status == models.ModelActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "model", Key: name}
}

func (m *MemoryStore) ListModels(ctx context.Context, typeFilter models.PredictionType) ([]models.ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ModelRecord
	for _, hist := range m.modelHist {
		for _, rec := range hist {
			if rec.Status != models.ModelActive {
				continue
			}
			if typeFilter != "" && rec.Type != typeFilter {
				continue
			}
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListModelVersions(ctx context.Context, name string) ([]models.ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist, ok := m.modelHist[name]
	if !ok || len(hist) == 0 {
		return nil, &ErrNotFound{Entity: "model", Key: name}
	}
	out := make([]models.ModelRecord, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, *hist[i])
	}
	return out, nil
}

func (m *MemoryStore) PutModel(ctx context.Context, rec *models.ModelRecord) error {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.requestSave()
	}()
	cp := *rec
	hist := m.modelHist[rec.Name]
	for i, existing := range hist {
		if existing.Status == models.ModelActive {
			hist[i] = &cp
			return nil
		}
	}
	m.modelHist[rec.Name] = append(hist, &cp)
	return nil
}

func (m *MemoryStore) SwapActiveModel(ctx context.Context, rec *models.ModelRecord) error {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.requestSave()
	}()
	// Retire the current active version; the history is kept for rollback.
	for _, existing := range m.modelHist[rec.Name] {
		if existing.Status == models.ModelActive {
			existing.Status = models.ModelRetired
		}
	}
	cp := *rec
	cp.Status = models.ModelActive
	m.modelHist[rec.Name] = append(m.modelHist[rec.Name], &cp)
	return nil
}

// ── Snapshot persistence ────────────────────────────────────

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Predictions: m.predictions,
		Feedback:    m.feedback,
		Outcomes:    m.outcomes,
		Jobs:        m.jobs,
		Models:      m.modelHist,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Predictions != nil {
		m.predictions = snap.Predictions
	}
	if snap.Feedback != nil {
		m.feedback = snap.Feedback
	}
	if snap.Outcomes != nil {
		m.outcomes = snap.Outcomes
		m.outcomeLog = make([]*models.RecordedOutcome, 0, len(snap.Outcomes))
		for _, o := range snap.Outcomes {
			m.outcomeLog = append(m.outcomeLog, o)
		}
		sort.Slice(m.outcomeLog, func(i, j int) bool {
			return m.outcomeLog[i].RecordedAt.Before(m.outcomeLog[j].RecordedAt)
		})
	}
	if snap.Jobs != nil {
		m.jobs = snap.Jobs
	}
	if snap.Models != nil {
		m.modelHist = snap.Models
	}

	log.Info().
		Int("predictions", len(m.predictions)).
		Int("feedback", len(m.feedback)).
		Int("outcomes", len(m.outcomes)).
		Int("jobs", len(m.jobs)).
		Int("models", len(m.modelHist)).
		Msg("Snapshot loaded")
}
