package retention

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Archiver writes expired data as JSONL files to a local directory before
// the janitor purges it from the hot store.
//
// Directory structure:
//
//	{basePath}/predictions/2026-08-28T15-04-05Z.jsonl[.gz]
//	{basePath}/feedback/2026-08-28T15-04-05Z.jsonl[.gz]
type Archiver struct {
	basePath string
	compress bool
}

// NewArchiver creates a file-based archiver rooted at basePath.
func NewArchiver(basePath string, compress bool) *Archiver {
	return &Archiver{basePath: basePath, compress: compress}
}

// ArchivePredictions writes a batch of expired predictions and returns the
// archive file path.
func (a *Archiver) ArchivePredictions(predictions []models.Prediction) (string, error) {
	records := make([]interface{}, len(predictions))
	for i := range predictions {
		records[i] = predictions[i]
	}
	path, err := a.writeBatch("predictions", records)
	if err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("count", len(predictions)).Msg("Archived predictions")
	return path, nil
}

// ArchiveFeedback writes a batch of expired feedback records and returns the
// archive file path.
func (a *Archiver) ArchiveFeedback(feedback []models.FeedbackRecord) (string, error) {
	records := make([]interface{}, len(feedback))
	for i := range feedback {
		records[i] = feedback[i]
	}
	path, err := a.writeBatch("feedback", records)
	if err != nil {
		return "", err
	}
	log.Debug().Str("path", path).Int("count", len(feedback)).Msg("Archived feedback")
	return path, nil
}

func (a *Archiver) writeBatch(kind string, records []interface{}) (string, error) {
	dir := filepath.Join(a.basePath, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode archive record: %w", err)
		}
	}
	return fpath, nil
}

// HealthCheck verifies the archive path is writable.
func (a *Archiver) HealthCheck() error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}
