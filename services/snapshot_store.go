package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/models"
)

// PricingSnapshot is the persisted scheduler state
type PricingSnapshot struct {
	Config  models.ScheduleConfig `json:"config"`
	Prices  []models.PriceRecord  `json:"prices"`
	Source  models.PriceSource    `json:"source"`
	Stale   bool                  `json:"stale"` // prices are a kept batch from an earlier cycle
	SavedAt time.Time             `json:"saved_at"`
}

// FileSnapshotStore keeps the latest snapshot in a single JSON file
type FileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewFileSnapshotStore creates a store backed by path
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Path returns the snapshot file location
func (s *FileSnapshotStore) Path() string {
	return s.path
}

// Save writes the snapshot atomically (temp file + rename)
func (s *FileSnapshotStore) Save(snapshot *PricingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create snapshot directory")
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	tmp, err := os.CreateTemp(dir, ".pricing-snapshot-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp snapshot")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "failed to replace snapshot")
	}

	log.WithFields(log.Fields{
		"path":   s.path,
		"prices": len(snapshot.Prices),
	}).Debug("Saved pricing snapshot")
	return nil
}

// Load reads the snapshot; ErrSnapshotNotFound when none was saved yet
func (s *FileSnapshotStore) Load() (*PricingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSnapshotNotFound, "%s", s.path)
		}
		return nil, errors.Wrap(err, "failed to read snapshot")
	}

	var snapshot PricingSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal snapshot")
	}
	return &snapshot, nil
}
