package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DiskStore persists run records to a directory as JSON files, one file per
// run, and keeps a bounded in-memory copy for serving history requests.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu      sync.Mutex
	records []RunRecord
}

// NewDiskStore creates a disk-backed store. The directory is created if it
// doesn't exist and existing records are loaded, newest first.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	records, err := s.load()
	if err != nil {
		// A corrupt state dir should not keep the server from starting.
		logger.Warn("loading existing run records failed", "error", err)
	} else {
		s.records = records
	}

	return s, nil
}

// Runs returns all loaded records, most recent first.
func (s *DiskStore) Runs() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunRecord, len(s.records))
	copy(result, s.records)
	return result
}

// Save persists a record to disk and updates the in-memory copy.
func (s *DiskStore) Save(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.StartedAt.IsZero() {
		return fmt.Errorf("cannot save run record without start time")
	}
	if record.ID == "" {
		record.ID = record.CalculateID()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}

	path := filepath.Join(s.dir, record.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}

	// Prepend to keep most recent first, bounded by maxCount.
	s.records = append([]RunRecord{record}, s.records...)
	if len(s.records) > s.maxCount {
		s.records = s.records[:s.maxCount]
	}

	s.logger.Debug("run record saved", "path", path)
	return nil
}

// load reads all records from disk, newest first, bounded by maxCount.
// Unreadable files are skipped with a warning.
func (s *DiskStore) load() ([]RunRecord, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var records []RunRecord
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("reading run record failed", "file", path, "error", err)
			continue
		}

		var record RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("parsing run record failed", "file", path, "error", err)
			continue
		}
		if record.ID == "" {
			record.ID = record.CalculateID()
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if len(records) > s.maxCount {
		records = records[:s.maxCount]
	}

	s.logger.Info("run history loaded", "count", len(records))
	return records, nil
}
