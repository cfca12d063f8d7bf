package runner

import "sync"

// MemoryStore keeps run records in memory only (no persistence).
type MemoryStore struct {
	mu   sync.Mutex
	runs []RunRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Runs returns all stored records, most recent first.
func (s *MemoryStore) Runs() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunRecord, len(s.runs))
	copy(result, s.runs)
	return result
}

// Save stores a record in memory.
func (s *MemoryStore) Save(record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = record.CalculateID()
	}
	// Prepend to keep most recent first.
	s.runs = append([]RunRecord{record}, s.runs...)
	return nil
}
