package runner

// Store persists completed run records.
type Store interface {
	// Runs returns all stored records, most recent first.
	Runs() []RunRecord
	// Save persists a record.
	Save(RunRecord) error
}
