package core

// Observer receives engine events. Implementations must be safe for
// concurrent use when shared between importers.
type Observer interface {
	RecordCreated()
	WriteRejected(field string)
	CommitConflict(attempt int)
	GroupImported(result *ImportResult, attempts int)
}

type nopObserver struct{}

func (nopObserver) RecordCreated()                   {}
func (nopObserver) WriteRejected(string)             {}
func (nopObserver) CommitConflict(int)               {}
func (nopObserver) GroupImported(*ImportResult, int) {}
