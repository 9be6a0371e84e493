package core

import (
	"errors"
	"fmt"
)

// ErrCommitConflict is returned when a group could not be committed within
// the configured number of attempts.
var ErrCommitConflict = errors.New("commit conflict: transaction could not be committed")

// CommitConflictError reports how many attempts were made before giving up.
type CommitConflictError struct {
	Attempts int
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit conflict: gave up after %d attempts", e.Attempts)
}

func (e *CommitConflictError) Is(target error) bool {
	return target == ErrCommitConflict
}

// MalformedGroupError reports a group whose values do not line up with the
// header. Field alignment cannot be recovered, so the whole file stops.
type MalformedGroupError struct {
	Source string
	Line   int
	Reason string
}

func (e *MalformedGroupError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed group in %s at line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed group in %s: %s", e.Source, e.Reason)
}

// IsMalformed reports whether err is, or wraps, a MalformedGroupError.
func IsMalformed(err error) bool {
	var mge *MalformedGroupError
	return errors.As(err, &mge)
}

func writeRejected(field string, value Value, record RecordID) string {
	return fmt.Sprintf("could not import %s AS %s IN %d", field, value, record)
}
