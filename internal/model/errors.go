package model

import "fmt"

// MalformedRecordError reports a record that cannot be keyed or is missing
// required fields. Callers skip the record instead of persisting it.
type MalformedRecordError struct {
	ShowID string
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.ShowID != "" {
		return fmt.Sprintf("malformed record %s: %s: %s", e.ShowID, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record: %s: %s", e.Field, e.Reason)
}
