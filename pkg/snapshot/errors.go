package snapshot

import "fmt"

// ConfigurationError reports a snapshot definition that is invalid on its
// face or does not match the relation it is pointed at. It is fatal for the
// snapshot that raised it.
type ConfigurationError struct {
	Snapshot string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	if e.Snapshot == "" {
		return fmt.Sprintf("invalid snapshot configuration: %s", e.Detail)
	}
	return fmt.Sprintf("snapshot %s: invalid configuration: %s", e.Snapshot, e.Detail)
}

// AmbiguousIdentityError reports an identity that maps to more than one row
// where exactly one is required: two source rows claiming the same key, or
// two open history rows for the same key. Merging either would write
// nondeterministic history, so the run stops.
type AmbiguousIdentityError struct {
	Identity string
	Relation string // "source" or "snapshot"
}

func (e *AmbiguousIdentityError) Error() string {
	if e.Relation == "snapshot" {
		return fmt.Sprintf("snapshot table holds more than one open row for identity (%s)", e.Identity)
	}
	return fmt.Sprintf("source query returned more than one row for identity (%s)", e.Identity)
}

// NullKeyError reports a NULL in a key column. NULL never equals NULL in
// SQL, so such a row can never be matched against its own history.
type NullKeyError struct {
	Column string
}

func (e *NullKeyError) Error() string {
	return fmt.Sprintf("key column %s is NULL; rows with NULL keys cannot be tracked", e.Column)
}
