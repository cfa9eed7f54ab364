package descriptor

import (
	"fmt"
)

// DecodeError reports a malformed descriptor: bad version, truncated buffer or an
// out of range length prefix.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("descriptor: invalid %s at offset %d", e.Field, e.Offset)
	}
	return fmt.Sprintf("descriptor: invalid %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NamespaceResolutionError reports a namespace index or URI that the namespace table
// does not contain.
type NamespaceResolutionError struct {
	Field string
	Index uint16
	URI   string
}

func (e *NamespaceResolutionError) Error() string {
	if e.URI != "" {
		return fmt.Sprintf("descriptor: %s refers to unknown namespace %q", e.Field, e.URI)
	}
	return fmt.Sprintf("descriptor: %s refers to namespace index %d outside the table", e.Field, e.Index)
}
