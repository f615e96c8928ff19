package errors

// ErrValidation marks a malformed request rejected at the boundary.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// ErrNotFound marks a single-item lookup that matched nothing. Clients treat
// it as terminal and do not retry.
type ErrNotFound struct {
	Entity string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found"
}

// ErrUnsupportedSource marks an operation a given source type cannot perform,
// e.g. an on-demand refresh for a bulk-feed source.
type ErrUnsupportedSource struct {
	SourceType string
}

func (e *ErrUnsupportedSource) Error() string {
	return "operation not supported for source type " + e.SourceType
}
