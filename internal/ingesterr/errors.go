// Package ingesterr defines the typed error sentinels that the worker
// pipeline classifies failures into, per the error handling policy.
package ingesterr

import "errors"

// Sentinels checked with errors.Is by callers that need to choose a retry
// or terminal-failure policy. Wrap these with fmt.Errorf("...: %w", Err...)
// to preserve classification while adding context.
var (
	ErrConfigInvalid    = errors.New("config_invalid")
	ErrAuthFailed       = errors.New("auth_failed")
	ErrTransientNetwork = errors.New("transient_network")
	ErrStorageIO        = errors.New("storage_io")
	ErrDBTransient      = errors.New("db_transient")
	ErrUnsafeArchive    = errors.New("unsafe_archive")
	ErrPasswordRequired = errors.New("password_required")
)

// Class returns the coarse error-kind label used in structured logs and the
// job_failed observability event, falling back to "unknown" for anything
// not classified above.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigInvalid):
		return "config_invalid"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrTransientNetwork):
		return "transient_network"
	case errors.Is(err, ErrStorageIO):
		return "storage_io"
	case errors.Is(err, ErrDBTransient):
		return "db_transient"
	case errors.Is(err, ErrUnsafeArchive):
		return "unsafe_archive"
	case errors.Is(err, ErrPasswordRequired):
		return "password_required"
	default:
		return "unknown"
	}
}
