package app

import (
	"errors"

	"github.com/SamTV12345/PodFetch-sub001/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

// Precondition errors. These are not faults: callers branch on them to
// tell "nothing happened because X" apart from real failures.
var (
	ErrAlreadyDownloaded  = errors.New("episode already downloaded")
	ErrAlreadyDownloading = errors.New("download already in progress")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrOffline            = errors.New("offline")
	ErrNotConfigured      = errors.New("server not configured")
)

// CodedError carries a stable error code for the API surface.
//
// Example codes: invalid_params, http_status, network_error, io_error.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }
