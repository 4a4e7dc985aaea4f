package scan

import (
	"errors"
	"fmt"
)

// Sentinel errors for the capture / analyze / persist cycle. Callers
// classify with errors.Is.
var (
	ErrDeviceUnavailable       = errors.New("capture device unavailable")
	ErrNotInStandardMode       = errors.New("device not in standard mode")
	ErrNotInVolumetricMode     = errors.New("device not in volumetric mode")
	ErrCaptureAlreadyInFlight  = errors.New("capture already in flight")
	ErrSessionBusy             = errors.New("a capture session is already live")
	ErrAccessDenied            = errors.New("access denied")
	ErrAnalysisAlreadyInFlight = errors.New("analysis already in flight")
	ErrAnalysisTimeout         = errors.New("analysis timed out")
	ErrInvalidAnalysisResponse = errors.New("invalid analysis response")
)

// PersistenceReason narrows a PersistenceError to the step that failed.
type PersistenceReason string

const (
	ReasonUploadFailed PersistenceReason = "upload-failed"
	ReasonWriteFailed  PersistenceReason = "write-failed"
	ReasonPartialWrite PersistenceReason = "partial-write"
)

// PersistenceError reports a failed persistence attempt. It never affects
// session state; it is surfaced only on the pipeline's notification channel.
type PersistenceError struct {
	Reason PersistenceReason
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure (%s): %v", e.Reason, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
