package usecase

import (
	"errors"
	"fmt"
)

// Reason classifies why a scan did not end in a plain success.
type Reason string

const (
	ReasonInvalidInput      Reason = "InvalidInputError"
	ReasonTransport         Reason = "TransportError"
	ReasonAnalysisUncertain Reason = "AnalysisUncertain"
	ReasonPersistence       Reason = "PersistenceError"
)

// State is a step of the scan state machine.
type State string

const (
	StateSubmitted      State = "Submitted"
	StateAnalyzing      State = "Analyzing"
	StateClassified     State = "Classified"
	StateAnalysisFailed State = "AnalysisFailed"
	StateRecorded       State = "Recorded"
	StateRecordFailed   State = "RecordFailed"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTransport         = errors.New("vision service unavailable")
	ErrAnalysisUncertain = errors.New("analysis uncertain")
	ErrPersistence       = errors.New("points could not be saved")
)

// ScanError carries the reason a scan operation failed.
type ScanError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *ScanError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
}

func (e *ScanError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's reason.
func (e *ScanError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Reason == ReasonInvalidInput
	case ErrTransport:
		return e.Reason == ReasonTransport
	case ErrAnalysisUncertain:
		return e.Reason == ReasonAnalysisUncertain
	case ErrPersistence:
		return e.Reason == ReasonPersistence
	}
	return false
}

// ReasonOf returns the reason of a *ScanError in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var serr *ScanError
	if errors.As(err, &serr) {
		return serr.Reason, true
	}
	return "", false
}
