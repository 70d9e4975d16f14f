package logging

import (
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OperationError records where a failure happened: the operation, the scan
// it concerned, if any, and how many attempts were made before giving up.
type OperationError struct {
	Operation string
	ScanID    string
	Attempts  int
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.ScanID != "" {
		b.WriteString(" [scan ")
		b.WriteString(e.ScanID)
		b.WriteByte(']')
	}
	if e.Attempts > 1 {
		b.WriteString(" after ")
		b.WriteString(strconv.Itoa(e.Attempts))
		b.WriteString(" attempts")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MarshalLogObject lets the error be logged with zap.Object.
func (e *OperationError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", e.Operation)
	if e.ScanID != "" {
		enc.AddString("scan_id", e.ScanID)
	}
	if e.Attempts > 0 {
		enc.AddInt("attempts", e.Attempts)
	}
	return nil
}

// NewOperationError wraps err from a single attempt. A nil err stays nil.
func NewOperationError(operation, scanID string, err error) error {
	return Retried(operation, scanID, 1, err)
}

// Retried wraps err from the last of attempts tries. A nil err stays nil.
func Retried(operation, scanID string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, ScanID: scanID, Attempts: attempts, Err: err}
}

// OperationOf returns the outermost OperationError in err's chain.
func OperationOf(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// ErrorFields logs err together with the operation that produced it.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	if opErr, ok := OperationOf(err); ok {
		fields = append(fields, zap.Object("failure", opErr))
	}
	return fields
}
