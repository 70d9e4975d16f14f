package vision

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single analysis call.
const DefaultTimeout = 30 * time.Second

// Request is one image plus the instruction payload sent to the service.
type Request struct {
	Image    []byte
	MIMEType string
	Prompt   string
}

// Response carries the untrusted service output.
type Response struct {
	Raw     string
	Model   string
	Latency time.Duration
}

// Client performs exactly one remote classification call per Analyze.
// Failures are returned as *Error.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// NewRequest validates img and builds a request carrying the fixed prompt.
func NewRequest(img []byte, maxBytes int) (Request, error) {
	mime, err := ValidateImage(img, maxBytes)
	if err != nil {
		return Request{}, err
	}
	return Request{Image: img, MIMEType: mime, Prompt: Prompt}, nil
}
