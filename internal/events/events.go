// Package events publishes ledger events to downstream consumers.
package events

import (
	"context"
	"time"
)

// ScanRecorded is emitted after a scan and its ledger increment commit.
type ScanRecorded struct {
	ScanID        string    `json:"scan_id"`
	LocationKey   string    `json:"location_key"`
	MaterialType  string    `json:"material_type"`
	RICCode       *int      `json:"ric_code,omitempty"`
	Confidence    int       `json:"confidence"`
	Recyclable    bool      `json:"recyclable"`
	Uncertain     bool      `json:"uncertain"`
	PointsAwarded int64     `json:"points_awarded"`
	NewTotal      int64     `json:"new_total"`
	RecordedAt    time.Time `json:"recorded_at"`
	SubmittedBy   string    `json:"submitted_by,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishScanRecorded(ctx context.Context, evt ScanRecorded) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishScanRecorded(context.Context, ScanRecorded) error { return nil }

func (Nop) Close() {}
