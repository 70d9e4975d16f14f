package repository

import "time"

// Location is the ledger row for one normalized address.
type Location struct {
	Key         string    `gorm:"column:key;primaryKey;size:512"`
	PointsTotal int64     `gorm:"column:points_total;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (Location) TableName() string {
	return "locations"
}

// ScanSession is the immutable audit record of one processed scan.
type ScanSession struct {
	ID            string    `gorm:"column:id;primaryKey;size:36"`
	LocationKey   string    `gorm:"column:location_key;size:512;index"`
	MaterialType  string    `gorm:"column:material_type;size:32"`
	RICCode       *int      `gorm:"column:ric_code"`
	Confidence    int       `gorm:"column:confidence"`
	Recyclable    bool      `gorm:"column:recyclable"`
	Uncertain     bool      `gorm:"column:uncertain"`
	PointsAwarded int64     `gorm:"column:points_awarded"`
	RawAnalysis   string    `gorm:"column:raw_analysis;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScanSession) TableName() string {
	return "scan_sessions"
}
