package clicks

import "time"

// ClickRecord accumulates clicks by one user on one site. The composite
// primary key enforces at most one row per (user, site) pair, which is what
// makes the increment-or-create upsert in RecordClick atomic at the store.
type ClickRecord struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	SiteID      string    `gorm:"column:site_id;primaryKey;size:255;not null;index:idx_click_records_site"`
	ClickCount  int64     `gorm:"column:click_count;not null;default:0"`
	LastClickAt time.Time `gorm:"column:last_click_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ClickRecord) TableName() string {
	return "click_records"
}

// SiteStats aggregates the ledger for a single site.
type SiteStats struct {
	GlobalClicks int64
	UniqueUsers  int64
}

// HeatRankingItem is one entry of the global heat ranking, computed fresh
// from the ledger on every query and never persisted.
type HeatRankingItem struct {
	SiteID       string
	SiteName     string
	GlobalClicks int64
	UniqueUsers  int64
}
