package bookmarks

import "time"

// Kind distinguishes navigable links from organizational folders.
type Kind string

const (
	// KindLink marks a bookmark that points at a URL and can be clicked.
	KindLink Kind = "link"
	// KindFolder marks a grouping node with no URL of its own.
	KindFolder Kind = "folder"
)

// Bookmark is one entry of a user's start page.
type Bookmark struct {
	BookmarkID string    `gorm:"column:bookmark_id;primaryKey;size:190;not null"`
	UserID     string    `gorm:"column:user_id;size:190;not null;index:idx_bookmarks_user"`
	Title      string    `gorm:"column:title;size:320;not null"`
	URL        string    `gorm:"column:url;size:2048"`
	Kind       Kind      `gorm:"column:kind;size:16;not null"`
	Position   int64     `gorm:"column:position;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "bookmarks"
}

// Clickable reports whether a click on this bookmark should reach the ledger.
func (b Bookmark) Clickable() bool {
	return b.Kind == KindLink && b.URL != ""
}
