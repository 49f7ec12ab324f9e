package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidIdentity indicates the request did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for identity bookkeeping.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records which users this service has seen and when.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// Touch records a sighting of the user. The write is a single upsert, so
// concurrent first sightings of the same user cannot race the insert. The
// cache lets repeat sightings skip the conflict clause and run a plain
// update against the row that is known to exist.
func (s *Service) Touch(userID, displayName string) error {
	userID = normalize(userID)
	if userID == "" {
		return ErrInvalidIdentity
	}
	displayName = normalize(displayName)

	updates := map[string]interface{}{"last_seen_at": s.now()}
	if displayName != "" {
		updates["user_display_name"] = displayName
	}

	if _, known := s.cache.Load(userID); known {
		return s.db.Model(&Identity{}).
			Where("user_id = ?", userID).
			Updates(updates).
			Error
	}

	identity := Identity{
		UserID:      userID,
		DisplayName: displayName,
		LastSeenAt:  s.now(),
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&identity).Error; err != nil {
		return err
	}

	s.cache.Store(userID, struct{}{})
	return nil
}

// Lookup returns the stored identity for the user id.
func (s *Service) Lookup(userID string) (Identity, error) {
	userID = normalize(userID)
	if userID == "" {
		return Identity{}, ErrInvalidIdentity
	}
	var identity Identity
	if err := s.db.Where("user_id = ?", userID).First(&identity).Error; err != nil {
		return Identity{}, err
	}
	return identity, nil
}
