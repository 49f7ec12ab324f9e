package database

import (
	"errors"
	"time"

	"github.com/LZZLHY/start-sub000/internal/clicks"
	"github.com/LZZLHY/start-sub000/internal/siteurl"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationRenormalizeSiteIDs = "2026-07-21_renormalize_site_ids"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRenormalizeSiteIDs, apply: renormalizeSiteIDs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// renormalizeSiteIDs re-runs the current normalizer over stored site ids.
// Rows recorded before default-port elision collapse into their canonical
// identifier (click counts summed, latest click time kept); rows whose ids
// no longer normalize are dropped.
func renormalizeSiteIDs(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var records []clicks.ClickRecord
		if err := tx.Find(&records).Error; err != nil {
			return err
		}

		type pairKey struct {
			userID string
			siteID string
		}
		merged := make(map[pairKey]clicks.ClickRecord)
		stale := make([]clicks.ClickRecord, 0)

		for _, record := range records {
			canonical, err := siteurl.Normalize(record.SiteID)
			if err != nil {
				stale = append(stale, record)
				continue
			}
			if canonical == record.SiteID {
				continue
			}
			stale = append(stale, record)

			key := pairKey{userID: record.UserID, siteID: canonical}
			entry, ok := merged[key]
			if !ok {
				entry = clicks.ClickRecord{UserID: record.UserID, SiteID: canonical}
			}
			entry.ClickCount += record.ClickCount
			if record.LastClickAt.After(entry.LastClickAt) {
				entry.LastClickAt = record.LastClickAt
			}
			merged[key] = entry
		}

		for _, record := range stale {
			if err := tx.
				Where("user_id = ? AND site_id = ?", record.UserID, record.SiteID).
				Delete(&clicks.ClickRecord{}).Error; err != nil {
				return err
			}
		}

		for _, record := range merged {
			// The canonical row may already exist from clicks recorded
			// after the normalizer change.
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "site_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"click_count":   gorm.Expr("click_count + ?", record.ClickCount),
					"last_click_at": record.LastClickAt,
				}),
			}).Create(&record).Error; err != nil {
				return err
			}
		}

		return nil
	})
}
