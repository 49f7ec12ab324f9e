package clicks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
	errMissingSiteID   = errors.New("site identifier is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "clicks.service.new"
	opRecordClick    = "clicks.record_click"
	opUserStats      = "clicks.user_stats"
	opUserClickCount = "clicks.user_click_count"
	opGlobalStats    = "clicks.global_stats"
	opHeatRanking    = "clicks.heat_ranking"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the click ledger.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the click ledger: durable per-(user, site) counters and the
// aggregate reads derived from them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the click ledger service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// RecordClick increments the counter for the (user, site) pair, creating the
// row with a count of one on first sight. The write is a single upsert
// statement so concurrent calls for the same pair serialize at the store and
// no update is lost. The post-update record is returned.
func (s *Service) RecordClick(ctx context.Context, userID, siteID string) (ClickRecord, error) {
	if s.db == nil {
		return ClickRecord{}, newServiceError(opRecordClick, "missing_database", errMissingDatabase)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ClickRecord{}, newServiceError(opRecordClick, "missing_user_id", errMissingUserID)
	}
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return ClickRecord{}, newServiceError(opRecordClick, "missing_site_id", errMissingSiteID)
	}

	now := s.clock().UTC()
	record := ClickRecord{
		UserID:      userID,
		SiteID:      siteID,
		ClickCount:  1,
		LastClickAt: now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "site_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"click_count":   gorm.Expr("click_count + 1"),
				"last_click_at": now,
			}),
		}).
		Create(&record).Error
	if err != nil {
		s.logError(opRecordClick, "upsert_failed", err,
			zap.String("user_id", userID),
			zap.String("site_id", siteID))
		return ClickRecord{}, newServiceError(opRecordClick, "upsert_failed", err)
	}

	var stored ClickRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND site_id = ?", userID, siteID).
		Take(&stored).Error; err != nil {
		s.logError(opRecordClick, "reload_failed", err,
			zap.String("user_id", userID),
			zap.String("site_id", siteID))
		return ClickRecord{}, newServiceError(opRecordClick, "reload_failed", err)
	}
	return stored, nil
}

// UserStats returns every site the user has clicked, mapped to its count.
// Users without any clicks get an empty map, never an error.
func (s *Service) UserStats(ctx context.Context, userID string) (map[string]int64, error) {
	if s.db == nil {
		return nil, newServiceError(opUserStats, "missing_database", errMissingDatabase)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newServiceError(opUserStats, "missing_user_id", errMissingUserID)
	}

	var records []ClickRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&records).Error; err != nil {
		s.logError(opUserStats, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opUserStats, "query_failed", err)
	}

	stats := make(map[string]int64, len(records))
	for _, record := range records {
		stats[record.SiteID] = record.ClickCount
	}
	return stats, nil
}

// UserClickCount returns the stored count for the pair, zero when absent.
func (s *Service) UserClickCount(ctx context.Context, userID, siteID string) (int64, error) {
	if s.db == nil {
		return 0, newServiceError(opUserClickCount, "missing_database", errMissingDatabase)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, newServiceError(opUserClickCount, "missing_user_id", errMissingUserID)
	}
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return 0, newServiceError(opUserClickCount, "missing_site_id", errMissingSiteID)
	}

	var record ClickRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND site_id = ?", userID, siteID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		s.logError(opUserClickCount, "query_failed", err,
			zap.String("user_id", userID),
			zap.String("site_id", siteID))
		return 0, newServiceError(opUserClickCount, "query_failed", err)
	}
	return record.ClickCount, nil
}

// GlobalStats sums clicks and counts distinct users for one site. Sites
// without any records get zero values, never an error.
func (s *Service) GlobalStats(ctx context.Context, siteID string) (SiteStats, error) {
	if s.db == nil {
		return SiteStats{}, newServiceError(opGlobalStats, "missing_database", errMissingDatabase)
	}
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return SiteStats{}, newServiceError(opGlobalStats, "missing_site_id", errMissingSiteID)
	}

	var stats SiteStats
	if err := s.db.WithContext(ctx).
		Model(&ClickRecord{}).
		Select("COALESCE(SUM(click_count), 0) AS global_clicks, COUNT(DISTINCT user_id) AS unique_users").
		Where("site_id = ?", siteID).
		Scan(&stats).Error; err != nil {
		s.logError(opGlobalStats, "query_failed", err, zap.String("site_id", siteID))
		return SiteStats{}, newServiceError(opGlobalStats, "query_failed", err)
	}
	return stats, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("clicks service error", attrs...)
}
