package clicks

import (
	"context"
	"errors"
	"fmt"

	"github.com/LZZLHY/start-sub000/internal/siteurl"
	"go.uber.org/zap"
)

var errInvalidLimit = errors.New("ranking limit must be positive")

// HeatRanking computes the globally top-limit sites by total clicks.
// Ordering is total clicks descending, then distinct users descending, then
// site id ascending so equal aggregates still rank deterministically. The
// aggregation runs in the store over the full ledger; an empty ledger yields
// an empty slice.
func (s *Service) HeatRanking(ctx context.Context, limit int) ([]HeatRankingItem, error) {
	if s.db == nil {
		return nil, newServiceError(opHeatRanking, "missing_database", errMissingDatabase)
	}
	if limit < 1 {
		return nil, newServiceError(opHeatRanking, "invalid_limit", fmt.Errorf("%w: %d", errInvalidLimit, limit))
	}

	type heatRow struct {
		SiteID       string
		GlobalClicks int64
		UniqueUsers  int64
	}

	var rows []heatRow
	if err := s.db.WithContext(ctx).
		Model(&ClickRecord{}).
		Select("site_id, SUM(click_count) AS global_clicks, COUNT(DISTINCT user_id) AS unique_users").
		Group("site_id").
		Order("global_clicks DESC, unique_users DESC, site_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		s.logError(opHeatRanking, "query_failed", err, zap.Int("limit", limit))
		return nil, newServiceError(opHeatRanking, "query_failed", err)
	}

	ranking := make([]HeatRankingItem, 0, len(rows))
	for _, row := range rows {
		ranking = append(ranking, HeatRankingItem{
			SiteID:       row.SiteID,
			SiteName:     siteurl.DisplayName(row.SiteID),
			GlobalClicks: row.GlobalClicks,
			UniqueUsers:  row.UniqueUsers,
		})
	}
	return ranking, nil
}
