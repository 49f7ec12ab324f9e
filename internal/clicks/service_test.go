package clicks

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRecordClickCreatesThenIncrements(t *testing.T) {
	service, _ := newTestService(t)

	first, err := service.RecordClick(context.Background(), "user-1", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ClickCount != 1 {
		t.Fatalf("expected initial count 1, got %d", first.ClickCount)
	}
	if first.LastClickAt.IsZero() {
		t.Fatalf("expected last click timestamp to be set")
	}

	second, err := service.RecordClick(context.Background(), "user-1", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ClickCount != 2 {
		t.Fatalf("expected count 2 after second click, got %d", second.ClickCount)
	}

	var rowCount int64
	if err := service.db.Model(&ClickRecord{}).Count(&rowCount).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected a single row per pair, got %d", rowCount)
	}
}

func TestRecordClickKeepsPairsIndependent(t *testing.T) {
	service, _ := newTestService(t)

	mustRecordClicks(t, service, "user-1", "https://example.com", 3)
	mustRecordClicks(t, service, "user-2", "https://example.com", 1)
	mustRecordClicks(t, service, "user-1", "https://other.example", 2)

	count, err := service.UserClickCount(context.Background(), "user-1", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 clicks, got %d", count)
	}

	count, err = service.UserClickCount(context.Background(), "user-2", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 click, got %d", count)
	}
}

func TestRecordClickConcurrentCallsLoseNoUpdates(t *testing.T) {
	service, _ := newTestService(t)
	const clickers = 24

	var waitGroup sync.WaitGroup
	errs := make(chan error, clickers)
	for i := 0; i < clickers; i++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, err := service.RecordClick(context.Background(), "user-1", "https://example.com"); err != nil {
				errs <- err
			}
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent click failed: %v", err)
	}

	count, err := service.UserClickCount(context.Background(), "user-1", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != clickers {
		t.Fatalf("expected %d clicks after concurrent increments, got %d", clickers, count)
	}
}

func TestRecordClickValidation(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.RecordClick(context.Background(), "", "https://example.com"); err == nil {
		t.Fatalf("expected missing user id to be rejected")
	}
	if _, err := service.RecordClick(context.Background(), "user-1", "   "); err == nil {
		t.Fatalf("expected missing site id to be rejected")
	}

	var serviceErr *ServiceError
	_, err := service.RecordClick(context.Background(), "", "https://example.com")
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if serviceErr.Code() != "clicks.record_click.missing_user_id" {
		t.Fatalf("unexpected error code: %s", serviceErr.Code())
	}
}

func TestUserStatsReturnsAllSitesForUser(t *testing.T) {
	service, _ := newTestService(t)

	mustRecordClicks(t, service, "user-1", "https://a.example", 5)
	mustRecordClicks(t, service, "user-1", "https://b.example", 2)
	mustRecordClicks(t, service, "user-2", "https://a.example", 7)

	stats, err := service.UserStats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(stats))
	}
	if stats["https://a.example"] != 5 || stats["https://b.example"] != 2 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestUserStatsEmptyForUnknownUser(t *testing.T) {
	service, _ := newTestService(t)

	stats, err := service.UserStats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected empty stats, got %#v", stats)
	}
}

func TestUserClickCountZeroWhenAbsent(t *testing.T) {
	service, _ := newTestService(t)

	count, err := service.UserClickCount(context.Background(), "user-1", "https://never-clicked.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero count, got %d", count)
	}
}

func TestGlobalStatsAggregatesAcrossUsers(t *testing.T) {
	service, _ := newTestService(t)

	mustRecordClicks(t, service, "user-1", "https://a.example", 5)
	mustRecordClicks(t, service, "user-2", "https://a.example", 3)
	mustRecordClicks(t, service, "user-3", "https://a.example", 2)
	mustRecordClicks(t, service, "user-1", "https://b.example", 7)

	stats, err := service.GlobalStats(context.Background(), "https://a.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.GlobalClicks != 10 {
		t.Fatalf("expected 10 global clicks, got %d", stats.GlobalClicks)
	}
	if stats.UniqueUsers != 3 {
		t.Fatalf("expected 3 unique users, got %d", stats.UniqueUsers)
	}
}

func TestGlobalStatsZeroForUnknownSite(t *testing.T) {
	service, _ := newTestService(t)

	stats, err := service.GlobalStats(context.Background(), "https://unknown.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.GlobalClicks != 0 || stats.UniqueUsers != 0 {
		t.Fatalf("expected zero stats, got %#v", stats)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	if err == nil {
		t.Fatalf("expected missing database error")
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if serviceErr.Code() != "clicks.service.new.missing_database" {
		t.Fatalf("unexpected error code: %s", serviceErr.Code())
	}
}
