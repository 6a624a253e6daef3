package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("migrate audit events: %w", err)
	}
	return nil
}

// Append creates a new immutable audit event record.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Page is one page of events, newest first.
type Page struct {
	Events        []EventRecord
	NextPageToken string
	TotalSize     int
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// list runs a paginated query. pageToken is an RFC3339Nano timestamp;
// events with created_at < pageToken are returned.
func (s *Store) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, pageSize int, pageToken string) (Page, error) {
	pageSize = clampPageSize(pageSize)

	var totalSize int64
	if err := scope(s.db.WithContext(ctx).Model(&EventRecord{})).Count(&totalSize).Error; err != nil {
		return Page{}, fmt.Errorf("count audit events: %w", err)
	}

	query := scope(s.db.WithContext(ctx)).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return Page{}, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return Page{}, fmt.Errorf("list audit events: %w", err)
	}

	page := Page{TotalSize: int(totalSize)}
	if len(records) > pageSize {
		page.NextPageToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	page.Events = records
	return page, nil
}

// ListByEvaluation returns paginated events for one evaluation.
func (s *Store) ListByEvaluation(ctx context.Context, evaluationID int64, pageSize int, pageToken string) (Page, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("evaluation_id = ?", evaluationID)
	}, pageSize, pageToken)
}

// ListAll returns paginated events across all evaluations, optionally
// filtered by event type.
func (s *Store) ListAll(ctx context.Context, pageSize int, pageToken, eventType string) (Page, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		if eventType != "" {
			return db.Where("event_type = ?", eventType)
		}
		return db
	}, pageSize, pageToken)
}

// DeleteOlderThan deletes events created before cutoff, keeping those of the
// evaluations in keep. It returns the number of deleted events.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time, keep []int64) (int64, error) {
	q := s.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if len(keep) > 0 {
		q = q.Where("evaluation_id NOT IN ?", keep)
	}
	result := q.Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
