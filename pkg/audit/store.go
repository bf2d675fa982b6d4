// pkg/audit/store.go

package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Store is the durable sink behind the trail. Append is the only write path;
// AnonymizeBefore and PurgeBefore exist solely for the retention routines.
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
	AnonymizeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ───────────────────────── GORM store ─────────────────────────

// GormStore persists events through a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the audit_events table and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, event *Event) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *GormStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	q := s.db.WithContext(ctx).Model(&Event{})
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at < ?", filter.Until)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var events []Event
	err := q.Order("created_at DESC").Find(&events).Error
	return events, err
}

func (s *GormStore) AnonymizeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	// Single UPDATE over the not-yet-anonymized rows keeps concurrent runs
	// operating on disjoint sets.
	res := s.db.WithContext(ctx).Model(&Event{}).
		Where("created_at < ? AND anonymized = ?", cutoff, false).
		Updates(map[string]interface{}{
			"actor_id":       "",
			"actor_name":     "",
			"source_address": "",
			"user_agent":     "",
			"anonymized":     true,
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Event{})
	return res.RowsAffected, res.Error
}

// ───────────────────────── In-memory store ─────────────────────────

// MemoryStore keeps events in process memory. Development and test fallback
// for when no database is configured; same contract as GormStore.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	e.ID = s.nextID
	s.nextID++
	s.events = append(s.events, e)
	event.ID = e.ID
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Event
	for _, e := range s.events {
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !e.CreatedAt.Before(filter.Until) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) AnonymizeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for i := range s.events {
		e := &s.events[i]
		if e.Anonymized || !e.CreatedAt.Before(cutoff) {
			continue
		}
		e.ActorID = ""
		e.ActorName = ""
		e.SourceAddress = ""
		e.UserAgent = ""
		e.Anonymized = true
		count++
	}
	return count, nil
}

func (s *MemoryStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var count int64
	for _, e := range s.events {
		if e.CreatedAt.Before(cutoff) {
			count++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return count, nil
}
