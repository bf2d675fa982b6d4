// Package usage persists per-request consumption rows for reporting and
// cost attribution. Quota enforcement lives in pkg/governor; this package
// only records what actually happened.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"gorm.io/gorm"
)

// Request completion statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusBlocked = "blocked"
)

// Record is one LLM request's consumption.
type Record struct {
	ID               uint      `gorm:"primaryKey"`
	ActorID          string    `gorm:"index;size:255"`
	ScopeID          string    `gorm:"index;size:255"`
	Provider         string    `gorm:"size:64"`
	Model            string    `gorm:"size:128"`
	PromptTokens     int       `gorm:""`
	CompletionTokens int       `gorm:""`
	TotalTokens      int       `gorm:""`
	EstimatedCost    float64   `gorm:""`
	DurationSeconds  float64   `gorm:""`
	Status           string    `gorm:"size:32"`
	ErrorMessage     string    `gorm:"size:1024"`
	CreatedAt        time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Record) TableName() string { return "usage" }

// Summary aggregates records for an actor over a period.
type Summary struct {
	Requests      int64
	TotalTokens   int64
	EstimatedCost float64
}

// Recorder persists usage rows.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
	Summarize(ctx context.Context, actorID string, since time.Time) (*Summary, error)
}

// GormRecorder writes to the usage table.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

func (r *GormRecorder) Record(ctx context.Context, rec *Record) error {
	rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return aegis_err.WrapStorageError(err, "usage record")
	}
	return nil
}

func (r *GormRecorder) Summarize(ctx context.Context, actorID string, since time.Time) (*Summary, error) {
	var out Summary
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(total_tokens),0) AS total_tokens, COALESCE(SUM(estimated_cost),0) AS estimated_cost").
		Where("actor_id = ? AND created_at >= ?", actorID, since).
		Scan(&out).Error
	if err != nil {
		return nil, aegis_err.WrapStorageError(err, "usage summary")
	}
	return &out, nil
}

// MemoryRecorder keeps rows in memory for development and tests.
type MemoryRecorder struct {
	mu   sync.Mutex
	rows []Record
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	rec.ID = uint(len(r.rows) + 1)
	r.rows = append(r.rows, *rec)
	return nil
}

func (r *MemoryRecorder) Summarize(ctx context.Context, actorID string, since time.Time) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out Summary
	for _, row := range r.rows {
		if row.ActorID != actorID || row.CreatedAt.Before(since) {
			continue
		}
		out.Requests++
		out.TotalTokens += int64(row.TotalTokens)
		out.EstimatedCost += row.EstimatedCost
	}
	return &out, nil
}

// Rows returns a copy of everything recorded, newest last.
func (r *MemoryRecorder) Rows() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.rows))
	copy(out, r.rows)
	return out
}
