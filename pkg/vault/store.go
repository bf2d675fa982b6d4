// pkg/vault/store.go

package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrRecordNotFound is the store-level sentinel; the service maps it to the
// typed not-found error.
var ErrRecordNotFound = errors.New("secret record not found")

// RecordStore is the durable table behind the vault. Update replaces the
// whole row in one statement so rotation is atomic from the caller's view.
type RecordStore interface {
	Get(ctx context.Context, provider, scope string) (*SecretRecord, error)
	Create(ctx context.Context, record *SecretRecord) error
	Update(ctx context.Context, record *SecretRecord) error
	SoftDelete(ctx context.Context, provider, scope string) error
	List(ctx context.Context, scope string) ([]SecretRecord, error)
	Exists(ctx context.Context, provider, scope string) (bool, error)
}

// ───────────────────────── GORM store ─────────────────────────

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SecretRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, provider, scope string) (*SecretRecord, error) {
	var record SecretRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND scope = ? AND deleted = ?", provider, scope, false).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) Create(ctx context.Context, record *SecretRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormStore) Update(ctx context.Context, record *SecretRecord) error {
	// Single-row update keyed by primary key; concurrent rotations are
	// last-write-wins per the row-level isolation the store provides.
	return s.db.WithContext(ctx).Save(record).Error
}

func (s *GormStore) SoftDelete(ctx context.Context, provider, scope string) error {
	res := s.db.WithContext(ctx).Model(&SecretRecord{}).
		Where("provider = ? AND scope = ? AND deleted = ?", provider, scope, false).
		Update("deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, scope string) ([]SecretRecord, error) {
	q := s.db.WithContext(ctx).Where("deleted = ?", false)
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	var records []SecretRecord
	err := q.Order("provider, scope").Find(&records).Error
	return records, err
}

func (s *GormStore) Exists(ctx context.Context, provider, scope string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&SecretRecord{}).
		Where("provider = ? AND scope = ? AND deleted = ?", provider, scope, false).
		Count(&count).Error
	return count > 0, err
}

// ───────────────────────── In-memory store ─────────────────────────

// MemoryStore backs the vault in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*SecretRecord
	nextID  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*SecretRecord), nextID: 1}
}

func key(provider, scope string) string { return provider + "\x00" + scope }

func (s *MemoryStore) Get(ctx context.Context, provider, scope string) (*SecretRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key(provider, scope)]
	if !ok || record.Deleted {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) Create(ctx context.Context, record *SecretRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(record.Provider, record.Scope)
	if existing, ok := s.records[k]; ok && !existing.Deleted {
		return errors.New("duplicate secret record")
	}
	record.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	clone := *record
	s.records[k] = &clone
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, record *SecretRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(record.Provider, record.Scope)
	if existing, ok := s.records[k]; !ok || existing.Deleted {
		return ErrRecordNotFound
	}
	record.UpdatedAt = time.Now().UTC()
	clone := *record
	s.records[k] = &clone
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, provider, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key(provider, scope)]
	if !ok || record.Deleted {
		return ErrRecordNotFound
	}
	record.Deleted = true
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, scope string) ([]SecretRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SecretRecord
	for _, record := range s.records {
		if record.Deleted {
			continue
		}
		if scope != "" && record.Scope != scope {
			continue
		}
		out = append(out, *record)
	}
	return out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, provider, scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key(provider, scope)]
	return ok && !record.Deleted, nil
}
