// Package vault stores provider API keys with authenticated encryption at
// rest. Keys are derived per record from a root secret and pepper, the
// record identity is bound into the ciphertext as AAD, and derived key
// material is wiped after every cipher call.
package vault

import (
	"time"
)

// SecretRecord mirrors the secrets table: one row per (provider, scope),
// unique among non-deleted rows. Plaintext never appears in this struct.
type SecretRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Provider      string `gorm:"uniqueIndex:idx_secrets_identity"`
	Scope         string `gorm:"uniqueIndex:idx_secrets_identity"`
	Ciphertext    []byte
	IV            []byte `gorm:"column:iv"`
	Tag           []byte
	MetadataJSON  string `gorm:"column:metadata_json"`
	LastRotatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Deleted       bool `gorm:"uniqueIndex:idx_secrets_identity"`
}

// TableName pins the table name expected by the host schema.
func (SecretRecord) TableName() string { return "secrets" }

// SecretInfo is the listing view of a record: metadata only, no ciphertext
// and certainly no plaintext.
type SecretInfo struct {
	Provider      string
	Scope         string
	Metadata      map[string]string
	LastRotatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
