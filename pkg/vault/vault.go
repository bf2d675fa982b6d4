// pkg/vault/vault.go

package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/crypto"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Service is the credential vault. Explicitly constructed and injected;
// holds the root material needed for on-demand key derivation but never a
// derived key beyond the duration of a single cipher call.
type Service struct {
	store RecordStore
	trail *audit.Trail
	ident identity.Provider

	namespace  string
	pepper     string
	rootSecret string
	iterations int

	Clock func() time.Time
}

// NewService wires the vault. rootSecret comes from ResolveRootSecret; the
// caller keeps sourcing concerns (env/file/Vault) out of this constructor.
func NewService(store RecordStore, trail *audit.Trail, ident identity.Provider,
	namespace, pepper, rootSecret string, iterations int) *Service {
	return &Service{
		store:      store,
		trail:      trail,
		ident:      ident,
		namespace:  namespace,
		pepper:     pepper,
		rootSecret: rootSecret,
		iterations: iterations,
		Clock:      func() time.Time { return time.Now().UTC() },
	}
}

// contextString binds a record's identity into key derivation and AAD.
func (s *Service) contextString(provider, scope string) string {
	return fmt.Sprintf("%s:%s:%s", s.namespace, provider, scope)
}

func (s *Service) actor(ctx context.Context) *identity.Actor {
	if s.ident == nil {
		return nil
	}
	actor, err := s.ident.Current(ctx)
	if err != nil {
		return nil
	}
	return actor
}

// seal derives the record key, encrypts, and wipes the key before returning.
func (s *Service) seal(provider, scope, plaintext string) (*crypto.SealedBox, error) {
	derivation := s.contextString(provider, scope)
	key, err := crypto.DeriveKey(s.rootSecret, s.pepper, derivation, s.iterations)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	return crypto.Seal([]byte(plaintext), key, []byte(derivation))
}

func (s *Service) open(provider, scope string, box *crypto.SealedBox) ([]byte, error) {
	derivation := s.contextString(provider, scope)
	key, err := crypto.DeriveKey(s.rootSecret, s.pepper, derivation, s.iterations)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	return crypto.Open(box, key, []byte(derivation))
}

// Store validates and encrypts a new credential. Fails if a non-deleted
// record already exists for (provider, scope); use Rotate for replacement.
func (s *Service) Store(ctx context.Context, provider, scope, secret string, metadata map[string]string) error {
	if err := ValidateFormat(provider, secret); err != nil {
		return err
	}

	exists, err := s.store.Exists(ctx, provider, scope)
	if err != nil {
		return aegis_err.WrapStorageError(err, "secret existence check")
	}
	if exists {
		return fmt.Errorf("credential already exists for %s/%s, use rotate", provider, scope)
	}

	box, err := s.seal(provider, scope, secret)
	if err != nil {
		return err
	}

	record := &SecretRecord{
		Provider:   provider,
		Scope:      scope,
		Ciphertext: box.Ciphertext,
		IV:         box.Nonce,
		Tag:        box.Tag,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		record.MetadataJSON = string(raw)
	}

	if err := s.store.Create(ctx, record); err != nil {
		return aegis_err.WrapStorageError(err, "secret create")
	}

	s.trail.KeyCreation(ctx, s.actor(ctx), provider, scope)
	otelzap.Ctx(ctx).Info("Credential stored",
		zap.String("provider", provider),
		zap.String("scope", scope))
	return nil
}

// Retrieve decrypts a stored credential. An authentication tag mismatch is
// audited at error severity and surfaced; it is never swallowed or retried,
// since tampering or corruption cannot succeed on retry.
func (s *Service) Retrieve(ctx context.Context, provider, scope string) (string, error) {
	record, err := s.store.Get(ctx, provider, scope)
	if errors.Is(err, ErrRecordNotFound) {
		return "", aegis_err.New(aegis_err.KindNotFound,
			fmt.Sprintf("no credential stored for %s/%s", provider, scope),
			"provider", provider, "scope", scope)
	}
	if err != nil {
		return "", aegis_err.WrapStorageError(err, "secret read")
	}

	plaintext, err := s.open(provider, scope, &crypto.SealedBox{
		Ciphertext: record.Ciphertext,
		Nonce:      record.IV,
		Tag:        record.Tag,
	})
	if err != nil {
		if aegis_err.IsDecryptionIntegrity(err) {
			s.trail.IntegrityFailure(ctx, s.actor(ctx), provider, scope)
			otelzap.Ctx(ctx).Error("Credential failed integrity check",
				zap.String("provider", provider),
				zap.String("scope", scope))
		}
		return "", err
	}

	s.trail.KeyAccess(ctx, s.actor(ctx), provider, scope)
	return string(plaintext), nil
}

// Rotate replaces the ciphertext for an existing record in a single row
// update; callers never observe a partial state. Missing records are an
// error, not an implicit create.
func (s *Service) Rotate(ctx context.Context, provider, scope, newSecret string) error {
	if err := ValidateFormat(provider, newSecret); err != nil {
		return err
	}

	record, err := s.store.Get(ctx, provider, scope)
	if errors.Is(err, ErrRecordNotFound) {
		return aegis_err.New(aegis_err.KindNotFound,
			fmt.Sprintf("cannot rotate: no credential stored for %s/%s", provider, scope),
			"provider", provider, "scope", scope)
	}
	if err != nil {
		return aegis_err.WrapStorageError(err, "secret read")
	}

	box, err := s.seal(provider, scope, newSecret)
	if err != nil {
		return err
	}

	now := s.Clock()
	record.Ciphertext = box.Ciphertext
	record.IV = box.Nonce
	record.Tag = box.Tag
	record.LastRotatedAt = &now

	if err := s.store.Update(ctx, record); err != nil {
		return aegis_err.WrapStorageError(err, "secret rotate")
	}

	s.trail.KeyRotation(ctx, s.actor(ctx), provider, scope)
	otelzap.Ctx(ctx).Info("Credential rotated",
		zap.String("provider", provider),
		zap.String("scope", scope))
	return nil
}

// Delete soft-deletes a record; a later Store for the pair starts fresh.
func (s *Service) Delete(ctx context.Context, provider, scope string) error {
	err := s.store.SoftDelete(ctx, provider, scope)
	if errors.Is(err, ErrRecordNotFound) {
		return aegis_err.New(aegis_err.KindNotFound,
			fmt.Sprintf("no credential stored for %s/%s", provider, scope),
			"provider", provider, "scope", scope)
	}
	if err != nil {
		return aegis_err.WrapStorageError(err, "secret delete")
	}

	s.trail.KeyDeletion(ctx, s.actor(ctx), provider, scope)
	return nil
}

// List returns metadata records only; plaintext is never part of a listing.
func (s *Service) List(ctx context.Context, scope string) ([]SecretInfo, error) {
	records, err := s.store.List(ctx, scope)
	if err != nil {
		return nil, aegis_err.WrapStorageError(err, "secret list")
	}

	infos := make([]SecretInfo, 0, len(records))
	for _, record := range records {
		info := SecretInfo{
			Provider:      record.Provider,
			Scope:         record.Scope,
			LastRotatedAt: record.LastRotatedAt,
			CreatedAt:     record.CreatedAt,
			UpdatedAt:     record.UpdatedAt,
		}
		if record.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(record.MetadataJSON), &info.Metadata)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Exists reports whether a non-deleted record is present.
func (s *Service) Exists(ctx context.Context, provider, scope string) (bool, error) {
	exists, err := s.store.Exists(ctx, provider, scope)
	if err != nil {
		return false, aegis_err.WrapStorageError(err, "secret existence check")
	}
	return exists, nil
}
