// pkg/aegis_err/kinds.go
//
// Typed error taxonomy for the credential and content-safety layer.
// Callers branch on Kind via the Is* helpers instead of string matching.

package aegis_err

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies errors surfaced by this layer.
type Kind int

const (
	// KindInvalidCredentialFormat - plaintext failed provider format checks
	KindInvalidCredentialFormat Kind = iota
	// KindNotFound - no matching record (secret, quota policy, ...)
	KindNotFound
	// KindDecryptionIntegrity - AEAD tag mismatch: tampering, wrong key, or corruption
	KindDecryptionIntegrity
	// KindAccessDenied - permission check failed on a require-style call
	KindAccessDenied
	// KindQuotaExceeded - usage counter at or over its limit
	KindQuotaExceeded
	// KindPromptBlocked - prompt guard refused the input
	KindPromptBlocked
	// KindConfigurationValidation - options or model parameters out of range
	KindConfigurationValidation
	// KindStorageUnavailable - durable store or counter store unreachable
	KindStorageUnavailable
)

// String returns the stable wire name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidCredentialFormat:
		return "invalid_credential_format"
	case KindNotFound:
		return "not_found"
	case KindDecryptionIntegrity:
		return "decryption_integrity"
	case KindAccessDenied:
		return "access_denied"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindPromptBlocked:
		return "prompt_blocked"
	case KindConfigurationValidation:
		return "configuration_validation"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its Kind and structured detail so the
// presentation layer can translate it without re-deriving anything.
type ClassifiedError struct {
	Kind    Kind
	Message string
	Cause   error
	Detail  map[string]string
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// New creates a ClassifiedError with optional key/value detail pairs.
func New(kind Kind, message string, kv ...string) error {
	e := &ClassifiedError{Kind: kind, Message: message}
	if len(kv) > 0 {
		e.Detail = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Detail[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Wrap creates a ClassifiedError around a cause.
func Wrap(kind Kind, cause error, message string) error {
	return &ClassifiedError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from any error chain; ok is false for
// unclassified errors.
func KindOf(err error) (Kind, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

func is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsInvalidCredentialFormat(err error) bool { return is(err, KindInvalidCredentialFormat) }
func IsNotFound(err error) bool                { return is(err, KindNotFound) }
func IsDecryptionIntegrity(err error) bool     { return is(err, KindDecryptionIntegrity) }
func IsAccessDenied(err error) bool            { return is(err, KindAccessDenied) }
func IsQuotaExceeded(err error) bool           { return is(err, KindQuotaExceeded) }
func IsPromptBlocked(err error) bool           { return is(err, KindPromptBlocked) }
func IsConfigurationValidation(err error) bool { return is(err, KindConfigurationValidation) }
func IsStorageUnavailable(err error) bool      { return is(err, KindStorageUnavailable) }
