// pkg/aegis_err/wrap.go

package aegis_err

import (
	cerr "github.com/cockroachdb/errors"
)

// WrapStorageError marks a storage failure with a stack and operator hint.
func WrapStorageError(err error, op string) error {
	return Wrap(KindStorageUnavailable,
		cerr.WithHint(cerr.WithStack(err), "check the durable store connection"),
		"storage operation failed: "+op)
}

// WrapValidationError marks a configuration validation failure.
func WrapValidationError(err error) error {
	return Wrap(KindConfigurationValidation,
		cerr.WithHint(cerr.WithStack(err), "validation failed"),
		"configuration validation failed")
}
