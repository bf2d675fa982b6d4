// pkg/crypto/kdf.go

package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// MinKDFIterations is the floor for PBKDF2-SHA256 iteration counts.
// Iteration count guidance from:
// https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
const MinKDFIterations = 100000

// DeriveKey derives a 256-bit key from the root secret for one encryption
// context. The salt is SHA-256(pepper || context), so identical root material
// yields a different key for every (namespace, provider, scope) triple.
// Callers must Wipe the returned key as soon as the cipher call completes.
func DeriveKey(rootSecret, pepper, context string, iterations int) ([]byte, error) {
	if rootSecret == "" {
		return nil, fmt.Errorf("root secret cannot be empty")
	}
	if pepper == "" {
		return nil, fmt.Errorf("pepper cannot be empty")
	}
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf("kdf iterations %d below minimum %d", iterations, MinKDFIterations)
	}

	salt := sha256.Sum256([]byte(pepper + context))
	return pbkdf2.Key([]byte(rootSecret), salt[:], iterations, KeySize, sha256.New), nil
}

// Wipe overwrites key material in place. Overwriting rather than
// dereferencing keeps derived keys out of heap dumps taken after use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
