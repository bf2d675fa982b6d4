// pkg/vault/providers.go

package vault

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aegis-security/aegis/pkg/aegis_err"
)

// providerPatterns capture known key-prefix conventions. Unrecognized
// providers fall back to the minimum-length heuristic below.
var providerPatterns = map[string]*regexp.Regexp{
	// Anthropic before openai matters nowhere (map), but anthropic keys also
	// start with sk-, so the anthropic pattern must stay more specific.
	"openai":    regexp.MustCompile(`^sk-[A-Za-z0-9_-]{20,}$`),
	"anthropic": regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]{20,}$`),
	"google":    regexp.MustCompile(`^AIza[A-Za-z0-9_-]{30,}$`),
	"azure":     regexp.MustCompile(`^[0-9a-fA-F]{32}$`),
	"mistral":   regexp.MustCompile(`^[A-Za-z0-9]{20,}$`),
	"groq":      regexp.MustCompile(`^gsk_[A-Za-z0-9]{20,}$`),
}

const fallbackMinLength = 16

// ValidateFormat checks plaintext against the provider's key convention
// before anything is encrypted or written. The error never includes the
// candidate value.
func ValidateFormat(provider, secret string) error {
	if strings.TrimSpace(secret) != secret || secret == "" {
		return aegis_err.New(aegis_err.KindInvalidCredentialFormat,
			"credential must be non-empty with no surrounding whitespace",
			"provider", provider)
	}

	if pattern, ok := providerPatterns[provider]; ok {
		if !pattern.MatchString(secret) {
			return aegis_err.New(aegis_err.KindInvalidCredentialFormat,
				fmt.Sprintf("credential does not match the %s key format", provider),
				"provider", provider)
		}
		return nil
	}

	// Unknown provider: minimum-length printable heuristic.
	if len(secret) < fallbackMinLength {
		return aegis_err.New(aegis_err.KindInvalidCredentialFormat,
			fmt.Sprintf("credential shorter than %d characters", fallbackMinLength),
			"provider", provider)
	}
	for _, r := range secret {
		if r < 0x21 || r > 0x7e {
			return aegis_err.New(aegis_err.KindInvalidCredentialFormat,
				"credential contains non-printable characters",
				"provider", provider)
		}
	}
	return nil
}
