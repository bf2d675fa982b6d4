// pkg/vault/rootsecret.go

package vault

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// recommendedRootSecretLength per the operator guidance: the root secret
// should carry at least 96 characters of entropy.
const recommendedRootSecretLength = 96

// ResolveRootSecret loads the root secret from its configured source:
//
//	env:VAR                 process environment variable
//	file:/path              file contents, trailing whitespace trimmed
//	vault:mount/path#field  HashiCorp Vault KV v2, client from VAULT_* env
func ResolveRootSecret(ctx context.Context, source string) (string, error) {
	var secret string

	switch {
	case strings.HasPrefix(source, "env:"):
		name := strings.TrimPrefix(source, "env:")
		secret = os.Getenv(name)
		if secret == "" {
			return "", fmt.Errorf("root secret environment variable %s is empty", name)
		}

	case strings.HasPrefix(source, "file:"):
		path := strings.TrimPrefix(source, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read root secret file: %w", err)
		}
		secret = strings.TrimRight(string(data), "\r\n")
		if secret == "" {
			return "", fmt.Errorf("root secret file is empty")
		}

	case strings.HasPrefix(source, "vault:"):
		var err error
		secret, err = resolveFromVault(ctx, strings.TrimPrefix(source, "vault:"))
		if err != nil {
			return "", err
		}

	default:
		return "", fmt.Errorf("unsupported root secret source scheme")
	}

	if len(secret) < recommendedRootSecretLength {
		otelzap.Ctx(ctx).Warn("Root secret shorter than recommended",
			zap.Int("length", len(secret)),
			zap.Int("recommended", recommendedRootSecretLength))
	}
	return secret, nil
}

// resolveFromVault fetches "mount/path#field" from a HashiCorp Vault KV v2
// engine. Address and token come from the standard VAULT_* environment.
func resolveFromVault(ctx context.Context, ref string) (string, error) {
	mountAndPath, field, ok := strings.Cut(ref, "#")
	if !ok {
		field = "value"
		mountAndPath = ref
	}
	mount, path, ok := strings.Cut(mountAndPath, "/")
	if !ok {
		return "", fmt.Errorf("vault root secret reference must be mount/path#field")
	}

	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to create Vault client: %w", err)
	}

	kv, err := client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read root secret from Vault: %w", err)
	}
	if kv == nil || kv.Data == nil {
		return "", fmt.Errorf("root secret not found in Vault")
	}
	value, ok := kv.Data[field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("root secret field %q missing or empty", field)
	}
	return value, nil
}
