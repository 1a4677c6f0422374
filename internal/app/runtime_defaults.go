package app

import (
	"fmt"
	"strings"

	"github.com/mwhitfield/ledgerline/pkg/crypto"
)

const (
	jwtSecretBytes       = 48
	bootstrapSecretBytes = 24

	// 24 random bytes base64url-encode to a 32 character secret feeding the
	// account number sealing key derivation.
	accountKeyBytes = 24
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no
// configuration file is supplied. It returns a map describing which keys were
// generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.Auth.Bootstrap.Password) == "" {
		secret, err := crypto.GenerateToken(bootstrapSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate bootstrap password: %w", err)
		}
		cfg.Auth.Bootstrap.Password = secret
		generated["auth.bootstrap.password"] = true
	}

	if strings.TrimSpace(cfg.Accounts.EncryptionKey) == "" {
		key, err := crypto.GenerateToken(accountKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("generate accounts encryption key: %w", err)
		}
		cfg.Accounts.EncryptionKey = key
		generated["accounts.encryption_key"] = true
	}

	return generated, nil
}
