package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/edvin/apmec/internal/model"
)

// Vault seals and opens VIM credential blobs with a fixed key.
type Vault struct {
	key []byte
}

func NewVault(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: expected %d-byte key, got %d", keySize, len(key))
	}
	return &Vault{key: key}, nil
}

// SealAuth encrypts a VIM auth block for storage.
func (v *Vault) SealAuth(auth model.VIMAuth) ([]byte, error) {
	raw, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("seal auth: %w", err)
	}
	sealed, err := Encrypt(raw, v.key)
	if err != nil {
		return nil, fmt.Errorf("seal auth: %w", err)
	}
	return []byte(sealed), nil
}

// OpenAuth decrypts a stored VIM auth block.
func (v *Vault) OpenAuth(sealed []byte) (model.VIMAuth, error) {
	var auth model.VIMAuth

	raw, err := Decrypt(string(sealed), v.key)
	if err != nil {
		return auth, fmt.Errorf("open auth: %w", err)
	}
	if err := json.Unmarshal(raw, &auth); err != nil {
		return auth, fmt.Errorf("open auth: %w", err)
	}
	return auth, nil
}
