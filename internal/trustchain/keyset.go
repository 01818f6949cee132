package trustchain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// KeySet maps key ids to ed25519 public keys.
type KeySet map[string]ed25519.PublicKey

// ParseKeySet decodes a JSON object of kid -> base64 ed25519 public key.
func ParseKeySet(raw string) (KeySet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return KeySet{}, nil
	}

	var encoded map[string]string
	if err := json.Unmarshal([]byte(raw), &encoded); err != nil {
		return nil, fmt.Errorf("parse key set: %w", err)
	}

	keys := make(KeySet, len(encoded))
	for kid, value := range encoded {
		key, err := decodePublicKey(value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", kid, err)
		}
		keys[kid] = key
	}
	return keys, nil
}

// Lookup returns the key for kid, if present.
func (ks KeySet) Lookup(kid string) (ed25519.PublicKey, bool) {
	key, ok := ks[kid]
	return key, ok
}

func decodePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// EncodePublicKey renders a key for embedding in certificates and config.
func EncodePublicKey(key ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(key)
}
