// Package keys loads and stores the ed25519 key material used to sign
// contract-call messages and privileged configuration updates.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Keypair wraps an ed25519 private key together with its derived public key.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Generate creates a fresh ed25519 key pair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

// Parse decodes key material given as hex or base64. Accepted lengths are a
// 32-byte seed or a full 64-byte private key.
func Parse(material string) (*Keypair, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, fmt.Errorf("key material cannot be empty")
	}

	raw, err := hex.DecodeString(material)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(material)
		if err != nil {
			return nil, fmt.Errorf("key material is neither valid hex nor base64")
		}
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("invalid key length %d: expected %d-byte seed or %d-byte private key",
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	return &Keypair{
		Private: priv,
		Public:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// LoadFromFile reads key material from a file.
func LoadFromFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
	}

	kp, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from %s: %w", path, err)
	}
	return kp, nil
}

// LoadFromEnv reads key material from an environment variable.
func LoadFromEnv(envVar string) (*Keypair, error) {
	material := os.Getenv(envVar)
	if material == "" {
		return nil, fmt.Errorf("environment variable %s is not set or empty", envVar)
	}

	kp, err := Parse(material)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from %s: %w", envVar, err)
	}
	return kp, nil
}

// SaveToFile writes the private key to a file in hex with 0600 permissions.
func (k *Keypair) SaveToFile(path string) error {
	if path == "" {
		return fmt.Errorf("key file path cannot be empty")
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(k.Private)), 0o600); err != nil {
		return fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	return nil
}

// Sign produces a detached ed25519 signature over digest.
func (k *Keypair) Sign(digest []byte) []byte {
	return ed25519.Sign(k.Private, digest)
}

// PublicHex returns the public key in hex.
func (k *Keypair) PublicHex() string {
	return hex.EncodeToString(k.Public)
}

// PrivateHex returns the full private key in hex.
func (k *Keypair) PrivateHex() string {
	return hex.EncodeToString(k.Private)
}
