package symbol

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
)

// ErrInvalidKey is returned for malformed private or public keys.
var ErrInvalidKey = errors.New("invalid key")

// KeyPair is an ed25519 signing identity.
type KeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// NewKeyPair builds a key pair from a 64-character hex private key (the 32-byte seed).
func NewKeyPair(privateKeyHex string) (*KeyPair, error) {
	seed, err := decodeHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not hex", ErrInvalidKey)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)
	if err := ValidatePublicKey(public); err != nil {
		return nil, err
	}
	return &KeyPair{private: private, public: public}, nil
}

// PublicKey returns the 32-byte public key.
func (k *KeyPair) PublicKey() ed25519.PublicKey { return k.public }

// PublicKeyHex returns the public key as uppercase hex.
func (k *KeyPair) PublicKeyHex() string {
	return strings.ToUpper(hex.EncodeToString(k.public))
}

// Sign signs message with the private key.
func (k *KeyPair) Sign(message []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// ValidatePublicKey checks that pub is 32 bytes and a point on the curve.
func ValidatePublicKey(pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, ed25519.PublicKeySize, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return fmt.Errorf("%w: public key not on curve", ErrInvalidKey)
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
