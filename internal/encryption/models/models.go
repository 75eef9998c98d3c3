package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	AlgorithmAES256GCM = "aes-256-gcm"
	// AlgorithmNone marks pass-through envelopes written without a master key.
	AlgorithmNone = "none"

	GlobalContext = "global"
)

// ContextFor returns the key context of a user, or the global context when
// userID is empty.
func ContextFor(userID string) string {
	if userID == "" {
		return GlobalContext
	}
	return "user_" + userID
}

type KeyStatus string

const (
	KeyActive     KeyStatus = "active"
	KeyRotating   KeyStatus = "rotating"
	KeyDeprecated KeyStatus = "deprecated"
	KeyRevoked    KeyStatus = "revoked"
)

// CanDecrypt reports whether data sealed under a key in this status may
// still be opened. Only revocation stops decryption.
func (s KeyStatus) CanDecrypt() bool {
	return s == KeyActive || s == KeyRotating || s == KeyDeprecated
}

// KeyMetadata describes a derived key. The key material itself is never
// stored; KeyHash pins the derivation to the master key that produced it.
type KeyMetadata struct {
	ID         string
	ContextID  string
	Algorithm  string
	CreatedAt  time.Time
	RotatedAt  time.Time
	ReplacedBy string
	Status     KeyStatus
	UsageCount int64
	LastUsedAt time.Time
	KeyHash    string
}

func (k *KeyMetadata) Clone() *KeyMetadata {
	if k == nil {
		return nil
	}
	cp := *k
	return &cp
}

// EncryptedData is the envelope produced by encryption. Binary fields are
// base64 encoded.
type EncryptedData struct {
	Data      string    `json:"data"`
	IV        string    `json:"iv,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	KeyID     string    `json:"keyId,omitempty"`
	Algorithm string    `json:"algorithm"`
	Timestamp time.Time `json:"timestamp"`
}

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Encode returns the wire form: base64 of the JSON envelope.
func (e *EncryptedData) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ParseEnvelope reads the wire form produced by Encode.
func ParseEnvelope(s string) (*EncryptedData, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var e EncryptedData
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate checks that the fields required by the algorithm are present.
func (e *EncryptedData) Validate() error {
	switch e.Algorithm {
	case AlgorithmNone:
		return nil
	case AlgorithmAES256GCM:
		// Data is empty for an empty plaintext.
		if e.IV == "" || e.Tag == "" || e.KeyID == "" {
			return fmt.Errorf("%w: missing field", ErrMalformedEnvelope)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrMalformedEnvelope, e.Algorithm)
	}
}

type Stats struct {
	CachedKeys      int               `json:"cachedKeys"`
	TotalKeys       int               `json:"totalKeys"`
	KeysByStatus    map[KeyStatus]int `json:"keysByStatus"`
	Algorithm       string            `json:"algorithm"`
	KeyRotationDays int               `json:"keyRotationDays"`
	Degraded        bool              `json:"degraded"`
}
