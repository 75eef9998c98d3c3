// Package chain computes the hash links and signatures of audit records.
//
// The hash input is a CBOR document in Core Deterministic Encoding
// (RFC 8949 §4.2), so the same record always produces the same bytes
// regardless of field order or platform.
package chain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const (
	AlgorithmSHA256 = "sha256"
	AlgorithmBLAKE3 = "blake3"
)

// ErrUnknownAlgorithm is returned for hash algorithms other than sha256 and blake3.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

const genesisSeed = "GENESIS"

// Link is the subset of a record covered by its hash.
type Link struct {
	Timestamp    time.Time
	EventType    string
	Action       string
	UserID       string
	Result       string
	PreviousHash string
	ChainIndex   int64
}

type linkDoc struct {
	TimestampMicros int64  `cbor:"ts"`
	EventType       string `cbor:"eventType"`
	Action          string `cbor:"action"`
	UserID          string `cbor:"userId"`
	Result          string `cbor:"result"`
	PreviousHash    string `cbor:"previousHash"`
	ChainIndex      int64  `cbor:"chainIndex"`
}

// Hasher produces hex digests of links.
type Hasher struct {
	algorithm string
	newHash   func() hash.Hash
	enc       cbor.EncMode
}

func NewHasher(algorithm string) (*Hasher, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case AlgorithmSHA256, "":
		algorithm = AlgorithmSHA256
		newHash = sha256.New
	case AlgorithmBLAKE3:
		newHash = func() hash.Hash { return blake3.New() }
	default:
		return nil, fmt.Errorf("%q: %w", algorithm, ErrUnknownAlgorithm)
	}
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &Hasher{algorithm: algorithm, newHash: newHash, enc: enc}, nil
}

func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Genesis is the PreviousHash of the record at index 0.
func (h *Hasher) Genesis() string {
	return h.sum([]byte(genesisSeed))
}

// Hash returns the digest of l. Timestamps are hashed at microsecond
// precision, which every store preserves.
func (h *Hasher) Hash(l Link) (string, error) {
	b, err := h.enc.Marshal(linkDoc{
		TimestampMicros: l.Timestamp.UnixMicro(),
		EventType:       l.EventType,
		Action:          l.Action,
		UserID:          l.UserID,
		Result:          l.Result,
		PreviousHash:    l.PreviousHash,
		ChainIndex:      l.ChainIndex,
	})
	if err != nil {
		return "", fmt.Errorf("encode link: %w", err)
	}
	return h.sum(b), nil
}

func (h *Hasher) sum(b []byte) string {
	d := h.newHash()
	d.Write(b)
	return hex.EncodeToString(d.Sum(nil))
}

// Signer authenticates record hashes with HMAC-SHA256.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is empty")
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(recordHash string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(recordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (s *Signer) Verify(recordHash, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(recordHash))
	return hmac.Equal(mac.Sum(nil), want)
}
