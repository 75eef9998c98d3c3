// Package sealed compresses and encrypts export bundles to age recipients.
//
// A bundle is zstd-compressed and then age-encrypted to every recipient, so
// any one holder of a matching identity can open it. Audit exports use this
// to leave the process without exposing log contents in transit or at rest.
package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// ErrNoRecipients is returned when Seal is called without any recipient.
var ErrNoRecipients = errors.New("at least one recipient is required")

// GenerateIdentity returns a new x25519 identity and its public recipient string.
func GenerateIdentity() (identity string, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// ParseRecipients validates age1... public keys.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, ErrNoRecipients
	}
	out := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		r, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Seal compresses plaintext and encrypts it to recipients.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	recipients, err := ParseRecipients(recipientKeys)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	ageWriter, err := age.Encrypt(&out, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	zw, err := zstd.NewWriter(ageWriter, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := zw.Write(plaintext); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compressing bundle: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing compression: %w", err)
	}
	if err := ageWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return out.Bytes(), nil
}

// Open reverses Seal with the given AGE-SECRET-KEY-1... identity.
func Open(bundle []byte, identity string) ([]byte, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	ageReader, err := age.Decrypt(bytes.NewReader(bundle), id)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	zr, err := zstd.NewReader(ageReader)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer zr.Close()

	plaintext, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing bundle: %w", err)
	}
	return plaintext, nil
}
