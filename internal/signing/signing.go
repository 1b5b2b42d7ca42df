// Package signing derives purpose-bound keys from the service secret and
// computes keyed BLAKE3 tags over ordered string fields.
package signing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// Labels bind a derived key to a single use
const (
	LabelTicket = "ticket-gate/v1/ticket-signature"
	LabelOTP    = "ticket-gate/v1/otp-code"
)

// ErrEmptySecret is returned when no secret material is configured
var ErrEmptySecret = errors.New("signing secret is empty")

// Key is a 32-byte BLAKE3 key
type Key [32]byte

// DeriveKey expands secret into a key bound to label with HKDF-SHA256
func DeriveKey(secret, label string) (Key, error) {
	var k Key
	if secret == "" {
		return k, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(label))
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, fmt.Errorf("derive %s key: %w", label, err)
	}
	return k, nil
}

// Sum returns the keyed BLAKE3 hash of fields. Each field is length-prefixed
// so ("ab","c") and ("a","bc") never collide.
func (k Key) Sum(fields ...string) [32]byte {
	// NewKeyed only fails for keys that are not 32 bytes
	h, err := blake3.NewKeyed(k[:])
	if err != nil {
		panic("signing: " + err.Error())
	}
	var lenBuf [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(f))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Equal compares two tags in constant time
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
