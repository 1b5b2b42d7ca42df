package qrcode

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/signing"
)

const (
	// Prefix marks a version 1 ticket payload
	Prefix = "TKT1."

	payloadVersion = 1
	tagSize        = 16
	maxPayloadLen  = 1024
)

var (
	// ErrMalformed means the payload could not be parsed
	ErrMalformed = errors.New("malformed ticket payload")
	// ErrSignatureInvalid means the payload parsed but its tag does not verify
	ErrSignatureInvalid = errors.New("ticket signature invalid")
)

// DecodeError carries the decode failure class and the underlying cause
type DecodeError struct {
	Kind  error // ErrMalformed or ErrSignatureInvalid
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// Reason returns the scan reason string for the failure
func (e *DecodeError) Reason() string {
	if errors.Is(e.Kind, ErrSignatureInvalid) {
		return domain.ReasonSignatureInvalid
	}
	return domain.ReasonMalformed
}

func malformed(format string, args ...any) error {
	return &DecodeError{Kind: ErrMalformed, Cause: fmt.Errorf(format, args...)}
}

// TicketRef is what a verified payload identifies
type TicketRef struct {
	ID            string
	ReservationID string
	Type          domain.TicketType
	Signature     string
}

// wirePayload is the CBOR body; integer keys keep the QR code small
type wirePayload struct {
	Version       uint8  `cbor:"1,keyasint"`
	ID            string `cbor:"2,keyasint"`
	ReservationID string `cbor:"3,keyasint"`
	Type          string `cbor:"4,keyasint"`
	Tag           []byte `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("qrcode: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxMapPairs:       16,
		MaxArrayElements:  16,
	}.DecMode()
	if err != nil {
		panic("qrcode: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec encodes and verifies signed ticket payloads
type Codec struct {
	key signing.Key
}

// NewCodec derives the ticket signing key from secret
func NewCodec(secret string) (*Codec, error) {
	key, err := signing.DeriveKey(secret, signing.LabelTicket)
	if err != nil {
		return nil, err
	}
	return &Codec{key: key}, nil
}

func (c *Codec) tag(id, reservationID string, t domain.TicketType) []byte {
	sum := c.key.Sum(fmt.Sprint(payloadVersion), id, reservationID, string(t))
	return sum[:tagSize]
}

// Sign returns the hex signature stored on a ticket
func (c *Codec) Sign(id, reservationID string, t domain.TicketType) string {
	return hex.EncodeToString(c.tag(id, reservationID, t))
}

// Encode renders the QR payload for t
func (c *Codec) Encode(t *domain.Ticket) (string, error) {
	if t == nil || t.ID == "" || t.ReservationID == "" || !t.Type.IsValid() {
		return "", fmt.Errorf("encode ticket: %w", domain.ErrInvalidTicketID)
	}
	body, err := encMode.Marshal(wirePayload{
		Version:       payloadVersion,
		ID:            t.ID,
		ReservationID: t.ReservationID,
		Type:          string(t.Type),
		Tag:           c.tag(t.ID, t.ReservationID, t.Type),
	})
	if err != nil {
		return "", fmt.Errorf("encode ticket: %w", err)
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(body), nil
}

// Decode parses and verifies payload. Failures are *DecodeError.
func (c *Codec) Decode(payload string) (TicketRef, error) {
	payload = strings.TrimSpace(payload)
	if len(payload) > maxPayloadLen {
		return TicketRef{}, malformed("payload too long (%d bytes)", len(payload))
	}
	encoded, ok := strings.CutPrefix(payload, Prefix)
	if !ok {
		return TicketRef{}, malformed("missing %q prefix", Prefix)
	}
	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return TicketRef{}, malformed("base64: %v", err)
	}

	var p wirePayload
	if err := decMode.Unmarshal(body, &p); err != nil {
		return TicketRef{}, malformed("cbor: %v", err)
	}
	if p.Version != payloadVersion {
		return TicketRef{}, malformed("unsupported version %d", p.Version)
	}
	if p.ID == "" || p.ReservationID == "" {
		return TicketRef{}, malformed("missing ticket or reservation id")
	}
	tt := domain.TicketType(p.Type)
	if !tt.IsValid() {
		return TicketRef{}, malformed("unknown ticket type %q", p.Type)
	}
	if len(p.Tag) != tagSize {
		return TicketRef{}, malformed("tag length %d", len(p.Tag))
	}

	if !signing.Equal(p.Tag, c.tag(p.ID, p.ReservationID, tt)) {
		return TicketRef{}, &DecodeError{Kind: ErrSignatureInvalid}
	}

	return TicketRef{
		ID:            p.ID,
		ReservationID: p.ReservationID,
		Type:          tt,
		Signature:     hex.EncodeToString(p.Tag),
	}, nil
}
