package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/internal/repository"
	"github.com/scriptify-cm/event-qr-platform/internal/signing"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

// OTPService issues and verifies one-time codes bound to a reservation
type OTPService interface {
	// Issue replaces any prior challenge and returns the new one with its plain code
	Issue(ctx context.Context, reservationID string) (*domain.Challenge, string, error)

	// Verify checks code against the active challenge
	Verify(ctx context.Context, reservationID, code string) (domain.VerifyResult, error)

	// Discard drops the challenge, e.g. when the ticket leaves the OTP flow
	Discard(ctx context.Context, reservationID string) error
}

// OTPConfig contains configuration for the OTP service
type OTPConfig struct {
	Secret      string
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// Now overrides the clock in tests
	Now func() time.Time
}

type otpService struct {
	challenges  repository.ChallengeRepository
	key         signing.Key
	length      int
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewOTPService creates a new OTP service
func NewOTPService(challenges repository.ChallengeRepository, cfg *OTPConfig) (OTPService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("otp config is required")
	}
	key, err := signing.DeriveKey(cfg.Secret, signing.LabelOTP)
	if err != nil {
		return nil, err
	}

	s := &otpService{
		challenges:  challenges,
		key:         key,
		length:      6,
		ttl:         5 * time.Minute,
		maxAttempts: 3,
		now:         time.Now,
	}
	if cfg.Length > 0 {
		s.length = cfg.Length
	}
	if cfg.TTL > 0 {
		s.ttl = cfg.TTL
	}
	if cfg.MaxAttempts > 0 {
		s.maxAttempts = cfg.MaxAttempts
	}
	if cfg.Now != nil {
		s.now = cfg.Now
	}
	if s.length > 18 {
		return nil, fmt.Errorf("otp length %d exceeds 18 digits", s.length)
	}
	return s, nil
}

// generateCode draws a uniform numeric code of n digits from crypto/rand
func generateCode(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

// hashCode binds the code to its reservation so stored hashes are not reusable across reservations
func (s *otpService) hashCode(reservationID, code string) string {
	sum := s.key.Sum(reservationID, code)
	return hex.EncodeToString(sum[:])
}

func (s *otpService) validCode(code string) bool {
	if len(code) != s.length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *otpService) Issue(ctx context.Context, reservationID string) (*domain.Challenge, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.otp.issue")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	if strings.TrimSpace(reservationID) == "" {
		telemetry.Fail(span, domain.ErrInvalidReservationID, "missing reservation")
		return nil, "", domain.ErrInvalidReservationID
	}

	code, err := generateCode(s.length)
	if err != nil {
		telemetry.Fail(span, err, "code generation failed")
		return nil, "", err
	}

	now := s.now().UTC()
	challenge := &domain.Challenge{
		ReservationID:     reservationID,
		CodeHash:          s.hashCode(reservationID, code),
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.ttl),
		AttemptsRemaining: s.maxAttempts,
	}
	if err := s.challenges.Save(ctx, challenge); err != nil {
		telemetry.Fail(span, err, "save failed")
		return nil, "", err
	}

	metrics.OTPIssuedTotal.Inc()
	span.SetStatus(codes.Ok, "")
	return challenge, code, nil
}

func (s *otpService) Verify(ctx context.Context, reservationID, code string) (domain.VerifyResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.otp.verify")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	code = strings.TrimSpace(code)
	if !s.validCode(code) {
		telemetry.Fail(span, domain.ErrInvalidOTPCode, "bad code format")
		return domain.VerifyResult{}, domain.ErrInvalidOTPCode
	}

	result, err := s.challenges.Verify(ctx, reservationID, s.hashCode(reservationID, code), s.now().UTC())
	if err != nil {
		telemetry.Fail(span, err, "verify failed")
		return domain.VerifyResult{}, err
	}

	metrics.OTPVerificationsTotal.WithLabelValues(string(result.Outcome)).Inc()
	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.Int("attempts_remaining", result.AttemptsRemaining),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *otpService) Discard(ctx context.Context, reservationID string) error {
	return s.challenges.Delete(ctx, reservationID)
}
