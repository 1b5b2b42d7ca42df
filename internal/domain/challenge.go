package domain

import "time"

// Challenge is the single active OTP for a reservation. Only a keyed hash of the code is kept.
type Challenge struct {
	ReservationID     string    `json:"reservation_id"`
	CodeHash          string    `json:"-"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	// Exhausted marks a spent challenge kept only to report AttemptsExhausted
	Exhausted bool `json:"exhausted"`
}

// IsExpired reports whether now is at or past ExpiresAt
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// VerifyOutcome is the result of checking a code against a challenge
type VerifyOutcome string

const (
	VerifySuccess           VerifyOutcome = "success"
	VerifyMismatch          VerifyOutcome = "mismatch"
	VerifyExpired           VerifyOutcome = "expired"
	VerifyAttemptsExhausted VerifyOutcome = "attempts_exhausted"
	VerifyNotFound          VerifyOutcome = "not_found"
)

// VerifyResult carries the outcome and attempts left after a mismatch
type VerifyResult struct {
	Outcome           VerifyOutcome `json:"outcome"`
	AttemptsRemaining int           `json:"attempts_remaining"`
}

// Err maps a non-success outcome onto its sentinel error
func (r VerifyResult) Err() error {
	switch r.Outcome {
	case VerifySuccess:
		return nil
	case VerifyMismatch:
		return ErrOTPMismatch
	case VerifyExpired:
		return ErrChallengeExpired
	case VerifyAttemptsExhausted:
		return ErrAttemptsExhausted
	default:
		return ErrChallengeNotFound
	}
}

// ResetsTicket reports whether the outcome sends an otp_sent ticket back to pending
func (r VerifyResult) ResetsTicket() bool {
	switch r.Outcome {
	case VerifyExpired, VerifyAttemptsExhausted, VerifyNotFound:
		return true
	}
	return false
}
