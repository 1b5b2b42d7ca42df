package domain

import "time"

// ScanResult classifies a scanned ticket for the gate operator
type ScanResult string

const (
	ScanReadyForEntry ScanResult = "ready_for_entry"
	ScanAlreadyUsed   ScanResult = "already_used"
	ScanNotValid      ScanResult = "not_valid"
	ScanInvalid       ScanResult = "invalid"
	ScanTimeout       ScanResult = "timeout"
)

// Reasons reported with ScanInvalid and ScanNotValid
const (
	ReasonMalformed        = "malformed"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonUnknownTicket    = "unknown_ticket"
	ReasonCancelled        = "cancelled"
	ReasonRejected         = "rejected"
	ReasonExpired          = "expired"
)

// ScanOutcome is the read-only answer to a scan
type ScanOutcome struct {
	Result      ScanResult `json:"result"`
	Reason      string     `json:"reason,omitempty"`
	Ticket      *Ticket    `json:"ticket,omitempty"`
	OTPRequired bool       `json:"otp_required,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	ValidatedBy string     `json:"validated_by,omitempty"`
}
