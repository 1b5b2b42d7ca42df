package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/retry"
)

// OTPDispatch is the message an SMS gateway consumes
type OTPDispatch struct {
	ReservationID string    `json:"reservation_id"`
	TicketID      string    `json:"ticket_id"`
	Phone         string    `json:"phone"`
	Code          string    `json:"code"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// OTPSender delivers a freshly issued code to the ticket holder
type OTPSender interface {
	Send(ctx context.Context, d *OTPDispatch) error
}

// KafkaOTPSender writes dispatches to the OTP topic, retrying with backoff
type KafkaOTPSender struct {
	producer MessageProducer
	topic    string
	retrier  *retry.Retrier
}

// NewKafkaOTPSender creates a sender; a nil retry config uses retry.DefaultConfig
func NewKafkaOTPSender(producer MessageProducer, topic string, cfg *retry.Config) *KafkaOTPSender {
	if topic == "" {
		topic = "otp-dispatch"
	}
	return &KafkaOTPSender{
		producer: producer,
		topic:    topic,
		retrier:  retry.New(cfg),
	}
}

// Send publishes d keyed by reservation
func (s *KafkaOTPSender) Send(ctx context.Context, d *OTPDispatch) error {
	headers := map[string]string{
		"reservation_id": d.ReservationID,
		"content_type":   "application/json",
	}

	result := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.producer.ProduceJSON(ctx, s.topic, d.ReservationID, d, headers)
	}, func(attempt int, err error, next time.Duration) {
		logger.Get().WarnContext(ctx, "otp dispatch failed, retrying",
			zap.String("reservation_id", d.ReservationID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
	if result.Err != nil {
		cause := result.LastError
		if cause == nil {
			cause = result.Err
		} else if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(cause, ctxErr) {
			cause = fmt.Errorf("%w: %w", ctxErr, cause)
		}
		metrics.PublishFailuresTotal.WithLabelValues(s.topic).Inc()
		return fmt.Errorf("%w after %d attempts: %w", domain.ErrOTPDeliveryFailed, result.Attempts, cause)
	}
	return nil
}

// LogOTPSender writes codes to the log. Development only.
type LogOTPSender struct {
	log *logger.Logger
}

// NewLogOTPSender creates a log-only sender
func NewLogOTPSender(log *logger.Logger) *LogOTPSender {
	if log == nil {
		log = logger.Get()
	}
	return &LogOTPSender{log: log}
}

// Send logs the dispatch with the phone masked
func (s *LogOTPSender) Send(ctx context.Context, d *OTPDispatch) error {
	s.log.InfoContext(ctx, "otp issued",
		zap.String("reservation_id", d.ReservationID),
		zap.String("phone", maskPhone(d.Phone)),
		zap.String("code", d.Code),
		zap.Time("expires_at", d.ExpiresAt),
	)
	return nil
}

// maskPhone keeps only the last four digits
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-4 && phone[i] != '+' {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
