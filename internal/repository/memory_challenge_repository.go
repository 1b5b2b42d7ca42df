package repository

import (
	"context"
	"sync"
	"time"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/signing"
)

// MemoryChallengeRepository is an in-process ChallengeRepository.
// A single mutex makes every Verify a read-modify-write with no interleaving.
type MemoryChallengeRepository struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
	retention  time.Duration
}

// NewMemoryChallengeRepository keeps spent challenges for retention past their expiry
func NewMemoryChallengeRepository(retention time.Duration) *MemoryChallengeRepository {
	return &MemoryChallengeRepository{
		challenges: make(map[string]*domain.Challenge),
		retention:  retention,
	}
}

func (r *MemoryChallengeRepository) Save(ctx context.Context, challenge *domain.Challenge) error {
	if challenge == nil || challenge.ReservationID == "" {
		return domain.ErrInvalidReservationID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(challenge.IssuedAt)
	c := *challenge
	r.challenges[c.ReservationID] = &c
	return nil
}

// pruneLocked drops challenges that a TTL store would already have evicted
func (r *MemoryChallengeRepository) pruneLocked(now time.Time) {
	for id, c := range r.challenges {
		if now.After(c.ExpiresAt.Add(r.retention)) {
			delete(r.challenges, id)
		}
	}
}

func (r *MemoryChallengeRepository) Verify(ctx context.Context, reservationID, codeHash string, now time.Time) (domain.VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[reservationID]
	if !ok {
		return domain.VerifyResult{Outcome: domain.VerifyNotFound}, nil
	}

	if c.Exhausted {
		if c.IsExpired(now) {
			delete(r.challenges, reservationID)
			return domain.VerifyResult{Outcome: domain.VerifyNotFound}, nil
		}
		return domain.VerifyResult{Outcome: domain.VerifyAttemptsExhausted}, nil
	}

	if c.IsExpired(now) {
		delete(r.challenges, reservationID)
		return domain.VerifyResult{Outcome: domain.VerifyExpired}, nil
	}

	if signing.Equal([]byte(c.CodeHash), []byte(codeHash)) {
		delete(r.challenges, reservationID)
		return domain.VerifyResult{Outcome: domain.VerifySuccess}, nil
	}

	c.AttemptsRemaining--
	if c.AttemptsRemaining <= 0 {
		c.AttemptsRemaining = 0
		c.Exhausted = true
		return domain.VerifyResult{Outcome: domain.VerifyAttemptsExhausted}, nil
	}
	return domain.VerifyResult{Outcome: domain.VerifyMismatch, AttemptsRemaining: c.AttemptsRemaining}, nil
}

func (r *MemoryChallengeRepository) Get(ctx context.Context, reservationID string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[reservationID]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	out := *c
	return &out, nil
}

func (r *MemoryChallengeRepository) Delete(ctx context.Context, reservationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, reservationID)
	return nil
}
