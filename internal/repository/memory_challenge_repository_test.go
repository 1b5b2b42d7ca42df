package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
)

func newTestChallenge(reservationID string) *domain.Challenge {
	return &domain.Challenge{
		ReservationID:     reservationID,
		CodeHash:          "good-hash",
		IssuedAt:          testNow,
		ExpiresAt:         testNow.Add(5 * time.Minute),
		AttemptsRemaining: 3,
	}
}

func TestMemoryChallengeRepository_Verify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		hashes  []string
		at      time.Time
		want    []domain.VerifyResult
		wantGet error
	}{
		{
			name:    "correct code consumes challenge",
			hashes:  []string{"good-hash"},
			at:      testNow.Add(time.Minute),
			want:    []domain.VerifyResult{{Outcome: domain.VerifySuccess}},
			wantGet: domain.ErrChallengeNotFound,
		},
		{
			name:   "mismatch counts down",
			hashes: []string{"bad", "bad"},
			at:     testNow.Add(time.Minute),
			want: []domain.VerifyResult{
				{Outcome: domain.VerifyMismatch, AttemptsRemaining: 2},
				{Outcome: domain.VerifyMismatch, AttemptsRemaining: 1},
			},
		},
		{
			name:   "third failure exhausts and locks",
			hashes: []string{"bad", "bad", "bad", "good-hash"},
			at:     testNow.Add(time.Minute),
			want: []domain.VerifyResult{
				{Outcome: domain.VerifyMismatch, AttemptsRemaining: 2},
				{Outcome: domain.VerifyMismatch, AttemptsRemaining: 1},
				{Outcome: domain.VerifyAttemptsExhausted},
				{Outcome: domain.VerifyAttemptsExhausted},
			},
		},
		{
			name:    "expired even with correct code",
			hashes:  []string{"good-hash"},
			at:      testNow.Add(5 * time.Minute),
			want:    []domain.VerifyResult{{Outcome: domain.VerifyExpired}},
			wantGet: domain.ErrChallengeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryChallengeRepository(10 * time.Minute)
			require.NoError(t, repo.Save(ctx, newTestChallenge("r-1")))

			for i, h := range tt.hashes {
				got, err := repo.Verify(ctx, "r-1", h, tt.at)
				require.NoError(t, err)
				assert.Equal(t, tt.want[i], got, "attempt %d", i+1)
			}

			_, err := repo.Get(ctx, "r-1")
			if tt.wantGet != nil {
				assert.ErrorIs(t, err, tt.wantGet)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryChallengeRepository_ExhaustedThenExpires(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository(10 * time.Minute)
	require.NoError(t, repo.Save(ctx, newTestChallenge("r-1")))

	for i := 0; i < 3; i++ {
		_, err := repo.Verify(ctx, "r-1", "bad", testNow)
		require.NoError(t, err)
	}

	got, err := repo.Verify(ctx, "r-1", "good-hash", testNow.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyNotFound, got.Outcome)
}

func TestMemoryChallengeRepository_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository(time.Minute)
	require.NoError(t, repo.Save(ctx, newTestChallenge("r-1")))

	_, err := repo.Verify(ctx, "r-1", "bad", testNow)
	require.NoError(t, err)

	fresh := newTestChallenge("r-1")
	fresh.CodeHash = "new-hash"
	require.NoError(t, repo.Save(ctx, fresh))

	c, err := repo.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.AttemptsRemaining)

	got, err := repo.Verify(ctx, "r-1", "good-hash", testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyMismatch, got.Outcome)

	require.NoError(t, repo.Delete(ctx, "r-1"))
	require.NoError(t, repo.Delete(ctx, "r-1"))
	assert.ErrorIs(t, repo.Save(ctx, &domain.Challenge{}), domain.ErrInvalidReservationID)
}

func TestMemoryChallengeRepository_ConcurrentVerifySingleSuccess(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository(time.Minute)
	require.NoError(t, repo.Save(ctx, newTestChallenge("r-1")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.Verify(ctx, "r-1", "good-hash", testNow)
			assert.NoError(t, err)
			if got.Outcome == domain.VerifySuccess {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
