package repository

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	pkgredis "github.com/scriptify-cm/event-qr-platform/pkg/redis"
)

func newMockChallengeRepo() (*RedisChallengeRepository, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisChallengeRepository(pkgredis.Wrap(db), 10*time.Minute), mock
}

func TestRedisChallengeRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockChallengeRepo()
	c := newTestChallenge("r-1")

	mock.ExpectScriptLoad(saveChallengeScript).SetVal("save-sha")
	mock.ExpectEvalSha("save-sha", []string{"otp:challenge:r-1"},
		"good-hash",
		strconv.FormatInt(testNow.UnixMilli(), 10),
		strconv.FormatInt(testNow.Add(5*time.Minute).UnixMilli(), 10),
		"3",
		strconv.FormatInt(testNow.Add(15*time.Minute).UnixMilli(), 10),
	).SetVal(int64(1))

	require.NoError(t, repo.Save(ctx, c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisChallengeRepository_Verify(t *testing.T) {
	ctx := context.Background()
	now := testNow.Add(time.Minute)

	tests := []struct {
		name    string
		reply   []interface{}
		want    domain.VerifyResult
		wantErr bool
	}{
		{"success", []interface{}{"success", int64(0)}, domain.VerifyResult{Outcome: domain.VerifySuccess}, false},
		{"mismatch", []interface{}{"mismatch", int64(2)}, domain.VerifyResult{Outcome: domain.VerifyMismatch, AttemptsRemaining: 2}, false},
		{"exhausted", []interface{}{"attempts_exhausted", int64(0)}, domain.VerifyResult{Outcome: domain.VerifyAttemptsExhausted}, false},
		{"expired", []interface{}{"expired", int64(0)}, domain.VerifyResult{Outcome: domain.VerifyExpired}, false},
		{"not found", []interface{}{"not_found", int64(0)}, domain.VerifyResult{Outcome: domain.VerifyNotFound}, false},
		{"garbage", []interface{}{"maybe", int64(0)}, domain.VerifyResult{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockChallengeRepo()
			mock.ExpectScriptLoad(verifyChallengeScript).SetVal("verify-sha")
			mock.ExpectEvalSha("verify-sha", []string{"otp:challenge:r-1"},
				"candidate-hash", strconv.FormatInt(now.UnixMilli(), 10),
			).SetVal(tt.reply)

			got, err := repo.Verify(ctx, "r-1", "candidate-hash", now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisChallengeRepository_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockChallengeRepo()

	mock.ExpectHGetAll("otp:challenge:r-1").SetVal(map[string]string{
		"code_hash":  "good-hash",
		"issued_at":  strconv.FormatInt(testNow.UnixMilli(), 10),
		"expires_at": strconv.FormatInt(testNow.Add(5*time.Minute).UnixMilli(), 10),
		"attempts":   "2",
		"exhausted":  "0",
	})
	mock.ExpectHGetAll("otp:challenge:r-2").SetVal(map[string]string{})
	mock.ExpectDel("otp:challenge:r-1").SetVal(1)

	c, err := repo.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.AttemptsRemaining)
	assert.Equal(t, testNow.Add(5*time.Minute), c.ExpiresAt)
	assert.False(t, c.Exhausted)

	_, err = repo.Get(ctx, "r-2")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)

	require.NoError(t, repo.Delete(ctx, "r-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisChallengeRepository_LoadScripts(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockChallengeRepo()

	mock.ExpectScriptLoad(saveChallengeScript).SetVal("save-sha")
	mock.ExpectScriptLoad(verifyChallengeScript).SetVal("verify-sha")

	require.NoError(t, repo.LoadScripts(ctx))
	sha, ok := repo.client.GetScriptSHA("challenge_verify")
	assert.True(t, ok)
	assert.Equal(t, "verify-sha", sha)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- integration ---

func getRedisClient(t *testing.T) *pkgredis.Client {
	skipIfNoIntegration(t)

	cfg := pkgredis.DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}

	client, err := pkgredis.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisChallengeRepository_Integration_Scripts(t *testing.T) {
	client := getRedisClient(t)
	repo := NewRedisChallengeRepository(client, 10*time.Minute)
	ctx := context.Background()
	require.NoError(t, repo.LoadScripts(ctx))

	// PEXPIREAT runs on the server clock, so these challenges live in real time
	now := time.Now().UTC().Truncate(time.Millisecond)
	expiresAt := now.Add(5 * time.Minute)

	save := func(t *testing.T, hash string) string {
		t.Helper()
		id := "test-" + uuid.NewString()
		require.NoError(t, repo.Save(ctx, &domain.Challenge{
			ReservationID:     id,
			CodeHash:          hash,
			IssuedAt:          now,
			ExpiresAt:         expiresAt,
			AttemptsRemaining: 3,
		}))
		t.Cleanup(func() { _ = repo.Delete(ctx, id) })
		return id
	}

	verify := func(t *testing.T, id, hash string, at time.Time) domain.VerifyResult {
		t.Helper()
		vr, err := repo.Verify(ctx, id, hash, at)
		require.NoError(t, err)
		return vr
	}

	t.Run("save round trips and sets eviction", func(t *testing.T) {
		id := save(t, "good-hash")

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "good-hash", got.CodeHash)
		assert.Equal(t, now, got.IssuedAt)
		assert.Equal(t, expiresAt, got.ExpiresAt)
		assert.Equal(t, 3, got.AttemptsRemaining)
		assert.False(t, got.Exhausted)

		ttl, err := client.Client().PTTL(ctx, challengeKey(id)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 5*time.Minute)
		assert.LessOrEqual(t, ttl, 15*time.Minute)
	})

	t.Run("wrong codes decrement then exhaust", func(t *testing.T) {
		id := save(t, "good-hash")

		assert.Equal(t, domain.VerifyResult{Outcome: domain.VerifyMismatch, AttemptsRemaining: 2}, verify(t, id, "bad", now))
		assert.Equal(t, domain.VerifyResult{Outcome: domain.VerifyMismatch, AttemptsRemaining: 1}, verify(t, id, "bad", now))
		assert.Equal(t, domain.VerifyAttemptsExhausted, verify(t, id, "bad", now).Outcome)

		// the right code no longer helps
		assert.Equal(t, domain.VerifyAttemptsExhausted, verify(t, id, "good-hash", now).Outcome)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Exhausted)
		assert.Equal(t, 0, got.AttemptsRemaining)

		// once expiresAt passes an exhausted challenge reads as gone
		assert.Equal(t, domain.VerifyNotFound, verify(t, id, "good-hash", expiresAt).Outcome)
		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	})

	t.Run("expiry beats a correct code", func(t *testing.T) {
		id := save(t, "good-hash")

		assert.Equal(t, domain.VerifyExpired, verify(t, id, "good-hash", expiresAt).Outcome)
		assert.Equal(t, domain.VerifyNotFound, verify(t, id, "good-hash", expiresAt).Outcome)
	})

	t.Run("success is single use", func(t *testing.T) {
		id := save(t, "good-hash")

		assert.Equal(t, domain.VerifySuccess, verify(t, id, "good-hash", now.Add(time.Minute)).Outcome)
		assert.Equal(t, domain.VerifyNotFound, verify(t, id, "good-hash", now.Add(time.Minute)).Outcome)
		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	})

	t.Run("save replaces a spent challenge", func(t *testing.T) {
		id := save(t, "old-hash")
		for i := 0; i < 3; i++ {
			verify(t, id, "bad", now)
		}

		require.NoError(t, repo.Save(ctx, &domain.Challenge{
			ReservationID:     id,
			CodeHash:          "new-hash",
			IssuedAt:          now,
			ExpiresAt:         expiresAt,
			AttemptsRemaining: 3,
		}))

		assert.Equal(t, domain.VerifyMismatch, verify(t, id, "old-hash", now).Outcome)
		assert.Equal(t, domain.VerifySuccess, verify(t, id, "new-hash", now).Outcome)
	})

	t.Run("concurrent wrong codes never overspend", func(t *testing.T) {
		id := save(t, "good-hash")

		results := make(chan domain.VerifyOutcome, 10)
		for i := 0; i < cap(results); i++ {
			go func() {
				vr, err := repo.Verify(ctx, id, "bad", now)
				if err != nil {
					results <- ""
					return
				}
				results <- vr.Outcome
			}()
		}

		counts := map[domain.VerifyOutcome]int{}
		for i := 0; i < cap(results); i++ {
			counts[<-results]++
		}
		assert.Equal(t, 2, counts[domain.VerifyMismatch])
		assert.Equal(t, 8, counts[domain.VerifyAttemptsExhausted])
	})
}
