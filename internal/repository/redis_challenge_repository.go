package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	pkgredis "github.com/scriptify-cm/event-qr-platform/pkg/redis"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

const challengeKeyPrefix = "otp:challenge:"

// saveChallengeScript replaces the challenge hash and sets its eviction time.
// KEYS[1] = challenge key
// ARGV[1] = code hash, ARGV[2] = issued_at ms, ARGV[3] = expires_at ms,
// ARGV[4] = attempts, ARGV[5] = evict_at ms
const saveChallengeScript = `
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
	'code_hash', ARGV[1],
	'issued_at', ARGV[2],
	'expires_at', ARGV[3],
	'attempts', ARGV[4],
	'exhausted', '0')
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
return 1
`

// verifyChallengeScript checks a code and updates the challenge in one step.
// KEYS[1] = challenge key
// ARGV[1] = code hash, ARGV[2] = now ms
// Returns {outcome, attempts_remaining}
const verifyChallengeScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {'not_found', 0}
end

local now = tonumber(ARGV[2])
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))

if redis.call('HGET', KEYS[1], 'exhausted') == '1' then
	if now >= expires then
		redis.call('DEL', KEYS[1])
		return {'not_found', 0}
	end
	return {'attempts_exhausted', 0}
end

if now >= expires then
	redis.call('DEL', KEYS[1])
	return {'expired', 0}
end

if redis.call('HGET', KEYS[1], 'code_hash') == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return {'success', 0}
end

local remaining = redis.call('HINCRBY', KEYS[1], 'attempts', -1)
if remaining <= 0 then
	redis.call('HSET', KEYS[1], 'exhausted', '1', 'attempts', '0')
	return {'attempts_exhausted', 0}
end
return {'mismatch', remaining}
`

// RedisChallengeRepository implements ChallengeRepository with Lua scripts,
// so concurrent verifies against one reservation are serialized by Redis.
type RedisChallengeRepository struct {
	client    *pkgredis.Client
	retention time.Duration
}

// NewRedisChallengeRepository keeps spent challenges for retention past their expiry
func NewRedisChallengeRepository(client *pkgredis.Client, retention time.Duration) *RedisChallengeRepository {
	return &RedisChallengeRepository{client: client, retention: retention}
}

// LoadScripts preloads the Lua scripts so the first verify runs by SHA
func (r *RedisChallengeRepository) LoadScripts(ctx context.Context) error {
	if _, err := r.client.LoadScript(ctx, "challenge_save", saveChallengeScript); err != nil {
		return err
	}
	if _, err := r.client.LoadScript(ctx, "challenge_verify", verifyChallengeScript); err != nil {
		return err
	}
	return nil
}

func challengeKey(reservationID string) string {
	return challengeKeyPrefix + reservationID
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Save replaces any challenge stored for the reservation
func (r *RedisChallengeRepository) Save(ctx context.Context, challenge *domain.Challenge) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.challenge.save")
	defer span.End()

	if challenge == nil || challenge.ReservationID == "" {
		telemetry.Fail(span, domain.ErrInvalidReservationID, "missing reservation")
		return domain.ErrInvalidReservationID
	}
	span.SetAttributes(attribute.String("reservation_id", challenge.ReservationID))

	err := r.client.EvalWithFallback(ctx, "challenge_save", saveChallengeScript,
		[]string{challengeKey(challenge.ReservationID)},
		challenge.CodeHash,
		millis(challenge.IssuedAt),
		millis(challenge.ExpiresAt),
		strconv.Itoa(challenge.AttemptsRemaining),
		millis(challenge.ExpiresAt.Add(r.retention)),
	).Err()
	if err != nil {
		telemetry.Fail(span, err, "save failed")
		return fmt.Errorf("failed to save challenge: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Verify runs the verification script and maps its reply onto a VerifyResult
func (r *RedisChallengeRepository) Verify(ctx context.Context, reservationID, codeHash string, now time.Time) (domain.VerifyResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.challenge.verify")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	result, err := r.client.EvalWithFallback(ctx, "challenge_verify", verifyChallengeScript,
		[]string{challengeKey(reservationID)},
		codeHash,
		millis(now),
	).Slice()
	if err != nil {
		telemetry.Fail(span, err, "verify failed")
		return domain.VerifyResult{}, fmt.Errorf("failed to verify challenge: %w", err)
	}

	vr, err := parseVerifyReply(result)
	if err != nil {
		telemetry.Fail(span, err, "bad script reply")
		return domain.VerifyResult{}, err
	}

	span.SetAttributes(attribute.String("outcome", string(vr.Outcome)))
	span.SetStatus(codes.Ok, "")
	return vr, nil
}

func parseVerifyReply(reply []interface{}) (domain.VerifyResult, error) {
	if len(reply) != 2 {
		return domain.VerifyResult{}, fmt.Errorf("unexpected verify reply length %d", len(reply))
	}
	outcome, ok := reply[0].(string)
	if !ok {
		return domain.VerifyResult{}, fmt.Errorf("unexpected verify outcome type %T", reply[0])
	}
	remaining, ok := reply[1].(int64)
	if !ok {
		return domain.VerifyResult{}, fmt.Errorf("unexpected attempts type %T", reply[1])
	}

	vr := domain.VerifyResult{Outcome: domain.VerifyOutcome(outcome), AttemptsRemaining: int(remaining)}
	switch vr.Outcome {
	case domain.VerifySuccess, domain.VerifyMismatch, domain.VerifyExpired,
		domain.VerifyAttemptsExhausted, domain.VerifyNotFound:
		return vr, nil
	}
	return domain.VerifyResult{}, fmt.Errorf("unknown verify outcome %q", outcome)
}

// Get reads the stored challenge
func (r *RedisChallengeRepository) Get(ctx context.Context, reservationID string) (*domain.Challenge, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.challenge.get")
	defer span.End()

	fields, err := r.client.Client().HGetAll(ctx, challengeKey(reservationID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		telemetry.Fail(span, err, "get failed")
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if len(fields) == 0 {
		span.SetStatus(codes.Ok, "not found")
		return nil, domain.ErrChallengeNotFound
	}

	c := &domain.Challenge{
		ReservationID: reservationID,
		CodeHash:      fields["code_hash"],
		Exhausted:     fields["exhausted"] == "1",
	}
	issued, err1 := strconv.ParseInt(fields["issued_at"], 10, 64)
	expires, err2 := strconv.ParseInt(fields["expires_at"], 10, 64)
	attempts, err3 := strconv.Atoi(fields["attempts"])
	if err := errors.Join(err1, err2, err3); err != nil {
		telemetry.Fail(span, err, "corrupt challenge")
		return nil, fmt.Errorf("corrupt challenge %s: %w", reservationID, err)
	}
	c.IssuedAt = time.UnixMilli(issued).UTC()
	c.ExpiresAt = time.UnixMilli(expires).UTC()
	c.AttemptsRemaining = attempts

	span.SetStatus(codes.Ok, "")
	return c, nil
}

// Delete removes the challenge
func (r *RedisChallengeRepository) Delete(ctx context.Context, reservationID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.challenge.delete")
	defer span.End()

	if err := r.client.Del(ctx, challengeKey(reservationID)).Err(); err != nil {
		telemetry.Fail(span, err, "delete failed")
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
