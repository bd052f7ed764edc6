package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/domainauth/core"
	"github.com/layer-3/domainauth/ports"
	"github.com/redis/go-redis/v9"
)

const (
	fieldChallenge     = "challenge"
	fieldPendingDomain = "pending_domain"
	fieldDomain        = "domain"
	fieldCreatedAt     = "created_at"
	fieldExpiresAt     = "expires_at"
)

// setFieldsScript updates fields of an existing session hash only.
var setFieldsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// takeChallengeScript reads and clears the pending challenge in one step.
var takeChallengeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local v = redis.call('HMGET', KEYS[1], 'challenge', 'pending_domain')
redis.call('HDEL', KEYS[1], 'challenge', 'pending_domain')
return v
`)

// rotateScript drops the old session and creates the new one in one step.
var rotateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[2], 'created_at', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

// RedisStore is a Redis implementation of the SessionStore interface.
// Each session is a hash expiring together with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, ttl time.Duration) ports.SessionStore {
	return &RedisStore{
		client: client,
		prefix: "domainauth:session:",
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create starts a new session
func (s *RedisStore) Create(ctx context.Context) (*core.Session, error) {
	session := s.newSession()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := s.key(session.ID)
		pipe.HSet(ctx, key,
			fieldCreatedAt, session.CreatedAt.UnixNano(),
			fieldExpiresAt, session.ExpiresAt.UnixNano(),
		)
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, storeError("create session", err)
	}

	return session, nil
}

// Get retrieves a session by id
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Session, error) {
	values, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, storeError("get session", err)
	}
	if len(values) == 0 {
		return nil, core.ErrSessionNotFound
	}

	session := &core.Session{
		ID:            id,
		Challenge:     values[fieldChallenge],
		PendingDomain: values[fieldPendingDomain],
		Domain:        values[fieldDomain],
		CreatedAt:     parseUnixNano(values[fieldCreatedAt]),
		ExpiresAt:     parseUnixNano(values[fieldExpiresAt]),
	}
	if session.Expired(s.now()) {
		return nil, core.ErrSessionNotFound
	}

	return session, nil
}

// SetChallenge overwrites the pending challenge
func (s *RedisStore) SetChallenge(ctx context.Context, id, challenge, domain string) error {
	return s.setFields(ctx, id, fieldChallenge, challenge, fieldPendingDomain, domain)
}

// TakeChallenge returns and clears the pending challenge
func (s *RedisStore) TakeChallenge(ctx context.Context, id string) (string, string, error) {
	values, err := takeChallengeScript.Run(ctx, s.client, []string{s.key(id)}).Slice()
	if errors.Is(err, redis.Nil) {
		return "", "", core.ErrSessionNotFound
	}
	if err != nil {
		return "", "", storeError("take challenge", err)
	}
	if len(values) != 2 {
		return "", "", fmt.Errorf("take challenge: unexpected reply: %w", core.ErrStoreOperationFailed)
	}

	challenge, _ := values[0].(string)
	domain, _ := values[1].(string)
	return challenge, domain, nil
}

// Rotate replaces the session with a fresh one under a new id
func (s *RedisStore) Rotate(ctx context.Context, id string) (*core.Session, error) {
	session := s.newSession()

	n, err := rotateScript.Run(ctx, s.client,
		[]string{s.key(id), s.key(session.ID)},
		session.CreatedAt.UnixNano(),
		session.ExpiresAt.UnixNano(),
		s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return nil, storeError("rotate session", err)
	}
	if n == 0 {
		return nil, core.ErrSessionNotFound
	}

	return session, nil
}

// SetDomain marks the session authenticated
func (s *RedisStore) SetDomain(ctx context.Context, id, domain string) error {
	return s.setFields(ctx, id, fieldDomain, domain)
}

// Destroy removes the session
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return storeError("destroy session", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (s *RedisStore) setFields(ctx context.Context, id string, fieldValues ...interface{}) error {
	n, err := setFieldsScript.Run(ctx, s.client, []string{s.key(id)}, fieldValues...).Int()
	if err != nil {
		return storeError("update session", err)
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) newSession() *core.Session {
	now := s.now()
	return &core.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreOperationFailed, err)
}

func parseUnixNano(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
