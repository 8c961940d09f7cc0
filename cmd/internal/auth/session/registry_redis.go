package session

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"tekauth/cmd/security/token"

	"github.com/redis/go-redis/v9"
)

// Hash fields of a session record.
const (
	fieldHash      = "hashedToken"
	fieldUserID    = "userId"
	fieldCreatedAt = "createdAt"
	fieldUserAgent = "userAgent"
	fieldIP        = "ip"
)

var errEmptyKey = errors.New("session: empty user id or token id")

// consumeScript deletes a session only while its stored hash still equals the
// presented one, and leaves a tombstone pointing at the successor.
//
// KEYS[1] record, KEYS[2] user index, KEYS[3] tombstone
// ARGV[1] expected hash, ARGV[2] old token id, ARGV[3] new token id
//
// Returns 1 when consumed, 0 when the record is gone, -1 on hash mismatch.
var consumeScript = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'hashedToken')
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return -1
end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[2])
if ttl > 0 then
  redis.call('SET', KEYS[3], ARGV[3], 'PX', ttl)
end
return 1
`)

// revokeAllScript deletes every indexed session of a user and the index in
// one step, so a session created concurrently is either revoked here or
// indexed after it.
//
// KEYS[1] user index
// ARGV[1] session key prefix for the user ("session:{u}:")
//
// Returns the number of records deleted.
var revokeAllScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, id in ipairs(members) do
  n = n + redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1])
return n
`)

// RedisOptions tunes a RedisRegistry.
type RedisOptions struct {
	// KeyPrefix is prepended to every key. Empty keeps the bare layout
	// session:{u}:{t}, sessions:{u}, rotated:{u}:{t}.
	KeyPrefix string

	// OpTimeout bounds every call. Zero relies on the caller's context only.
	OpTimeout time.Duration

	// Now overrides the clock used for CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// RedisRegistry implements Registry on Redis.
//
// Layout:
//   - session:{userId}:{tokenId}  hash, TTL = refresh token lifetime
//   - sessions:{userId}           set of token ids, may hold stale members
//   - rotated:{userId}:{tokenId}  successor token id, TTL = old record's remainder
type RedisRegistry struct {
	rdb    redis.UniversalClient
	hasher token.Hasher

	prefix    string
	opTimeout time.Duration
	now       func() time.Time
}

// NewRedisRegistry returns a Registry backed by rdb. The client is owned by
// the caller.
func NewRedisRegistry(rdb redis.UniversalClient, hasher token.Hasher, opts RedisOptions) *RedisRegistry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisRegistry{
		rdb:       rdb,
		hasher:    hasher,
		prefix:    opts.KeyPrefix,
		opTimeout: opts.OpTimeout,
		now:       now,
	}
}

func (r *RedisRegistry) sessionKey(userID, tokenID string) string {
	return r.prefix + "session:" + userID + ":" + tokenID
}

func (r *RedisRegistry) indexKey(userID string) string {
	return r.prefix + "sessions:" + userID
}

func (r *RedisRegistry) tombstoneKey(userID, tokenID string) string {
	return r.prefix + "rotated:" + userID + ":" + tokenID
}

func (r *RedisRegistry) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// Create implements Registry.
func (r *RedisRegistry) Create(ctx context.Context, userID, tokenID, refreshToken string, meta Metadata, ttl time.Duration) (Record, error) {
	if userID == "" || tokenID == "" {
		return Record{}, errEmptyKey
	}
	if ttl <= 0 {
		return Record{}, errors.New("session: non-positive ttl")
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	rec := r.newRecord(userID, tokenID, refreshToken, meta)
	if _, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.queueCreate(ctx, p, rec, ttl)
		return nil
	}); err != nil {
		return Record{}, storeUnavailable("create", err)
	}
	return rec, nil
}

func (r *RedisRegistry) newRecord(userID, tokenID, refreshToken string, meta Metadata) Record {
	meta = meta.normalized()
	return Record{
		UserID:    userID,
		TokenID:   tokenID,
		TokenHash: r.hasher.Hash(refreshToken),
		CreatedAt: r.now().UTC().Truncate(time.Millisecond),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	}
}

func (r *RedisRegistry) queueCreate(ctx context.Context, p redis.Pipeliner, rec Record, ttl time.Duration) {
	key := r.sessionKey(rec.UserID, rec.TokenID)
	idx := r.indexKey(rec.UserID)

	p.Del(ctx, key)
	p.HSet(ctx, key,
		fieldHash, rec.TokenHash,
		fieldUserID, rec.UserID,
		fieldCreatedAt, strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
		fieldUserAgent, rec.UserAgent,
		fieldIP, rec.IP,
	)
	p.PExpire(ctx, key, ttl)
	p.SAdd(ctx, idx, rec.TokenID)
	// The newest session carries the longest lifetime, so the index follows it.
	p.PExpire(ctx, idx, ttl)
}

// Validate implements Registry.
func (r *RedisRegistry) Validate(ctx context.Context, userID, tokenID, presented string) (Record, error) {
	if userID == "" || tokenID == "" {
		return Record{}, &SessionError{Reason: ReasonNotFound}
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	fields, err := r.rdb.HGetAll(ctx, r.sessionKey(userID, tokenID)).Result()
	if err != nil {
		return Record{}, storeUnavailable("validate", err)
	}

	if len(fields) == 0 {
		n, err := r.rdb.Exists(ctx, r.tombstoneKey(userID, tokenID)).Result()
		if err != nil {
			return Record{}, storeUnavailable("validate", err)
		}
		if n == 0 {
			return Record{}, &SessionError{Reason: ReasonNotFound}
		}
		return Record{}, r.revokeOnAbuse(ctx, userID, ReasonReuse)
	}

	rec := recordFromHash(userID, tokenID, fields)
	if !r.hasher.Matches(presented, rec.TokenHash) {
		return Record{}, r.revokeOnAbuse(ctx, userID, ReasonHashMismatch)
	}
	return rec, nil
}

// revokeOnAbuse revokes every session of the user and reports why.
func (r *RedisRegistry) revokeOnAbuse(ctx context.Context, userID, reason string) error {
	n, err := r.revokeAll(ctx, userID)
	if err != nil {
		return err
	}
	return &SessionError{Reason: reason, Revoked: n}
}

// Rotate implements Registry.
func (r *RedisRegistry) Rotate(ctx context.Context, userID, oldTokenID, presented string, next Replacement) (Record, error) {
	if userID == "" || oldTokenID == "" || next.TokenID == "" {
		return Record{}, errEmptyKey
	}
	if next.TTL <= 0 {
		return Record{}, errors.New("session: non-positive ttl")
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	res, err := consumeScript.Run(ctx, r.rdb,
		[]string{
			r.sessionKey(userID, oldTokenID),
			r.indexKey(userID),
			r.tombstoneKey(userID, oldTokenID),
		},
		r.hasher.Hash(presented), oldTokenID, next.TokenID,
	).Int()
	if err != nil {
		return Record{}, storeUnavailable("rotate", err)
	}

	switch res {
	case 1:
	case 0:
		// Another rotation of the same token won the race.
		return Record{}, &SessionError{Reason: ReasonNotFound}
	default:
		return Record{}, r.revokeOnAbuse(ctx, userID, ReasonHashMismatch)
	}

	rec := r.newRecord(userID, next.TokenID, next.RefreshToken, next.Meta)
	if _, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.queueCreate(ctx, p, rec, next.TTL)
		return nil
	}); err != nil {
		// The old session is already gone; the client has to log in again.
		return Record{}, storeUnavailable("rotate.create", err)
	}
	return rec, nil
}

// Revoke implements Registry.
func (r *RedisRegistry) Revoke(ctx context.Context, userID, tokenID string) error {
	if userID == "" || tokenID == "" {
		return nil
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	if _, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.sessionKey(userID, tokenID))
		p.SRem(ctx, r.indexKey(userID), tokenID)
		return nil
	}); err != nil {
		return storeUnavailable("revoke", err)
	}
	return nil
}

// RevokeAll implements Registry.
func (r *RedisRegistry) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	return r.revokeAll(ctx, userID)
}

func (r *RedisRegistry) revokeAll(ctx context.Context, userID string) (int, error) {
	n, err := revokeAllScript.Run(ctx, r.rdb,
		[]string{r.indexKey(userID)},
		r.sessionKey(userID, ""),
	).Int()
	if err != nil {
		return 0, storeUnavailable("revoke_all", err)
	}
	return n, nil
}

// List implements Registry.
func (r *RedisRegistry) List(ctx context.Context, userID string) ([]SessionInfo, error) {
	if userID == "" {
		return nil, nil
	}

	ctx, cancel := r.opContext(ctx)
	defer cancel()

	idx := r.indexKey(userID)
	members, err := r.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return nil, storeUnavailable("list", err)
	}
	if len(members) == 0 {
		return []SessionInfo{}, nil
	}

	gets := make([]*redis.MapStringStringCmd, len(members))
	if _, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, tokenID := range members {
			gets[i] = p.HGetAll(ctx, r.sessionKey(userID, tokenID))
		}
		return nil
	}); err != nil {
		return nil, storeUnavailable("list", err)
	}

	out := make([]SessionInfo, 0, len(members))
	var stale []any
	for i, cmd := range gets {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, members[i])
			continue
		}
		out = append(out, recordFromHash(userID, members[i], fields).info())
	}

	if len(stale) > 0 {
		// Best effort; the next listing retries.
		_ = r.rdb.SRem(ctx, idx, stale...).Err()
	}

	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TokenID, b.TokenID)
	})
	return out, nil
}

func recordFromHash(userID, tokenID string, fields map[string]string) Record {
	rec := Record{
		UserID:    userID,
		TokenID:   tokenID,
		TokenHash: fields[fieldHash],
		UserAgent: fields[fieldUserAgent],
		IP:        fields[fieldIP],
	}
	if ms, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		rec.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return rec
}
