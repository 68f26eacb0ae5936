package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"botrelay/internal/model"
)

const (
	// Key prefixes for Redis
	sessionKeyPrefix    = "session:"
	credentialKeyPrefix = "session_credential:"
	sessionsIndexKey    = "sessions"
	expiringIndexKey    = "sessions_expiring"
)

// RedisConfig holds configuration for the Redis session store
type RedisConfig struct {
	// Client is used as-is when set; otherwise one is built from Addr.
	Client *redis.Client

	Addr     string
	Password string
	DB       int
}

// Redis stores each session as JSON under session:<id>, with a credential
// lookup key, a creation-ordered index and an expiry-ordered index of
// authorized sessions.
type Redis struct {
	client *redis.Client
}

func NewRedis(cfg *RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	client := cfg.Client
	if client == nil {
		if cfg.Addr == "" {
			return nil, errors.New("redis address cannot be empty")
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connect to redis")
	}

	return &Redis{client: client}, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func credentialKey(credentialRef string) string {
	return credentialKeyPrefix + credentialRef
}

func (r *Redis) Get(ctx context.Context, id string) (model.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, model.ErrNotFound
	}
	if err != nil {
		return model.Session{}, errors.Wrap(err, "get session")
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return model.Session{}, errors.Wrap(err, "decode session")
	}
	return sess, nil
}

func (r *Redis) FindByCredential(ctx context.Context, credentialRef string) (model.Session, error) {
	id, err := r.client.Get(ctx, credentialKey(credentialRef)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, model.ErrNotFound
	}
	if err != nil {
		return model.Session{}, errors.Wrap(err, "get credential index")
	}
	return r.Get(ctx, id)
}

func (r *Redis) Put(ctx context.Context, sess model.Session) error {
	if sess.ID == "" {
		return errors.New("missing session id")
	}

	owner, err := r.client.Get(ctx, credentialKey(sess.CredentialRef)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "get credential index")
	}
	if err == nil && owner != sess.ID {
		return model.ErrDuplicateCredential
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), data, 0)
		pipe.Set(ctx, credentialKey(sess.CredentialRef), sess.ID, 0)
		pipe.ZAdd(ctx, sessionsIndexKey, redis.Z{
			Score:  float64(sess.CreatedAt.UnixMilli()),
			Member: sess.ID,
		})
		if sess.Mode == model.ModeAuthorized && sess.ExpiresAt != nil {
			pipe.ZAdd(ctx, expiringIndexKey, redis.Z{
				Score:  float64(sess.ExpiresAt.UnixMilli()),
				Member: sess.ID,
			})
		} else {
			pipe.ZRem(ctx, expiringIndexKey, sess.ID)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	sess, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.Del(ctx, credentialKey(sess.CredentialRef))
		pipe.ZRem(ctx, sessionsIndexKey, id)
		pipe.ZRem(ctx, expiringIndexKey, id)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

func (r *Redis) load(ctx context.Context, ids []string) ([]model.Session, error) {
	result := make([]model.Session, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load sessions")
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry outlived its record
			continue
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			return nil, errors.Wrap(err, "decode session")
		}
		result = append(result, sess)
	}
	return result, nil
}

func (r *Redis) List(ctx context.Context) ([]model.Session, error) {
	ids, err := r.client.ZRevRange(ctx, sessionsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	sessions, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(sessions)
	return sessions, nil
}

func (r *Redis) ListExpired(ctx context.Context, now time.Time) ([]model.Session, error) {
	ids, err := r.client.ZRangeByScore(ctx, expiringIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list expiring sessions")
	}
	candidates, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]model.Session, 0, len(candidates))
	for _, sess := range candidates {
		if sess.Lapsed(now) {
			result = append(result, sess)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
