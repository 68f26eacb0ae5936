package store

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"botrelay/internal/model"
)

// Store is durable read/write of sessions keyed by id and credential.
// Get, Delete and FindByCredential return model.ErrNotFound for unknown keys.
type Store interface {
	Get(ctx context.Context, id string) (model.Session, error)
	FindByCredential(ctx context.Context, credentialRef string) (model.Session, error)
	Put(ctx context.Context, sess model.Session) error
	Delete(ctx context.Context, id string) error
	// List returns all sessions, newest first.
	List(ctx context.Context) ([]model.Session, error)
	// ListExpired returns authorized running sessions whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time) ([]model.Session, error)
	Close() error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Options struct {
	Driver string

	// memory
	StateFile string

	// sqlite
	SQLitePath string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(MemoryOptions{StateFile: opts.StateFile}), nil
	case DriverSQLite:
		return NewSQLite(opts.SQLitePath)
	case DriverRedis:
		return NewRedis(&RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
	default:
		return nil, errors.Errorf("unknown store driver %q", opts.Driver)
	}
}

func sortNewestFirst(sessions []model.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
