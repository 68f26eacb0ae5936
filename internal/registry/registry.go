package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"botrelay/internal/model"
	"botrelay/internal/store"
)

// Registry is the authoritative view of bot sessions. Every mutator on a
// session runs under that session's lock; mutators on different sessions
// proceed independently.
type Registry struct {
	store      store.Store
	locks      *keyLock
	createMu   sync.Mutex
	quotaLimit int
	now        func() time.Time
	newID      func() string
}

type Options struct {
	Store      store.Store
	QuotaLimit int
	Now        func() time.Time
	NewID      func() string
}

func New(opts Options) *Registry {
	r := &Registry{
		store:      opts.Store,
		locks:      newKeyLock(),
		quotaLimit: opts.QuotaLimit,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if r.store == nil {
		r.store = store.NewMemory(store.MemoryOptions{})
	}
	if r.quotaLimit <= 0 {
		r.quotaLimit = model.DefaultQuotaLimit
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

type CreateInput struct {
	OwnerRef      string
	CredentialRef string
	WelcomeText   string
	Mode          model.Mode
	Status        model.Status
}

// Create registers a new session. The credential must not be bound to any
// other live session.
func (r *Registry) Create(ctx context.Context, in CreateInput) (model.Session, error) {
	if in.CredentialRef == "" {
		return model.Session{}, errors.New("missing credential")
	}
	if in.OwnerRef == "" {
		return model.Session{}, errors.New("missing owner")
	}
	if in.Mode == "" {
		in.Mode = model.ModeTrial
	}
	if !in.Mode.Valid() {
		return model.Session{}, errors.Errorf("invalid mode %q", in.Mode)
	}
	if in.Status == "" {
		in.Status = model.StatusStarting
	}
	if !in.Status.Valid() || in.Status == model.StatusExpired {
		return model.Session{}, errors.Errorf("invalid initial status %q", in.Status)
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	_, err := r.store.FindByCredential(ctx, in.CredentialRef)
	if err == nil {
		return model.Session{}, model.ErrDuplicateCredential
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, errors.Wrap(err, "lookup credential")
	}

	now := r.now()
	sess := model.Session{
		ID:            r.newID(),
		CredentialRef: in.CredentialRef,
		OwnerRef:      in.OwnerRef,
		WelcomeText:   in.WelcomeText,
		Mode:          in.Mode,
		Status:        in.Status,
		QuotaLimit:    r.quotaLimit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.Put(ctx, sess); err != nil {
		return model.Session{}, errors.Wrap(err, "store session")
	}
	return sess, nil
}

func (r *Registry) Get(ctx context.Context, id string) (model.Session, error) {
	return r.store.Get(ctx, id)
}

// MutateFunc edits a session in place and reports whether anything changed.
// Returning an error aborts the mutation.
type MutateFunc func(sess *model.Session) (bool, error)

// Update is the serialized read-modify-write primitive. The session is only
// written back when fn reports a change.
func (r *Registry) Update(ctx context.Context, id string, fn MutateFunc) (model.Session, bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return model.Session{}, false, err
	}

	next := sess
	if sess.ExpiresAt != nil {
		t := *sess.ExpiresAt
		next.ExpiresAt = &t
	}
	changed, err := fn(&next)
	if err != nil {
		return sess, false, err
	}
	if !changed {
		return sess, false, nil
	}

	next.UpdatedAt = r.now()
	if err := r.store.Put(ctx, next); err != nil {
		return sess, false, errors.Wrap(err, "store session")
	}
	return next, true, nil
}

// SetMode changes the authorization mode. Re-authorizing an expired
// session moves it back to stopped.
func (r *Registry) SetMode(ctx context.Context, id string, mode model.Mode, expiresAt *time.Time) (model.Session, bool, error) {
	if !mode.Valid() {
		return model.Session{}, false, errors.Errorf("invalid mode %q", mode)
	}
	return r.Update(ctx, id, func(sess *model.Session) (bool, error) {
		if mode == model.ModeTrial {
			expiresAt = nil
		}
		if sess.Mode == mode && sameTime(sess.ExpiresAt, expiresAt) {
			return false, nil
		}
		sess.Mode = mode
		sess.ExpiresAt = expiresAt
		if sess.Status == model.StatusExpired {
			sess.Status = model.StatusStopped
		}
		return true, nil
	})
}

// SetStatus changes the runtime status. Expired is terminal here; only
// Expire moves a session into it and only SetMode moves it out.
func (r *Registry) SetStatus(ctx context.Context, id string, status model.Status) (model.Session, bool, error) {
	if !status.Valid() {
		return model.Session{}, false, errors.Errorf("invalid status %q", status)
	}
	return r.Update(ctx, id, func(sess *model.Session) (bool, error) {
		if sess.Status == status {
			return false, nil
		}
		if status == model.StatusExpired || sess.Status == model.StatusExpired {
			return false, model.ErrInvalidTransition
		}
		sess.Status = status
		if status != model.StatusError {
			sess.LastError = ""
		}
		return true, nil
	})
}

// MarkError records an upstream failure against the session.
func (r *Registry) MarkError(ctx context.Context, id string, reason string) (model.Session, bool, error) {
	return r.Update(ctx, id, func(sess *model.Session) (bool, error) {
		if sess.Status == model.StatusExpired {
			return false, model.ErrInvalidTransition
		}
		if sess.Status == model.StatusError && sess.LastError == reason {
			return false, nil
		}
		sess.Status = model.StatusError
		sess.LastError = reason
		return true, nil
	})
}

// Expire flips a lapsed session to expired. The lapse is re-checked under
// the lock, so a concurrent re-authorization wins if it lands first.
func (r *Registry) Expire(ctx context.Context, id string, now time.Time) (model.Session, bool, error) {
	return r.Update(ctx, id, func(sess *model.Session) (bool, error) {
		if !sess.Lapsed(now) {
			return false, nil
		}
		sess.Status = model.StatusExpired
		return true, nil
	})
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	unlock := r.locks.Lock(id)
	defer unlock()
	return r.store.Delete(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]model.Session, error) {
	return r.store.List(ctx)
}

func (r *Registry) ListByOwner(ctx context.Context, ownerRef string) ([]model.Session, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]model.Session, 0)
	for _, sess := range all {
		if sess.OwnerRef == ownerRef {
			result = append(result, sess)
		}
	}
	return result, nil
}

// ListExpired returns sweep candidates: authorized running sessions past expiry.
func (r *Registry) ListExpired(ctx context.Context, now time.Time) ([]model.Session, error) {
	return r.store.ListExpired(ctx, now)
}

// ListRunning returns authorized sessions the worker should be running.
func (r *Registry) ListRunning(ctx context.Context) ([]model.Session, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	result := make([]model.Session, 0)
	for _, sess := range all {
		if sess.Mode == model.ModeAuthorized && sess.Status == model.StatusRunning && !sess.Lapsed(now) {
			result = append(result, sess)
		}
	}
	return result, nil
}

func (r *Registry) Now() time.Time {
	return r.now()
}

// QuotaLimit is the trial quota given to new sessions.
func (r *Registry) QuotaLimit() int {
	return r.quotaLimit
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
