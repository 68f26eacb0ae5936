package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"botrelay/internal/model"
	"botrelay/internal/store"
)

func newTestRegistry(now time.Time) *Registry {
	n := 0
	return New(Options{
		Store: store.NewMemory(store.MemoryOptions{}),
		Now:   func() time.Time { return now },
		NewID: func() string {
			n++
			return fmt.Sprintf("sess-%d", n)
		},
	})
}

func TestCreateThenGet(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := newTestRegistry(now)
	ctx := context.Background()

	created, err := r.Create(ctx, CreateInput{
		OwnerRef:      "owner-1",
		CredentialRef: "cred-1",
		WelcomeText:   "hi",
		Mode:          model.ModeTrial,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != model.StatusStarting || created.MessageCount != 0 || created.QuotaLimit != model.DefaultQuotaLimit {
		t.Fatalf("unexpected created session: %+v", created)
	}
	if created.ExpiresAt != nil {
		t.Fatalf("expected nil expiresAt for trial")
	}

	got, err := r.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.CredentialRef != "cred-1" || got.OwnerRef != "owner-1" ||
		got.WelcomeText != "hi" || got.Mode != model.ModeTrial || !got.CreatedAt.Equal(now) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCreateDuplicateCredential(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()

	if _, err := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := r.Create(ctx, CreateInput{OwnerRef: "o2", CredentialRef: "c"})
	if !errors.Is(err, model.ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}
}

func TestConcurrentCreateSameCredential(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "shared"}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one create to win, got %d", ok)
	}
}

func TestUnknownID(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, _, err := r.SetStatus(ctx, "missing", model.StatusRunning); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("SetStatus: expected ErrNotFound, got %v", err)
	}
	if _, _, err := r.SetMode(ctx, "missing", model.ModeAuthorized, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("SetMode: expected ErrNotFound, got %v", err)
	}
}

func TestSetStatusIdempotent(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c", Status: model.StatusStopped})

	_, changed, err := r.SetStatus(ctx, sess.ID, model.StatusRunning)
	if err != nil || !changed {
		t.Fatalf("first SetStatus: changed=%v err=%v", changed, err)
	}
	_, changed, err = r.SetStatus(ctx, sess.ID, model.StatusRunning)
	if err != nil || changed {
		t.Fatalf("second SetStatus: changed=%v err=%v", changed, err)
	}
}

func TestSetModeIdempotent(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c"})
	exp := time.Now().Add(time.Hour)

	_, changed, err := r.SetMode(ctx, sess.ID, model.ModeAuthorized, &exp)
	if err != nil || !changed {
		t.Fatalf("first SetMode: changed=%v err=%v", changed, err)
	}
	same := exp
	_, changed, err = r.SetMode(ctx, sess.ID, model.ModeAuthorized, &same)
	if err != nil || changed {
		t.Fatalf("second SetMode: changed=%v err=%v", changed, err)
	}
}

func TestExpiredTransitions(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c", Status: model.StatusStopped})

	if _, _, err := r.SetStatus(ctx, sess.ID, model.StatusExpired); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition setting expired directly, got %v", err)
	}

	past := now.Add(-time.Minute)
	if _, _, err := r.SetMode(ctx, sess.ID, model.ModeAuthorized, &past); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if _, _, err := r.SetStatus(ctx, sess.ID, model.StatusRunning); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	expired, changed, err := r.Expire(ctx, sess.ID, now)
	if err != nil || !changed || expired.Status != model.StatusExpired {
		t.Fatalf("Expire: %+v changed=%v err=%v", expired, changed, err)
	}
	if _, changed, _ := r.Expire(ctx, sess.ID, now); changed {
		t.Fatalf("second Expire should be a no-op")
	}
	if _, _, err := r.SetStatus(ctx, sess.ID, model.StatusRunning); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition leaving expired, got %v", err)
	}

	future := now.Add(24 * time.Hour)
	reauth, changed, err := r.SetMode(ctx, sess.ID, model.ModeAuthorized, &future)
	if err != nil || !changed {
		t.Fatalf("re-authorize: changed=%v err=%v", changed, err)
	}
	if reauth.Status != model.StatusStopped {
		t.Fatalf("re-authorized session should land in stopped, got %s", reauth.Status)
	}
}

func TestExpireRechecksUnderLock(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c", Status: model.StatusStopped})

	future := now.Add(time.Hour)
	r.SetMode(ctx, sess.ID, model.ModeAuthorized, &future)
	r.SetStatus(ctx, sess.ID, model.StatusRunning)

	if _, changed, err := r.Expire(ctx, sess.ID, now); err != nil || changed {
		t.Fatalf("unexpired session must not expire: changed=%v err=%v", changed, err)
	}
}

func TestListByOwnerAndRunning(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(now)
	ctx := context.Background()

	a, _ := r.Create(ctx, CreateInput{OwnerRef: "alice", CredentialRef: "c1", Status: model.StatusStopped})
	r.Create(ctx, CreateInput{OwnerRef: "bob", CredentialRef: "c2"})
	r.Create(ctx, CreateInput{OwnerRef: "alice", CredentialRef: "c3"})

	owned, err := r.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 sessions for alice, got %d", len(owned))
	}

	exp := now.Add(time.Hour)
	r.SetMode(ctx, a.ID, model.ModeAuthorized, &exp)
	r.SetStatus(ctx, a.ID, model.StatusRunning)

	running, err := r.ListRunning(ctx)
	if err != nil {
		t.Fatalf("ListRunning: %v", err)
	}
	if len(running) != 1 || running[0].ID != a.ID {
		t.Fatalf("unexpected running list: %+v", running)
	}
}

func TestMarkError(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c"})

	got, changed, err := r.MarkError(ctx, sess.ID, "invalid token")
	if err != nil || !changed {
		t.Fatalf("MarkError: changed=%v err=%v", changed, err)
	}
	if got.Status != model.StatusError || got.LastError != "invalid token" {
		t.Fatalf("unexpected session: %+v", got)
	}

	got, _, _ = r.SetStatus(ctx, sess.ID, model.StatusRunning)
	if got.LastError != "" {
		t.Fatalf("lastError should clear on recovery")
	}
}

func TestDeleteFreesCredential(t *testing.T) {
	r := newTestRegistry(time.Now())
	ctx := context.Background()
	sess, _ := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c"})

	if err := r.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Create(ctx, CreateInput{OwnerRef: "o", CredentialRef: "c"}); err != nil {
		t.Fatalf("credential should be reusable after delete: %v", err)
	}
}

func TestKeyLockReleasesEntries(t *testing.T) {
	k := newKeyLock()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if n := k.size(); n != 0 {
		t.Fatalf("expected empty lock table, got %d", n)
	}
}
