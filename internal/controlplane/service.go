// Package controlplane implements the dashboard operations on bot sessions
// and reflects worker events back into the registry.
package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
	"botrelay/internal/quota"
	"botrelay/internal/registry"
	"botrelay/internal/relay"
)

// Link is the control plane's view of the worker connection.
type Link interface {
	Send(cmd relay.Command) error
	Status() relay.State
}

// Broadcaster fans encoded events out to dashboard viewers.
type Broadcaster interface {
	Broadcast(owner string, message []byte) int
}

type Service struct {
	registry *registry.Registry
	quota    *quota.Enforcer
	link     Link
	viewers  Broadcaster
	now      func() time.Time
}

type Options struct {
	Registry *registry.Registry
	Link     Link
	Viewers  Broadcaster
	Now      func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		registry: opts.Registry,
		quota:    quota.NewEnforcer(opts.Registry),
		link:     opts.Link,
		viewers:  opts.Viewers,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = opts.Registry.Now
	}
	return s
}

func defaultWelcome(limit int) string {
	return fmt.Sprintf("Welcome! This bot is in trial mode with %d free messages.", limit)
}

// StartTrial creates a trial session and asks the worker to bring it up.
// When the link is down the created session is returned together with
// model.ErrLinkDown.
func (s *Service) StartTrial(ctx context.Context, ownerRef, credentialRef, welcome string) (model.Session, error) {
	if welcome == "" {
		welcome = defaultWelcome(s.registry.QuotaLimit())
	}
	sess, err := s.registry.Create(ctx, registry.CreateInput{
		OwnerRef:      ownerRef,
		CredentialRef: credentialRef,
		WelcomeText:   welcome,
		Mode:          model.ModeTrial,
		Status:        model.StatusStarting,
	})
	if err != nil {
		return model.Session{}, err
	}

	err = s.link.Send(relay.StartTrialBot{
		SessionID:     sess.ID,
		CredentialRef: sess.CredentialRef,
		OwnerRef:      sess.OwnerRef,
		WelcomeText:   sess.WelcomeText,
	})
	return sess, err
}

// SendTrialMessage spends one unit of trial quota and relays text to the
// session owner. The link is checked before quota is consumed.
func (s *Service) SendTrialMessage(ctx context.Context, id, text string) (quota.Result, error) {
	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return quota.Result{}, err
	}
	if sess.Mode != model.ModeTrial {
		return quota.Result{}, model.ErrNotTrial
	}
	if s.link.Status() != relay.StateConnected {
		return quota.Result{}, model.ErrLinkDown
	}

	res, err := s.quota.TryConsume(ctx, id)
	if err != nil {
		return quota.Result{}, err
	}
	if !res.Allowed {
		return res, model.ErrQuotaExceeded
	}

	err = s.link.Send(relay.SendTrialMessage{
		SessionID:     sess.ID,
		CredentialRef: sess.CredentialRef,
		OwnerRef:      sess.OwnerRef,
		Text:          text,
	})
	return res, err
}

// AddBot registers a bot without starting it.
func (s *Service) AddBot(ctx context.Context, ownerRef, credentialRef, welcome string) (model.Session, error) {
	return s.registry.Create(ctx, registry.CreateInput{
		OwnerRef:      ownerRef,
		CredentialRef: credentialRef,
		WelcomeText:   welcome,
		Mode:          model.ModeTrial,
		Status:        model.StatusStopped,
	})
}

// Authorize promotes a session and starts it. A nil expiresAt never lapses.
func (s *Service) Authorize(ctx context.Context, id string, expiresAt *time.Time) (model.Session, error) {
	if _, _, err := s.registry.SetMode(ctx, id, model.ModeAuthorized, expiresAt); err != nil {
		return model.Session{}, err
	}
	sess, changed, err := s.registry.SetStatus(ctx, id, model.StatusRunning)
	if err != nil {
		return model.Session{}, err
	}
	if !changed {
		return sess, nil
	}
	return sess, s.link.Send(startBot(sess))
}

// Toggle starts or stops a session. Only authorized, unexpired sessions may
// run. A command is sent only when the status actually changes.
func (s *Service) Toggle(ctx context.Context, id string, status model.Status) (model.Session, error) {
	switch status {
	case model.StatusRunning:
		now := s.now()
		sess, changed, err := s.registry.Update(ctx, id, func(sess *model.Session) (bool, error) {
			if sess.Mode != model.ModeAuthorized || sess.Status == model.StatusExpired {
				return false, model.ErrNotAuthorized
			}
			if sess.ExpiresAt != nil && sess.ExpiresAt.Before(now) {
				return false, model.ErrNotAuthorized
			}
			if sess.Status == model.StatusRunning {
				return false, nil
			}
			sess.Status = model.StatusRunning
			sess.LastError = ""
			return true, nil
		})
		if err != nil || !changed {
			return sess, err
		}
		return sess, s.link.Send(startBot(sess))

	case model.StatusStopped:
		sess, changed, err := s.registry.SetStatus(ctx, id, model.StatusStopped)
		if err != nil || !changed {
			return sess, err
		}
		return sess, s.link.Send(relay.StopBot{SessionID: sess.ID})

	default:
		return model.Session{}, errors.Wrapf(model.ErrInvalidTransition, "toggle to %q", status)
	}
}

// Delete stops the bot and removes the record. If the bot may still be
// running and the stop cannot be delivered, the record is kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	sess, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.link.Send(relay.StopBot{SessionID: id}); err != nil {
		live := sess.Status == model.StatusStarting || sess.Status == model.StatusRunning
		if live && errors.Is(err, model.ErrLinkDown) {
			return err
		}
		log.Warn().Err(err).Str("component", "controlplane").Str("session_id", id).
			Msg("stop not delivered, deleting anyway")
	}
	return s.registry.Delete(ctx, id)
}

// HandleEvent reflects a worker event into the registry and forwards it
// unchanged to the owner's viewers and to admin viewers.
func (s *Service) HandleEvent(ev relay.Event) {
	ctx := context.Background()
	id := ev.Session()
	logger := log.With().Str("component", "controlplane").Str("session_id", id).Str("type", relay.EventType(ev)).Logger()

	var err error
	switch e := ev.(type) {
	case relay.TrialBotStarted:
		if e.Success {
			_, _, err = s.registry.SetStatus(ctx, id, model.StatusRunning)
		}
	case relay.BotStarted:
		if e.Success {
			_, _, err = s.registry.SetStatus(ctx, id, model.StatusRunning)
		}
	case relay.BotStopped:
		_, _, err = s.registry.SetStatus(ctx, id, model.StatusStopped)
	case relay.TrialBotError:
		_, _, err = s.registry.MarkError(ctx, id, e.Error)
	case relay.TrialMessageError:
		_, _, err = s.registry.MarkError(ctx, id, e.Error)
	case relay.BotError:
		_, _, err = s.registry.MarkError(ctx, id, e.Error)
	case relay.TrialMessageSent, relay.MessageReceived:
	}
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidTransition):
		logger.Debug().Err(err).Msg("event not reflected")
	default:
		logger.Error().Err(err).Msg("reflect event")
	}

	owner := ""
	if sess, err := s.registry.Get(ctx, id); err == nil {
		owner = sess.OwnerRef
	}
	payload, err := relay.EncodeEvent(ev)
	if err != nil {
		logger.Error().Err(err).Msg("encode event")
		return
	}
	n := s.viewers.Broadcast(owner, payload)
	logger.Debug().Int("viewers", n).Msg("event forwarded")
}

// Resync restarts every authorized running session on the worker. It is
// run after each (re)connect of the link.
func (s *Service) Resync(ctx context.Context) {
	sessions, err := s.registry.ListRunning(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "controlplane").Msg("list running sessions")
		return
	}
	sent := 0
	for _, sess := range sessions {
		if err := s.link.Send(startBot(sess)); err != nil {
			log.Warn().Err(err).Str("component", "controlplane").Str("session_id", sess.ID).Msg("resync aborted")
			return
		}
		sent++
	}
	log.Info().Str("component", "controlplane").Int("sessions", sent).Msg("worker resynced")
}

func (s *Service) Get(ctx context.Context, id string) (model.Session, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Session, error) {
	return s.registry.List(ctx)
}

func (s *Service) ListByOwner(ctx context.Context, ownerRef string) ([]model.Session, error) {
	return s.registry.ListByOwner(ctx, ownerRef)
}

func (s *Service) LinkStatus() relay.State {
	return s.link.Status()
}

func startBot(sess model.Session) relay.StartBot {
	return relay.StartBot{
		SessionID:     sess.ID,
		CredentialRef: sess.CredentialRef,
		Config: relay.BotConfig{
			OwnerRef:    sess.OwnerRef,
			WelcomeText: sess.WelcomeText,
		},
	}
}
