package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"botrelay/internal/platform"
	"botrelay/internal/relay"
)

// Emitter delivers events back to the control plane.
type Emitter interface {
	Emit(ev relay.Event) error
}

type bot struct {
	sessionID     string
	credentialRef string
	ownerRef      string
}

// Manager keeps one platform registration per session and turns commands
// into platform calls and result events.
type Manager struct {
	client  platform.Client
	emitter Emitter

	mu           sync.Mutex
	bots         map[string]bot
	byCredential map[string]string
}

func NewManager(client platform.Client, emitter Emitter) *Manager {
	m := &Manager{
		client:       client,
		emitter:      emitter,
		bots:         make(map[string]bot),
		byCredential: make(map[string]string),
	}
	client.OnIncoming(m.handleIncoming)
	return m
}

func (m *Manager) Handle(ctx context.Context, cmd relay.Command) {
	logger := log.With().Str("component", "worker").Str("session_id", cmd.Session()).Str("type", relay.CommandType(cmd)).Logger()
	logger.Debug().Msg("command received")

	switch c := cmd.(type) {
	case relay.StartTrialBot:
		if err := m.start(ctx, bot{sessionID: c.SessionID, credentialRef: c.CredentialRef, ownerRef: c.OwnerRef}); err != nil {
			logger.Error().Err(err).Msg("start trial bot")
			m.emit(relay.TrialBotError{SessionID: c.SessionID, Error: err.Error()})
			return
		}
		if c.WelcomeText != "" {
			if err := m.client.SendMessage(ctx, c.CredentialRef, c.OwnerRef, c.WelcomeText); err != nil {
				logger.Error().Err(err).Msg("send welcome")
				m.emit(relay.TrialBotError{SessionID: c.SessionID, Error: err.Error()})
				return
			}
		}
		m.emit(relay.TrialBotStarted{SessionID: c.SessionID, Success: true})

	case relay.SendTrialMessage:
		err := m.start(ctx, bot{sessionID: c.SessionID, credentialRef: c.CredentialRef, ownerRef: c.OwnerRef})
		if err == nil {
			err = m.client.SendMessage(ctx, c.CredentialRef, c.OwnerRef, c.Text)
		}
		if err != nil {
			logger.Error().Err(err).Msg("send trial message")
			m.emit(relay.TrialMessageError{SessionID: c.SessionID, Error: err.Error()})
			return
		}
		m.emit(relay.TrialMessageSent{SessionID: c.SessionID, Success: true})

	case relay.StartBot:
		if err := m.start(ctx, bot{sessionID: c.SessionID, credentialRef: c.CredentialRef, ownerRef: c.Config.OwnerRef}); err != nil {
			logger.Error().Err(err).Msg("start bot")
			m.emit(relay.BotError{SessionID: c.SessionID, Error: err.Error()})
			return
		}
		m.emit(relay.BotStarted{SessionID: c.SessionID, Success: true})

	case relay.StopBot:
		if err := m.stop(c.SessionID); err != nil {
			logger.Error().Err(err).Msg("stop bot")
			m.emit(relay.BotError{SessionID: c.SessionID, Error: err.Error()})
			return
		}
		m.emit(relay.BotStopped{SessionID: c.SessionID, Success: true})
	}
}

func (m *Manager) start(ctx context.Context, b bot) error {
	m.mu.Lock()
	_, running := m.bots[b.sessionID]
	m.mu.Unlock()
	if running {
		return nil
	}

	if err := m.client.Start(ctx, b.credentialRef); err != nil {
		return err
	}

	m.mu.Lock()
	m.bots[b.sessionID] = b
	m.byCredential[b.credentialRef] = b.sessionID
	m.mu.Unlock()
	log.Info().Str("component", "worker").Str("session_id", b.sessionID).Msg("bot started")
	return nil
}

func (m *Manager) stop(sessionID string) error {
	m.mu.Lock()
	b, ok := m.bots[sessionID]
	if ok {
		delete(m.bots, sessionID)
		if m.byCredential[b.credentialRef] == sessionID {
			delete(m.byCredential, b.credentialRef)
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := m.client.Stop(b.credentialRef); err != nil {
		return err
	}
	log.Info().Str("component", "worker").Str("session_id", sessionID).Msg("bot stopped")
	return nil
}

// StopAll takes every bot offline. Used at shutdown; no events are emitted.
func (m *Manager) StopAll() {
	m.mu.Lock()
	bots := make([]bot, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.bots = make(map[string]bot)
	m.byCredential = make(map[string]string)
	m.mu.Unlock()

	for _, b := range bots {
		if err := m.client.Stop(b.credentialRef); err != nil {
			log.Warn().Err(err).Str("component", "worker").Str("session_id", b.sessionID).Msg("stop bot at shutdown")
		}
	}
}

func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bots)
}

func (m *Manager) handleIncoming(credentialRef, sender, text string) {
	m.mu.Lock()
	sessionID, ok := m.byCredential[credentialRef]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.emit(relay.MessageReceived{SessionID: sessionID, Sender: sender, Text: text})
}

func (m *Manager) emit(ev relay.Event) {
	if err := m.emitter.Emit(ev); err != nil {
		log.Warn().Err(err).Str("component", "worker").Str("session_id", ev.Session()).
			Str("type", relay.EventType(ev)).Msg("event dropped")
	}
}
