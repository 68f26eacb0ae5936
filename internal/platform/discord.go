package platform

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const discordIntents = discordgo.IntentsDirectMessages |
	discordgo.IntentsGuildMessages |
	discordgo.IntentMessageContent

// Discord runs one gateway session per bot token. Recipients are user ids;
// messages are delivered over the user's DM channel.
type Discord struct {
	mu       sync.RWMutex
	sessions map[string]*discordgo.Session
	incoming IncomingFunc
}

func NewDiscord() *Discord {
	return &Discord{sessions: make(map[string]*discordgo.Session)}
}

func (d *Discord) OnIncoming(fn IncomingFunc) {
	d.mu.Lock()
	d.incoming = fn
	d.mu.Unlock()
}

func (d *Discord) Start(_ context.Context, token string) error {
	d.mu.RLock()
	_, running := d.sessions[token]
	d.mu.RUnlock()
	if running {
		return nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return upstream(err, "create discord session")
	}
	session.Identify.Intents = discordIntents
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessage(token, s, m)
	})
	if err := session.Open(); err != nil {
		return upstream(err, "open discord connection")
	}

	d.mu.Lock()
	if _, raced := d.sessions[token]; raced {
		d.mu.Unlock()
		_ = session.Close()
		return nil
	}
	d.sessions[token] = session
	d.mu.Unlock()
	return nil
}

func (d *Discord) Stop(token string) error {
	d.mu.Lock()
	session, ok := d.sessions[token]
	delete(d.sessions, token)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return upstream(session.Close(), "close discord connection")
}

func (d *Discord) SendMessage(_ context.Context, token, recipient, text string) error {
	d.mu.RLock()
	session, ok := d.sessions[token]
	d.mu.RUnlock()
	if !ok {
		return ErrNotStarted
	}

	channel, err := session.UserChannelCreate(recipient)
	if err != nil {
		return upstream(err, "open DM channel with "+recipient)
	}
	if _, err := session.ChannelMessageSend(channel.ID, text); err != nil {
		return upstream(err, "send discord message")
	}
	return nil
}

func (d *Discord) handleMessage(token string, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	d.mu.RLock()
	fn := d.incoming
	d.mu.RUnlock()
	if fn == nil {
		log.Debug().Str("component", "discord").Msg("no incoming handler, dropping message")
		return
	}
	fn(token, m.Author.ID, m.Content)
}
