package platform

//go:generate mockgen -package=mocks -destination=mocks/mock_client.go botrelay/internal/platform Client

import (
	"context"

	"github.com/pkg/errors"

	"botrelay/internal/model"
)

// ErrNotStarted is returned when a credential has no running bot.
var ErrNotStarted = errors.New("bot not started")

// upstream classifies a failed platform call as model.ErrUpstream, keeping
// the platform's message.
func upstream(err error, action string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(model.ErrUpstream, "%s: %v", action, err)
}

// IncomingFunc receives a message sent to the bot behind credentialRef.
type IncomingFunc func(credentialRef, sender, text string)

// Client talks to the external bot platform on behalf of one or more bots,
// each identified by its credential.
type Client interface {
	// Start brings the bot online. Starting a running bot is a no-op.
	Start(ctx context.Context, credentialRef string) error
	// Stop takes the bot offline. Stopping an unknown bot is a no-op.
	// Platform failures from any method satisfy errors.Is(err, model.ErrUpstream).
	Stop(credentialRef string) error
	SendMessage(ctx context.Context, credentialRef, recipient, text string) error
	OnIncoming(fn IncomingFunc)
}
