package platform

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"botrelay/internal/model"
)

func TestDiscord_SendWithoutStart(t *testing.T) {
	d := NewDiscord()
	err := d.SendMessage(context.Background(), "token", "user", "hi")
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestDiscord_StopUnknown(t *testing.T) {
	if err := NewDiscord().Stop("token"); err != nil {
		t.Fatalf("stopping an unknown bot should be a no-op, got %v", err)
	}
}

func TestDiscord_HandleMessageFiltersSelfAndBots(t *testing.T) {
	d := NewDiscord()
	type msg struct{ token, sender, text string }
	var got []msg
	d.OnIncoming(func(token, sender, text string) {
		got = append(got, msg{token, sender, text})
	})

	state := discordgo.NewState()
	state.User = &discordgo.User{ID: "self"}
	s := &discordgo.Session{State: state}

	d.handleMessage("tok", s, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "self"}, Content: "echo",
	}})
	d.handleMessage("tok", s, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "other-bot", Bot: true}, Content: "beep",
	}})
	d.handleMessage("tok", s, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "u1"}, Content: "hello",
	}})

	if len(got) != 1 || got[0] != (msg{"tok", "u1", "hello"}) {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
}

func TestUpstreamClassifiesPlatformFailures(t *testing.T) {
	if err := upstream(nil, "send discord message"); err != nil {
		t.Fatalf("expected nil for a successful call, got %v", err)
	}

	err := upstream(errors.New("HTTP 401 Unauthorized"), "open discord connection")
	if !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	want := "open discord connection: HTTP 401 Unauthorized: " + string(model.ErrUpstream)
	if err.Error() != want {
		t.Fatalf("unexpected message %q, want %q", err.Error(), want)
	}
}
