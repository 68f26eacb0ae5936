package relay

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Frame is the wire envelope for both directions of the link.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ErrUnknownFrame is returned when a frame type is not one of the closed
// variants for its direction.
var ErrUnknownFrame = errors.New("unknown frame type")

const (
	TypeStartTrialBot    = "start_trial_bot"
	TypeSendTrialMessage = "send_trial_message"
	TypeStartBot         = "start_bot"
	TypeStopBot          = "stop_bot"

	TypeTrialBotStarted   = "trial_bot_started"
	TypeTrialBotError     = "trial_bot_error"
	TypeTrialMessageSent  = "trial_message_sent"
	TypeTrialMessageError = "trial_message_error"
	TypeBotStarted        = "bot_started"
	TypeBotStopped        = "bot_stopped"
	TypeBotError          = "bot_error"
	TypeMessageReceived   = "message_received"
)

// Command flows from the control plane to the worker.
type Command interface {
	commandType() string
	Session() string
}

type StartTrialBot struct {
	SessionID     string `json:"sessionId"`
	CredentialRef string `json:"credentialRef"`
	OwnerRef      string `json:"ownerRef"`
	WelcomeText   string `json:"welcomeText,omitempty"`
}

type SendTrialMessage struct {
	SessionID     string `json:"sessionId"`
	CredentialRef string `json:"credentialRef"`
	OwnerRef      string `json:"ownerRef"`
	Text          string `json:"text"`
}

// BotConfig carries what the worker needs to run an authorized bot.
type BotConfig struct {
	OwnerRef    string `json:"ownerRef,omitempty"`
	WelcomeText string `json:"welcomeText,omitempty"`
}

type StartBot struct {
	SessionID     string    `json:"sessionId"`
	CredentialRef string    `json:"credentialRef"`
	Config        BotConfig `json:"config"`
}

type StopBot struct {
	SessionID string `json:"sessionId"`
}

func (StartTrialBot) commandType() string    { return TypeStartTrialBot }
func (SendTrialMessage) commandType() string { return TypeSendTrialMessage }
func (StartBot) commandType() string         { return TypeStartBot }
func (StopBot) commandType() string          { return TypeStopBot }

func (c StartTrialBot) Session() string    { return c.SessionID }
func (c SendTrialMessage) Session() string { return c.SessionID }
func (c StartBot) Session() string         { return c.SessionID }
func (c StopBot) Session() string          { return c.SessionID }

// Event flows from the worker back to the control plane.
type Event interface {
	eventType() string
	Session() string
}

type TrialBotStarted struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

type TrialBotError struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

type TrialMessageSent struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

type TrialMessageError struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

type BotStarted struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

type BotStopped struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

type BotError struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// MessageReceived is an inbound platform message addressed to a bot.
type MessageReceived struct {
	SessionID string `json:"sessionId"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

func (TrialBotStarted) eventType() string   { return TypeTrialBotStarted }
func (TrialBotError) eventType() string     { return TypeTrialBotError }
func (TrialMessageSent) eventType() string  { return TypeTrialMessageSent }
func (TrialMessageError) eventType() string { return TypeTrialMessageError }
func (BotStarted) eventType() string        { return TypeBotStarted }
func (BotStopped) eventType() string        { return TypeBotStopped }
func (BotError) eventType() string          { return TypeBotError }
func (MessageReceived) eventType() string   { return TypeMessageReceived }

func (e TrialBotStarted) Session() string   { return e.SessionID }
func (e TrialBotError) Session() string     { return e.SessionID }
func (e TrialMessageSent) Session() string  { return e.SessionID }
func (e TrialMessageError) Session() string { return e.SessionID }
func (e BotStarted) Session() string        { return e.SessionID }
func (e BotStopped) Session() string        { return e.SessionID }
func (e BotError) Session() string          { return e.SessionID }
func (e MessageReceived) Session() string   { return e.SessionID }

// CommandType returns the wire type of cmd.
func CommandType(cmd Command) string { return cmd.commandType() }

// EventType returns the wire type of ev.
func EventType(ev Event) string { return ev.eventType() }

func EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.(type) {
	case StartTrialBot, SendTrialMessage, StartBot, StopBot:
	default:
		return nil, errors.Wrapf(ErrUnknownFrame, "command %T", cmd)
	}
	return encode(cmd.commandType(), cmd)
}

func EncodeEvent(ev Event) ([]byte, error) {
	switch ev.(type) {
	case TrialBotStarted, TrialBotError, TrialMessageSent, TrialMessageError,
		BotStarted, BotStopped, BotError, MessageReceived:
	default:
		return nil, errors.Wrapf(ErrUnknownFrame, "event %T", ev)
	}
	return encode(ev.eventType(), ev)
}

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", typ)
	}
	return json.Marshal(Frame{Type: typ, Data: data})
}

func DecodeCommand(raw []byte) (Command, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	switch f.Type {
	case TypeStartTrialBot:
		return decodeCommand[StartTrialBot](f)
	case TypeSendTrialMessage:
		return decodeCommand[SendTrialMessage](f)
	case TypeStartBot:
		return decodeCommand[StartBot](f)
	case TypeStopBot:
		return decodeCommand[StopBot](f)
	default:
		return nil, errors.Wrapf(ErrUnknownFrame, "command %q", f.Type)
	}
}

func DecodeEvent(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	switch f.Type {
	case TypeTrialBotStarted:
		return decodeEvent[TrialBotStarted](f)
	case TypeTrialBotError:
		return decodeEvent[TrialBotError](f)
	case TypeTrialMessageSent:
		return decodeEvent[TrialMessageSent](f)
	case TypeTrialMessageError:
		return decodeEvent[TrialMessageError](f)
	case TypeBotStarted:
		return decodeEvent[BotStarted](f)
	case TypeBotStopped:
		return decodeEvent[BotStopped](f)
	case TypeBotError:
		return decodeEvent[BotError](f)
	case TypeMessageReceived:
		return decodeEvent[MessageReceived](f)
	default:
		return nil, errors.Wrapf(ErrUnknownFrame, "event %q", f.Type)
	}
}

func decodeCommand[T Command](f Frame) (Command, error) {
	v, err := decodeData[T](f)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeEvent[T Event](f Frame) (Event, error) {
	v, err := decodeData[T](f)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeData[T any](f Frame) (T, error) {
	var v T
	if len(f.Data) == 0 {
		return v, errors.Errorf("%s: missing data", f.Type)
	}
	if err := json.Unmarshal(f.Data, &v); err != nil {
		return v, errors.Wrapf(err, "decode %s", f.Type)
	}
	return v, nil
}
