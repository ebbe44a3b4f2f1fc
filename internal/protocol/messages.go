package protocol

import (
	"encoding/json"
	"errors"
)

// Every wire message is a JSON object carrying a string "event"
// discriminator plus event-specific fields.

// Lobby, server -> client
const (
	EvtUsersUpdate       = "users-update"
	EvtUserRegistrated   = "user-registrated"
	EvtUserNewMsg        = "user-new-msg"
	EvtUserNewInvite     = "user-new-invite"
	EvtUserMoveRoom      = "user-move-room"
	EvtUserRefusedInvite = "user-refused-invite"
)

// Lobby, client -> server
const (
	EvtNewTextChat        = "new-text-chat"
	EvtNewGameInvite      = "new-game-invite"
	EvtUserAnsweredInvite = "user-answered-invite"
)

// Game, server -> client
const (
	EvtUserUpdate   = "user-update"
	EvtAskNumber    = "ask-number"
	EvtRevealChoice = "reveal-choice"
)

// Game, client -> server
const (
	EvtNumberPicked = "number-picked"
	EvtRetry        = "retry"
)

var ErrMissingEvent = errors.New("protocol: message has no event field")

// UserInfo identifies one connected user within a channel.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PlayerAnswer is one authorized player's entry in a reveal. Choice is
// omitted until the player has picked.
type PlayerAnswer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Choice   *int   `json:"choice,omitempty"`
}

type UsersUpdate struct {
	Event     string     `json:"event"`
	Usernames []UserInfo `json:"usernames"`
}

type UserRegistrated struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

type UserNewMsg struct {
	Event    string `json:"event"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type UserNewInvite struct {
	Event string `json:"event"`
	From  string `json:"from"`
}

type UserMoveRoom struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

type UserRefusedInvite struct {
	Event string `json:"event"`
}

type AskNumber struct {
	Event string `json:"event"`
}

type RevealChoice struct {
	Event   string         `json:"event"`
	Answers []PlayerAnswer `json:"answers"`
}

type NewTextChat struct {
	Message string `json:"message"`
}

type NewGameInvite struct {
	TargetUser string `json:"targetUser"`
}

type UserAnsweredInvite struct {
	Answer bool   `json:"answer"`
	From   string `json:"from"`
}

type NumberPicked struct {
	Choice int `json:"choice"`
}

// DecodeEvent extracts the event discriminator from an inbound message
// body. The caller unmarshals the body a second time into the
// event-specific struct once it knows which one applies.
func DecodeEvent(data []byte) (string, error) {
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	if env.Event == "" {
		return "", ErrMissingEvent
	}
	return env.Event, nil
}
