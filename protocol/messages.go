package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"tokenroom-relay/reaction"
)

const (
	TypeJoinRoom       = "joinRoom"
	TypeChat           = "chat"
	TypeRateToken      = "rateToken"
	TypeUpdateUsername = "updateUsername"
	TypeAudio          = "audio"
	TypeEmojiUpdate    = "emojiUpdate"

	typeUnknown = "unknown"
)

// Inbound is one decoded client message. The concrete type is one of
// JoinRoom, Chat, RateToken, UpdateUsername, Audio or Unknown.
type Inbound interface {
	Kind() string
}

type JoinRoom struct {
	RoomID string
}

type Chat struct {
	Username string
	Content  string
}

type RateToken struct {
	TokenAddress string
	Emoji        string
}

type UpdateUsername struct {
	Username string
}

// Audio carries the client's frame untouched, usually a JSON array of samples.
type Audio struct {
	Data json.RawMessage
}

// Unknown is any message whose type the relay does not handle.
type Unknown struct {
	Type string
}

func (JoinRoom) Kind() string       { return TypeJoinRoom }
func (Chat) Kind() string           { return TypeChat }
func (RateToken) Kind() string      { return TypeRateToken }
func (UpdateUsername) Kind() string { return TypeUpdateUsername }
func (Audio) Kind() string          { return TypeAudio }
func (Unknown) Kind() string        { return typeUnknown }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses a client frame in two steps: the type first, then only the
// fields that type uses. Missing fields decode to their zero value and
// fields other kinds use are ignored.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeJoinRoom:
		var p struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return JoinRoom{RoomID: p.RoomID}, nil
	case TypeChat:
		var p struct {
			Username string `json:"username"`
			Content  string `json:"content"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return Chat{Username: p.Username, Content: p.Content}, nil
	case TypeRateToken:
		var p struct {
			TokenAddress string `json:"tokenAddress"`
			Emoji        string `json:"emoji"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return RateToken{TokenAddress: p.TokenAddress, Emoji: p.Emoji}, nil
	case TypeUpdateUsername:
		var p struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return UpdateUsername{Username: p.Username}, nil
	case TypeAudio:
		var p struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if falsy(p.Data) {
			p.Data = nil
		}
		return Audio{Data: p.Data}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// falsy reports whether raw is absent, null, false, an empty string or a
// numeric zero. Arrays and objects are never falsy, even when empty.
func falsy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return true
	}
	switch c := raw[0]; {
	case c == 'n' || c == 'f':
		return true
	case c == '"':
		return len(raw) == 2
	case c == '-' || (c >= '0' && c <= '9'):
		f, err := strconv.ParseFloat(string(raw), 64)
		return err == nil && f == 0
	}
	return false
}

type EmojiUpdate struct {
	Type  string         `json:"type"`
	Stats reaction.Stats `json:"stats"`
}

type ChatMessage struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type AudioMessage struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}

func NewEmojiUpdate(stats reaction.Stats) EmojiUpdate {
	if stats == nil {
		stats = reaction.Stats{}
	}
	return EmojiUpdate{Type: TypeEmojiUpdate, Stats: stats}
}
