package protocol

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tokenroom-relay/domain"
	"tokenroom-relay/hub"
	"tokenroom-relay/metrics"
	"tokenroom-relay/reaction"
)

// Handler routes client messages to the room registry and the reaction
// store and fans the results out to room members.
type Handler struct {
	rooms     *hub.Registry
	reactions *reaction.Store
	metrics   *metrics.Metrics
	now       func() time.Time

	// Serializes a rating with its fanout, and a token room join with its
	// snapshot push, so members never see a token's counts go backwards.
	rateMu sync.Mutex
}

func NewHandler(rooms *hub.Registry, reactions *reaction.Store, m *metrics.Metrics) *Handler {
	if m != nil {
		rooms.OnRoomCount(m.SetRooms)
	}
	return &Handler{
		rooms:     rooms,
		reactions: reactions,
		metrics:   m,
		now:       time.Now,
	}
}

func (h *Handler) Connect(conn domain.Connection) {
	h.metrics.ConnectionOpened()
	slog.Info("client connected", "clientId", conn.ID())
}

// Disconnect removes conn from its room. It is the terminal transition:
// later messages from conn are ignored.
func (h *Handler) Disconnect(conn domain.Connection) {
	if !conn.Session().MarkDisconnected() {
		return
	}
	room := h.rooms.Leave(conn)
	h.metrics.ConnectionClosed()
	slog.Info("client disconnected", "clientId", conn.ID(), "room", room)
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	if conn.Session().Disconnected() {
		h.drop(conn, "disconnected", "")
		return
	}

	msg, err := Decode(data)
	if err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		h.metrics.Dropped("invalid_json")
		return
	}
	h.metrics.Received(msg.Kind())

	switch m := msg.(type) {
	case JoinRoom:
		h.joinRoom(conn, m)
	case Chat:
		h.chat(conn, m)
	case RateToken:
		h.rateToken(conn, m)
	case UpdateUsername:
		h.updateUsername(conn, m)
	case Audio:
		h.audio(conn, m)
	case Unknown:
		h.drop(conn, "unknown_type", m.Type)
	}
}

func (h *Handler) joinRoom(conn domain.Connection, m JoinRoom) {
	if m.RoomID == "" {
		h.drop(conn, "missing_field", TypeJoinRoom)
		return
	}

	token, isTokenRoom := reaction.TokenFromRoom(m.RoomID)
	if !isTokenRoom {
		h.rooms.Join(conn, m.RoomID)
		return
	}

	h.rateMu.Lock()
	defer h.rateMu.Unlock()

	h.rooms.Join(conn, m.RoomID)

	data, err := json.Marshal(NewEmojiUpdate(h.reactions.Snapshot(token)))
	if err != nil {
		slog.Error("marshal emoji update", "token", token, "error", err)
		return
	}
	h.deliver(conn, data, TypeEmojiUpdate)
}

func (h *Handler) chat(conn domain.Connection, m Chat) {
	room, joined := h.rooms.RoomOf(conn)
	if !joined {
		h.drop(conn, "not_joined", TypeChat)
		return
	}
	if m.Username == "" || m.Content == "" {
		h.drop(conn, "missing_field", TypeChat)
		return
	}

	data, err := json.Marshal(ChatMessage{
		Type:      TypeChat,
		RoomID:    room,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		slog.Error("marshal chat", "room", room, "error", err)
		return
	}

	n := h.broadcast(room, data, TypeChat, nil)
	slog.Debug("chat broadcast", "room", room, "clientId", conn.ID(), "delivered", n)
}

func (h *Handler) rateToken(conn domain.Connection, m RateToken) {
	h.rateMu.Lock()
	defer h.rateMu.Unlock()

	stats, ok := h.reactions.Rate(m.TokenAddress, m.Emoji)
	if !ok {
		h.drop(conn, "missing_field", TypeRateToken)
		return
	}
	h.metrics.Rated()

	data, err := json.Marshal(NewEmojiUpdate(stats))
	if err != nil {
		slog.Error("marshal emoji update", "token", m.TokenAddress, "error", err)
		return
	}

	room := reaction.RoomForToken(m.TokenAddress)
	n := h.broadcast(room, data, TypeEmojiUpdate, nil)
	slog.Debug("token rated", "token", m.TokenAddress, "emoji", m.Emoji, "clientId", conn.ID(), "delivered", n)
}

func (h *Handler) updateUsername(conn domain.Connection, m UpdateUsername) {
	if m.Username == "" {
		h.drop(conn, "missing_field", TypeUpdateUsername)
		return
	}
	conn.Session().SetUsername(m.Username)
	slog.Debug("username updated", "clientId", conn.ID(), "username", m.Username)
}

func (h *Handler) audio(conn domain.Connection, m Audio) {
	room, joined := h.rooms.RoomOf(conn)
	if !joined {
		h.drop(conn, "not_joined", TypeAudio)
		return
	}
	if len(m.Data) == 0 {
		h.drop(conn, "missing_field", TypeAudio)
		return
	}

	data, err := json.Marshal(AudioMessage{Type: TypeAudio, RoomID: room, Data: m.Data})
	if err != nil {
		slog.Warn("marshal audio", "room", room, "clientId", conn.ID(), "error", err)
		return
	}

	h.broadcast(room, data, TypeAudio, conn)
}

// broadcast sends data to every member of room except exclude and returns
// how many members accepted the frame. Members that are not writable are
// skipped and stay in the room.
func (h *Handler) broadcast(room string, data []byte, kind string, exclude domain.Connection) int {
	delivered := 0
	for _, member := range h.rooms.Members(room) {
		if exclude != nil && member.ID() == exclude.ID() {
			continue
		}
		if h.deliver(member, data, kind) {
			delivered++
		}
	}
	return delivered
}

func (h *Handler) deliver(conn domain.Connection, data []byte, kind string) bool {
	if !conn.Open() {
		h.metrics.Skipped(kind)
		slog.Debug("skipping closed client", "clientId", conn.ID(), "type", kind)
		return false
	}
	if err := conn.Send(data); err != nil {
		h.metrics.Skipped(kind)
		slog.Debug("delivery skipped", "clientId", conn.ID(), "type", kind, "error", err)
		return false
	}
	h.metrics.Delivered(kind)
	return true
}

func (h *Handler) drop(conn domain.Connection, reason, kind string) {
	h.metrics.Dropped(reason)
	slog.Debug("message dropped", "clientId", conn.ID(), "reason", reason, "type", kind)
}
