package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind 事件类型。会话级事件的 Key 不带 ID；实体级事件（如某个问题的新回答）带 ID。
type Kind string

const (
	KindNewMessage       Kind = "new_message"
	KindChatDisconnected Kind = "chat_disconnected"
	KindNewQuestion      Kind = "new_question"
	KindNewAnswer        Kind = "new_answer"
	KindQuestionLiked    Kind = "question_liked"
	KindQuestionViewed   Kind = "question_viewed"
)

// Client-to-server events.
const EventJoinUserRoom = "join_user_room"

// Key identifies one subscription in the dispatch table.
type Key struct {
	Kind Kind
	ID   string
}

func SessionKey(kind Kind) Key           { return Key{Kind: kind} }
func EntityKey(kind Kind, id string) Key { return Key{Kind: kind, ID: id} }

// String is the event name used on the wire: kind or kind_<id>.
func (k Key) String() string {
	if k.ID == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "_" + k.ID
}

var (
	ErrEmptyKind    = errors.New("realtime: empty event kind")
	ErrKeyCollision = errors.New("realtime: event name already bound to another key")
	ErrNotConnected = errors.New("realtime: not connected")
	ErrClosed       = errors.New("realtime: connection closed")
)

// Handler receives the raw payload of one event. Handlers run on the
// connection's reader goroutine, one at a time, in arrival order.
type Handler func(data json.RawMessage)

// Envelope is one frame on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("realtime: encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}
