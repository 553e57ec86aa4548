package session

import (
	"encoding/json"
	"fmt"

	"chat-console/internal/domain"
)

// State это состояние сессии комнаты.
type State int

const (
	StateIdle State = iota
	StateTokenRequested
	StateConnecting
	StateJoining
	StateJoined
	StateHistoryLoading
	StateLive
	StateBlocked
	StateExited
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateTokenRequested: "token_requested",
	StateConnecting:     "connecting",
	StateJoining:        "joining",
	StateJoined:         "joined",
	StateHistoryLoading: "history_loading",
	StateLive:           "live",
	StateBlocked:        "blocked",
	StateExited:         "exited",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalJSON отдает имя состояния.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// handshaking сообщает, что сессия еще не дошла до Live.
func (s State) handshaking() bool {
	switch s {
	case StateTokenRequested, StateConnecting, StateJoining, StateJoined, StateHistoryLoading:
		return true
	}
	return false
}

// EventKind это вид уведомления для слоя отображения.
type EventKind string

const (
	EventState    EventKind = "state"
	EventReplaced EventKind = "replaced"
	EventAppended EventKind = "appended"
	EventUpdated  EventKind = "updated"
	EventRemoved  EventKind = "removed"
	EventCleared  EventKind = "cleared"
)

// Event это уведомление об изменении сессии или ее ленты.
type Event struct {
	Kind      EventKind
	SessionID string
	RoomID    string
	State     State
	Message   domain.Message
	Err       error
}

// Listener получает события сессии. Вызывается под блокировкой менеджера,
// поэтому не должен обращаться к Manager.
type Listener func(Event)
