package transport

import (
	"encoding/json"

	"chat-console/internal/domain"
)

// Action это имя действия в конверте протокола шлюза.
type Action string

// Входящие действия. Набор закрыт: все остальное игнорируется.
const (
	ActionEnterRoomToken      Action = "enterRoomToken"
	ActionHistory             Action = "history"
	ActionChat                Action = "chat"
	ActionReaction            Action = "reaction"
	ActionDelChat             Action = "delChat"
	ActionBlockEnterRoomToken Action = "blockEnterRoomToken"
)

// Действия, которые только отправляются.
const (
	ActionBlock    Action = "block"
	ActionUnblock  Action = "unblock"
	ActionExitRoom Action = "exitRoom"
)

var inboundActions = map[Action]struct{}{
	ActionEnterRoomToken:      {},
	ActionHistory:             {},
	ActionChat:                {},
	ActionReaction:            {},
	ActionDelChat:             {},
	ActionBlockEnterRoomToken: {},
}

// Inbound сообщает, входит ли действие в закрытый набор входящих.
func (a Action) Inbound() bool {
	_, ok := inboundActions[a]
	return ok
}

// Envelope это конверт {action, data}, общий для обоих направлений.
type Envelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// JoinRequest это вход в комнату по токенам.
type JoinRequest struct {
	AuthToken string `json:"authToken"`
	RoomToken string `json:"roomToken"`
}

// HistoryRequest это запрос страницы истории.
type HistoryRequest struct {
	Page      int    `json:"page"`
	Size      int    `json:"size"`
	AuthToken string `json:"authToken"`
}

// ChatRequest это отправка сообщения. Reply несет денормализованную копию
// сообщения, на которое отвечают.
type ChatRequest struct {
	RoomID  string             `json:"roomId"`
	UUID    string             `json:"uuid"`
	CType   string             `json:"ctype"`
	Mesg    string             `json:"mesg"`
	ReplyID string             `json:"replyId,omitempty"`
	Reply   *domain.RawMessage `json:"reply,omitempty"`
}

// ReactionRequest это реакция на сообщение.
type ReactionRequest struct {
	RoomID   string              `json:"roomId"`
	ID       string              `json:"id,omitempty"`
	UUID     string              `json:"uuid,omitempty"`
	Reaction domain.ReactionKind `json:"reaction"`
}

// DeleteRequest это удаление собственного сообщения.
type DeleteRequest struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id,omitempty"`
	UUID   string `json:"uuid,omitempty"`
}

// BlockRequest это блокировка или разблокировка участника.
type BlockRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ExitRequest это выход из комнаты.
type ExitRequest struct {
	AuthToken string `json:"authToken"`
}

// HistoryPage это ответ на запрос истории. List приходит от новых к старым.
type HistoryPage struct {
	Page int                 `json:"page"`
	Size int                 `json:"size"`
	List []domain.RawMessage `json:"list"`
}

// ReactionEvent это новый полный снимок реакций сообщения.
type ReactionEvent struct {
	ID        domain.FlexID  `json:"id"`
	UUID      string         `json:"uuid"`
	Reactions map[string]int `json:"reactions"`
}

// Keys возвращает непустые ключи сообщения, к которому относится событие.
func (e ReactionEvent) Keys() []string {
	return keys(e.UUID, e.ID)
}

// DeleteEvent это уведомление об удалении сообщения.
type DeleteEvent struct {
	ID   domain.FlexID `json:"id"`
	UUID string        `json:"uuid"`
}

// Keys возвращает непустые ключи удаленного сообщения.
func (e DeleteEvent) Keys() []string {
	return keys(e.UUID, e.ID)
}

func keys(uuid string, id domain.FlexID) []string {
	out := make([]string, 0, 2)
	if uuid != "" {
		out = append(out, uuid)
	}
	if id != "" {
		out = append(out, id.String())
	}
	return out
}
