package ports

import (
	"context"

	"chat-console/internal/domain"
	"chat-console/internal/transport"
)

// TokenIssuer выдает пару токенов для входа в комнату.
type TokenIssuer interface {
	FetchChatToken(ctx context.Context, req domain.TokenRequest) (domain.Tokens, error)
}

// Translator переводит текст сообщения.
type Translator interface {
	TranslateText(ctx context.Context, req domain.TranslateRequest) (domain.TranslateResult, error)
}

// RoomLister возвращает список комнат, видимых оператору.
type RoomLister interface {
	ListRooms(ctx context.Context, operator domain.Operator) ([]domain.Room, error)
}

// Clipboard записывает текст в локальный буфер обмена.
type Clipboard interface {
	WriteAll(text string) error
}

// ChatTransport это постоянное соединение со шлюзом чата.
// Все исходящие операции работают по принципу fire-and-forget:
// результат приходит асинхронно через зарегистрированные обработчики.
type ChatTransport interface {
	Connect(ctx context.Context, endpoint string, onState transport.StateFunc) error
	Handle(action transport.Action, h transport.HandlerFunc)
	JoinWithToken(authToken, roomToken string) error
	FetchHistory(page, size int, authToken string) error
	SendChat(req transport.ChatRequest) error
	React(req transport.ReactionRequest) error
	DeleteChat(req transport.DeleteRequest) error
	Block(req transport.BlockRequest) error
	Unblock(req transport.BlockRequest) error
	ExitRoom(authToken string) error
	Close() error
}
