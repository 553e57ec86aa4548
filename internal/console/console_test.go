package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-console/internal/controller"
	"chat-console/internal/domain"
	"chat-console/internal/pkg/term"
	"chat-console/internal/session"
)

type mockIntents struct {
	mock.Mock
}

func (m *mockIntents) Send(text string) error    { return m.Called(text).Error(0) }
func (m *mockIntents) Reply(key string) error    { return m.Called(key).Error(0) }
func (m *mockIntents) CancelReply() error        { return m.Called().Error(0) }
func (m *mockIntents) Delete(key string) error   { return m.Called(key).Error(0) }
func (m *mockIntents) Block(userID string) error { return m.Called(userID).Error(0) }
func (m *mockIntents) Exit() error               { return m.Called().Error(0) }
func (m *mockIntents) Hover(key string) controller.MenuState {
	return m.Called(key).Get(0).(controller.MenuState)
}

func (m *mockIntents) React(key string, kind domain.ReactionKind) error {
	return m.Called(key, kind).Error(0)
}

func (m *mockIntents) Translate(ctx context.Context, key string) (domain.Message, error) {
	args := m.Called(key)
	return args.Get(0).(domain.Message), args.Error(1)
}

func (m *mockIntents) RevertTranslation(key string) (domain.Message, error) {
	args := m.Called(key)
	return args.Get(0).(domain.Message), args.Error(1)
}

func (m *mockIntents) Copy(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *mockIntents) Unblock(ctx context.Context, userID string) error {
	return m.Called(userID).Error(0)
}

func (m *mockIntents) OpenReactionMenu(key string) (controller.MenuState, error) {
	args := m.Called(key)
	return args.Get(0).(controller.MenuState), args.Error(1)
}

func (m *mockIntents) OpenOptionsMenu(key string) (controller.MenuState, error) {
	args := m.Called(key)
	return args.Get(0).(controller.MenuState), args.Error(1)
}

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) Filter(query string) []domain.Room {
	return m.Called(query).Get(0).([]domain.Room)
}

func (m *mockRooms) Select(ctx context.Context, roomID string) error {
	return m.Called(roomID).Error(0)
}

func (m *mockRooms) SelectIndex(ctx context.Context, query string, n int) error {
	return m.Called(query, n).Error(0)
}

func (m *mockRooms) Selected() (domain.Room, bool) {
	args := m.Called()
	return args.Get(0).(domain.Room), args.Bool(1)
}

type fakeSessions struct {
	snap session.Snapshot
	ok   bool
}

func (f fakeSessions) Snapshot() (session.Snapshot, bool) { return f.snap, f.ok }

type fixture struct {
	intents *mockIntents
	rooms   *mockRooms
	out     *bytes.Buffer
	console *Console
}

func newFixture(t *testing.T, input string, sessions Sessions) *fixture {
	t.Helper()
	f := &fixture{intents: &mockIntents{}, rooms: &mockRooms{}, out: &bytes.Buffer{}}
	if sessions == nil {
		sessions = fakeSessions{}
	}
	f.console = New(f.intents, f.rooms, sessions, term.NewPipe(strings.NewReader(input), io.Discard), f.out,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("Текст отправляется как сообщение", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.intents.On("Send", "hello there").Return(nil).Once()

		quit, err := f.console.Execute(ctx, "  hello there ")
		require.NoError(t, err)
		assert.False(t, quit)
		f.intents.AssertExpectations(t)
	})

	t.Run("Пустая строка игнорируется", func(t *testing.T) {
		f := newFixture(t, "", nil)
		_, err := f.console.Execute(ctx, "   ")
		assert.NoError(t, err)
		f.intents.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Команды с ключом", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.intents.On("Reply", "m1").Return(nil).Once()
		f.intents.On("Delete", "m2").Return(nil).Once()
		f.intents.On("Block", "u9").Return(nil).Once()
		f.intents.On("Unblock", "u9").Return(nil).Once()
		f.intents.On("CancelReply").Return(nil).Once()
		f.intents.On("Exit").Return(nil).Once()
		f.intents.On("React", "m1", domain.ReactionHeart).Return(nil).Once()

		for _, line := range []string{"/reply m1", "/del m2", "/block u9", "/unblock u9", "/cancel", "/exit", "/react m1 HEART"} {
			_, err := f.console.Execute(ctx, line)
			require.NoError(t, err, line)
		}
		f.intents.AssertExpectations(t)
	})

	t.Run("Ошибка контроллера возвращается", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.intents.On("Delete", "m1").Return(controller.ErrNotOwnMessage)

		_, err := f.console.Execute(ctx, "/del m1")
		assert.ErrorIs(t, err, controller.ErrNotOwnMessage)
	})

	t.Run("Неверное число аргументов", func(t *testing.T) {
		f := newFixture(t, "", nil)
		for _, line := range []string{"/reply", "/react m1", "/del a b", "/menu m1", "/menu m1 other", "/join"} {
			_, err := f.console.Execute(ctx, line)
			assert.ErrorIs(t, err, errUsage, line)
		}
	})

	t.Run("Неизвестная команда", func(t *testing.T) {
		f := newFixture(t, "", nil)
		_, err := f.console.Execute(ctx, "/dance")
		assert.ErrorIs(t, err, errUnknownCommand)
	})

	t.Run("Перевод и копирование печатают результат", func(t *testing.T) {
		f := newFixture(t, "", nil)
		translated := domain.Message{ID: "1", SenderID: "u1", Visible: true,
			Content:     domain.Content{Kind: domain.KindText, Text: "안녕"},
			Translation: &domain.Translation{Text: "hello", OriginalLanguage: "ko"}}
		f.intents.On("Translate", "1").Return(translated, nil).Once()
		f.intents.On("Copy", "1").Return("hello", nil).Once()

		_, err := f.console.Execute(ctx, "/tr 1")
		require.NoError(t, err)
		_, err = f.console.Execute(ctx, "/copy 1")
		require.NoError(t, err)

		out := f.out.String()
		assert.Contains(t, out, "[1] u1: hello")
		assert.Contains(t, out, "(translated from ko)")
		assert.Contains(t, out, "copied: hello")
	})

	t.Run("Меню и наведение", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.intents.On("OpenReactionMenu", "1").Return(controller.MenuState{MessageKey: "1", Kind: controller.MenuReactions}, nil).Once()
		f.intents.On("OpenOptionsMenu", "1").Return(controller.MenuState{}, nil).Once()
		f.intents.On("Hover", "2").Return(controller.MenuState{Hovered: "2"}).Once()

		for _, line := range []string{"/menu 1 reactions", "/menu 1 o", "/hover 2"} {
			_, err := f.console.Execute(ctx, line)
			require.NoError(t, err)
		}
		out := f.out.String()
		assert.Contains(t, out, "reactions for 1: like|heart|laugh|surprise|sad")
		assert.Contains(t, out, "menu closed")
		assert.Contains(t, out, "hovering 2")
	})

	t.Run("Выход", func(t *testing.T) {
		f := newFixture(t, "", nil)
		quit, err := f.console.Execute(ctx, "/quit")
		require.NoError(t, err)
		assert.True(t, quit)
	})
}

func TestRoomsCommands(t *testing.T) {
	ctx := context.Background()
	list := []domain.Room{{ID: "r1", Name: "Morning Live"}, {ID: "r3", Name: "live replay"}}

	t.Run("Номер берется из последнего списка", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.rooms.On("Filter", "live").Return(list)
		f.rooms.On("Selected").Return(list[0], true)
		f.rooms.On("SelectIndex", "live", 2).Return(nil).Once()

		_, err := f.console.Execute(ctx, "/rooms live")
		require.NoError(t, err)
		_, err = f.console.Execute(ctx, "/join 2")
		require.NoError(t, err)

		out := f.out.String()
		assert.Contains(t, out, "> 1. Morning Live (r1)")
		assert.Contains(t, out, "  2. live replay (r3)")
		f.rooms.AssertExpectations(t)
	})

	t.Run("Выбор по идентификатору", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.rooms.On("Select", "r3").Return(errors.New("token"))

		_, err := f.console.Execute(ctx, "/join r3")
		assert.Error(t, err)
	})

	t.Run("Пустой список", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.rooms.On("Filter", "zzz").Return([]domain.Room{})

		_, err := f.console.Execute(ctx, "/rooms zzz")
		require.NoError(t, err)
		assert.Contains(t, f.out.String(), "(no rooms)")
	})
}

func TestTimelineCommand(t *testing.T) {
	t.Run("Без комнаты", func(t *testing.T) {
		f := newFixture(t, "", nil)
		_, err := f.console.Execute(context.Background(), "/timeline")
		require.NoError(t, err)
		assert.Contains(t, f.out.String(), "(no room selected)")
	})

	t.Run("Лента с заголовком", func(t *testing.T) {
		snap := session.Snapshot{
			Room:         domain.Room{ID: "r1", Name: "Morning"},
			State:        session.StateLive,
			PendingReply: "1",
			Messages: []domain.Message{
				{ID: "1", SenderID: "u1", Visible: true, Content: domain.Content{Kind: domain.KindText, Text: "hi"}},
			},
		}
		f := newFixture(t, "", fakeSessions{snap: snap, ok: true})
		_, err := f.console.Execute(context.Background(), "/timeline")
		require.NoError(t, err)

		out := f.out.String()
		assert.Contains(t, out, "== Morning (r1) live replying to 1")
		assert.Contains(t, out, " [1] u1: hi")
	})
}

func TestRun(t *testing.T) {
	t.Run("Ошибки печатаются, цикл продолжается до /quit", func(t *testing.T) {
		f := newFixture(t, "/dance\nhello\n/quit\nnever sent\n", nil)
		f.intents.On("Send", "hello").Return(controller.ErrNotLive).Once()

		require.NoError(t, f.console.Run(context.Background()))

		out := f.out.String()
		assert.Contains(t, out, "error: unknown command: /dance")
		assert.Contains(t, out, "error: "+controller.ErrNotLive.Error())
		f.intents.AssertNotCalled(t, "Send", "never sent")
	})

	t.Run("Конец ввода завершает цикл", func(t *testing.T) {
		f := newFixture(t, "", nil)
		assert.NoError(t, f.console.Run(context.Background()))
	})

	t.Run("Отмененный контекст", func(t *testing.T) {
		f := newFixture(t, "hello\n", nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, f.console.Run(ctx))
		f.intents.AssertNotCalled(t, "Send", mock.Anything)
	})
}

func TestOnEvent(t *testing.T) {
	f := newFixture(t, "", nil)

	f.console.OnEvent(session.Event{Kind: session.EventAppended, Message: domain.Message{
		UUID: "u-9", SenderID: "org_v1", Mine: true, Visible: true,
		Content: domain.Content{Kind: domain.KindText, Text: "new"},
	}})
	f.console.OnEvent(session.Event{Kind: session.EventState, RoomID: "r1", State: session.StateIdle, Err: session.ErrHandshakeTimeout})
	f.console.OnEvent(session.Event{Kind: session.EventRemoved, Message: domain.Message{ID: "3"}})
	f.console.OnEvent(session.Event{Kind: session.EventCleared})

	out := f.out.String()
	assert.Contains(t, out, "*[u-9] org_v1: new")
	assert.Contains(t, out, "[r1] idle: "+session.ErrHandshakeTimeout.Error())
	assert.Contains(t, out, "- message 3 deleted")
	assert.Contains(t, out, "timeline cleared")
}
