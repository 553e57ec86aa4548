package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-console/internal/metrics"
)

var (
	// ErrNotConnected возвращается при отправке до установления соединения.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrAlreadyConnected возвращается при повторном Connect на том же транспорте.
	ErrAlreadyConnected = errors.New("transport is already connected")
	// ErrClosed возвращается после Close или после обрыва соединения.
	ErrClosed = errors.New("transport is closed")
)

// State это состояние соединения, о котором сообщает транспорт.
type State int

const (
	StateOpened State = iota
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateFunc получает уведомления о смене состояния соединения.
type StateFunc func(state State, err error)

// HandlerFunc обрабатывает полезную нагрузку входящего действия.
type HandlerFunc func(data json.RawMessage)

// wsConn описывает методы *websocket.Conn, которые использует транспорт.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, endpoint string) (wsConn, error)

func gorillaDial(d *websocket.Dialer) dialFunc {
	return func(ctx context.Context, endpoint string) (wsConn, error) {
		conn, resp, err := d.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
			}
			return nil, err
		}
		return conn, nil
	}
}

// Option определяет функциональную опцию транспорта.
type Option func(*Transport)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMetrics устанавливает коллекторы метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithWriteTimeout ограничивает время записи одного конверта.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// WithDialer подменяет websocket-дайлер.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dial = gorillaDial(d)
		}
	}
}

// Transport владеет одним постоянным соединением со шлюзом чата.
// Экземпляр принадлежит одной сессии и не переиспользуется после Close.
type Transport struct {
	id           string
	dial         dialFunc
	writeTimeout time.Duration
	log          *slog.Logger
	metrics      *metrics.Metrics

	mu         sync.Mutex
	conn       wsConn
	connecting bool
	closed     bool
	handlers   map[Action]HandlerFunc
	done       chan struct{}
}

// New создает транспорт без соединения.
func New(opts ...Option) *Transport {
	t := &Transport{
		id:           uuid.NewString(),
		dial:         gorillaDial(websocket.DefaultDialer),
		writeTimeout: 10 * time.Second,
		log:          slog.Default(),
		handlers:     make(map[Action]HandlerFunc),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("transport_id", t.id)
	return t
}

// Connect открывает соединение. Ошибка набора номера сообщается через
// onState(StateError) и дополнительно возвращается вызывающему.
// StateOpened доставляется синхронно до начала чтения, поэтому обработчики,
// зарегистрированные в нем, не пропустят ни одного входящего события.
func (t *Transport) Connect(ctx context.Context, endpoint string, onState StateFunc) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrClosed
	case t.conn != nil || t.connecting:
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connecting = true
	t.mu.Unlock()

	conn, err := t.dial(ctx, endpoint)

	t.mu.Lock()
	t.connecting = false
	if err != nil {
		t.mu.Unlock()
		err = fmt.Errorf("dial gateway: %w", err)
		t.log.Warn("Gateway dial failed", "error", err)
		if onState != nil {
			onState(StateError, err)
		}
		return err
	}
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.mu.Unlock()

	t.log.Info("Gateway connection opened", "endpoint", endpoint)
	if onState != nil {
		onState(StateOpened, nil)
	}
	go t.readLoop(conn, onState)
	return nil
}

// Handle регистрирует обработчик входящего действия, заменяя предыдущий.
func (t *Transport) Handle(action Action, h HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[action] = h
}

// Done закрывается, когда цикл чтения завершился или транспорт закрыт
// без соединения.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// readLoop читает конверты строго по порядку и передает их в dispatch.
func (t *Transport) readLoop(conn wsConn, onState StateFunc) {
	defer close(t.done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closedByUs := t.closed
			t.closed = true
			t.conn = nil
			t.mu.Unlock()

			state, cause := StateClosed, error(nil)
			if !closedByUs && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				state, cause = StateError, err
			}
			if closedByUs {
				t.log.Debug("Gateway connection closed locally")
			} else {
				t.log.Warn("Gateway connection lost", "state", state.String(), "error", err)
			}
			if onState != nil {
				onState(state, cause)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("Dropping undecodable gateway frame", "error", err, "size", len(data))
			t.metrics.Dropped("undecodable_frame")
			continue
		}
		t.dispatch(env)
	}
}

// dispatch это единственная точка мультиплексирования входящих событий.
// Неизвестные действия игнорируются.
func (t *Transport) dispatch(env Envelope) bool {
	if !env.Action.Inbound() {
		t.log.Debug("Ignoring unknown gateway action", "action", string(env.Action))
		t.metrics.Unknown()
		return false
	}

	t.mu.Lock()
	h := t.handlers[env.Action]
	t.mu.Unlock()

	if h == nil {
		t.log.Debug("No handler registered for gateway action", "action", string(env.Action))
		return false
	}
	t.metrics.Inbound(string(env.Action))
	h(env.Data)
	return true
}

// JoinWithToken отправляет вход в комнату.
func (t *Transport) JoinWithToken(authToken, roomToken string) error {
	return t.send(ActionEnterRoomToken, JoinRequest{AuthToken: authToken, RoomToken: roomToken})
}

// FetchHistory запрашивает страницу истории.
func (t *Transport) FetchHistory(page, size int, authToken string) error {
	return t.send(ActionHistory, HistoryRequest{Page: page, Size: size, AuthToken: authToken})
}

// SendChat отправляет сообщение.
func (t *Transport) SendChat(req ChatRequest) error {
	return t.send(ActionChat, req)
}

// React отправляет реакцию.
func (t *Transport) React(req ReactionRequest) error {
	return t.send(ActionReaction, req)
}

// DeleteChat отправляет удаление сообщения.
func (t *Transport) DeleteChat(req DeleteRequest) error {
	return t.send(ActionDelChat, req)
}

// Block отправляет блокировку участника.
func (t *Transport) Block(req BlockRequest) error {
	return t.send(ActionBlock, req)
}

// Unblock отправляет разблокировку участника.
func (t *Transport) Unblock(req BlockRequest) error {
	return t.send(ActionUnblock, req)
}

// ExitRoom отправляет выход из комнаты.
func (t *Transport) ExitRoom(authToken string) error {
	return t.send(ActionExitRoom, ExitRequest{AuthToken: authToken})
}

func (t *Transport) send(action Action, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", action, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		err := ErrNotConnected
		if t.closed {
			err = ErrClosed
		}
		t.metrics.Outbound(string(action), err)
		return err
	}

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	err = t.conn.WriteJSON(Envelope{Action: action, Data: data})
	t.metrics.Outbound(string(action), err)
	if err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}
	t.log.Debug("Gateway operation sent", "action", string(action))
	return nil
}

// Close закрывает соединение. Повторный вызов ничего не делает.
// Close не ждет завершения цикла чтения, чтобы его можно было вызывать
// из обработчиков и под внешними блокировками.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		// Цикл чтения не запускался.
		close(t.done)
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close gateway connection: %w", err)
	}
	return nil
}
