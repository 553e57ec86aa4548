// Package session ведет рукопожатие комнаты и владеет единственной живой
// сессией консоли.
//
// Все асинхронные ответы (токены, события шлюза, таймеры) привязаны к
// конкретной сессии. Перед изменением общего состояния каждый из них
// проверяет, что его сессия все еще текущая; устаревшие ответы
// отбрасываются и учитываются в метриках.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"chat-console/internal/domain"
	"chat-console/internal/metrics"
	"chat-console/internal/ports"
	"chat-console/internal/timeline"
	"chat-console/internal/transport"
)

var (
	// ErrNoSession возвращается, когда ни одна комната не открыта.
	ErrNoSession = errors.New("no active session")
	// ErrSuperseded возвращается, когда сессию сменила более новая.
	ErrSuperseded = errors.New("session superseded by a newer one")
	// ErrHandshakeTimeout возвращается, когда рукопожатие не уложилось во время.
	ErrHandshakeTimeout = errors.New("room handshake timed out")
	// ErrManagerClosed возвращается после Close.
	ErrManagerClosed = errors.New("session manager is closed")
)

// TransportFactory создает новое соединение для каждой сессии.
type TransportFactory func(room domain.Room) ports.ChatTransport

// ReconnectPolicy ограничивает повторные рукопожатия после обрыва живой сессии.
// MaxAttempts == 0 отключает переподключение.
type ReconnectPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config это параметры рукопожатия.
type Config struct {
	GatewayURL       string
	RoomType         string
	HistoryPageSize  int
	TokenTimeout     time.Duration
	HandshakeTimeout time.Duration
	ImageBaseURL     string
	Reconnect        ReconnectPolicy
}

// Option определяет функциональную опцию менеджера.
type Option func(*Manager)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics устанавливает коллекторы метрик.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithListener добавляет слушателя событий.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// Manager владеет текущей сессией и сериализует все изменения ее состояния.
type Manager struct {
	issuer       ports.TokenIssuer
	newTransport TransportFactory
	operator     domain.Operator
	cfg          Config
	log          *slog.Logger
	metrics      *metrics.Metrics
	listeners    []Listener
	clock        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	current    *Session
	generation uint64
	closed     bool
}

// NewManager создает менеджер без открытой комнаты.
func NewManager(issuer ports.TokenIssuer, factory TransportFactory, operator domain.Operator, cfg Config, opts ...Option) *Manager {
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		issuer:       issuer,
		newTransport: factory,
		operator:     operator,
		cfg:          cfg,
		log:          slog.Default(),
		clock:        time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "session")
	return m
}

// Subscribe добавляет слушателя событий после создания менеджера.
func (m *Manager) Subscribe(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Open закрывает текущую сессию и запускает рукопожатие для комнаты.
// Возвращает управление, когда соединение открыто; вход и загрузка истории
// завершаются асинхронно. Выход из прежней комнаты всегда отправляется
// до любых действий для новой.
func (m *Manager) Open(ctx context.Context, room domain.Room) error {
	return m.open(ctx, room, nil)
}

// Restart повторяет рукопожатие для текущей комнаты с самого начала.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	return m.Open(ctx, s.room)
}

func (m *Manager) open(ctx context.Context, room domain.Room, expect *uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if expect != nil && *expect != m.generation {
		m.mu.Unlock()
		return ErrSuperseded
	}
	if prev := m.current; prev != nil {
		m.exitLocked(prev)
	}
	m.generation++
	s := &Session{
		mgr:        m,
		id:         uuid.NewString(),
		generation: m.generation,
		room:       room,
		startedAt:  m.clock(),
	}
	s.timeline = timeline.New(
		timeline.NewClassifier(m.cfg.ImageBaseURL, m.operator.PeerKey(), room.ID, m.log),
		timeline.WithLogger(m.log.With("room_id", room.ID)),
		timeline.WithMetrics(m.metrics),
	)
	m.current = s
	m.setState(s, StateTokenRequested, nil)
	m.mu.Unlock()

	log := m.log.With("session_id", s.id, "room_id", room.ID)
	log.Info("Requesting chat tokens")

	tokens, err := m.fetchTokens(ctx, room)

	m.mu.Lock()
	if !m.isCurrent(s) {
		m.mu.Unlock()
		m.metrics.Stale("token")
		log.Debug("Discarding token response of superseded session")
		return ErrSuperseded
	}
	if err != nil {
		m.setState(s, StateIdle, err)
		m.mu.Unlock()
		log.Error("Failed to obtain chat tokens", "error", err)
		return err
	}
	s.tokens = tokens
	s.transport = m.newTransport(room)
	m.setState(s, StateConnecting, nil)
	m.armHandshakeTimer(s)
	tr := s.transport
	m.mu.Unlock()

	endpoint, err := gatewayEndpoint(m.cfg.GatewayURL, tokens.AuthToken)
	if err == nil {
		err = tr.Connect(ctx, endpoint, m.stateHandler(s))
	}
	if err != nil {
		m.mu.Lock()
		// обрыв мог уже прийти через onState и перевести сессию в Idle
		if m.isCurrent(s) && s.state == StateConnecting {
			m.failLocked(s, fmt.Errorf("connect to gateway: %w", err))
		}
		m.mu.Unlock()
		log.Error("Failed to connect to chat gateway", "error", err)
		return fmt.Errorf("connect to gateway: %w", err)
	}
	return nil
}

func (m *Manager) fetchTokens(ctx context.Context, room domain.Room) (domain.Tokens, error) {
	if m.cfg.TokenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TokenTimeout)
		defer cancel()
	}
	tokens, err := m.issuer.FetchChatToken(ctx, domain.TokenRequest{
		RoomType: m.cfg.RoomType,
		RoomID:   room.ID,
		UserID:   m.operator.PeerKey(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Tokens{}, fmt.Errorf("%w: fetch chat token: %v", ErrHandshakeTimeout, err)
		}
		return domain.Tokens{}, fmt.Errorf("fetch chat token: %w", err)
	}
	if tokens.AuthToken == "" || tokens.RoomToken == "" {
		return domain.Tokens{}, errors.New("fetch chat token: empty token in response")
	}
	return tokens, nil
}

// Exit выходит из текущей комнаты. Выход отправляется, только если токены
// были получены.
func (m *Manager) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	if s == nil {
		return ErrNoSession
	}
	m.exitLocked(s)
	m.current = nil
	m.generation++
	return nil
}

// Close выходит из комнаты и останавливает фоновые переподключения.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if s := m.current; s != nil {
		m.exitLocked(s)
		m.current = nil
		m.generation++
	}
	return nil
}

// WithSession выполняет fn для текущей сессии под блокировкой менеджера.
func (m *Manager) WithSession(fn func(s *Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoSession
	}
	return fn(m.current)
}

// WithSessionID выполняет fn, только если текущая сессия все еще id.
func (m *Manager) WithSessionID(id string, fn func(s *Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoSession
	}
	if m.current.id != id {
		return ErrSuperseded
	}
	return fn(m.current)
}

// Snapshot это неизменяемый снимок текущей сессии.
type Snapshot struct {
	SessionID    string           `json:"sessionId"`
	Room         domain.Room      `json:"room"`
	State        State            `json:"state"`
	Blocked      bool             `json:"blocked"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	PendingReply string           `json:"pendingReply,omitempty"`
	Messages     []domain.Message `json:"-"`
}

// Snapshot возвращает снимок текущей сессии; ok == false, если комнаты нет.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	if s == nil {
		return Snapshot{}, false
	}
	snap := Snapshot{
		SessionID: s.id,
		Room:      s.room,
		State:     s.state,
		Blocked:   s.blocked,
		StartedAt: s.startedAt,
		Messages:  s.timeline.Visible(),
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	if s.reply != nil {
		snap.PendingReply = s.reply.Key()
	}
	return snap, true
}

func (m *Manager) isCurrent(s *Session) bool {
	return m.current == s && s.generation == m.generation
}

// stateHandler привязывает уведомления транспорта к сессии.
func (m *Manager) stateHandler(s *Session) transport.StateFunc {
	return func(state transport.State, err error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isCurrent(s) {
			m.metrics.Stale("transport_state")
			return
		}
		switch state {
		case transport.StateOpened:
			m.onOpened(s)
		default:
			m.onDropped(s, state, err)
		}
	}
}

func (m *Manager) onOpened(s *Session) {
	m.registerHandlers(s)
	m.setState(s, StateJoining, nil)
	if err := s.transport.JoinWithToken(s.tokens.AuthToken, s.tokens.RoomToken); err != nil {
		m.failLocked(s, fmt.Errorf("join room: %w", err))
	}
}

func (m *Manager) onDropped(s *Session, state transport.State, err error) {
	if s.state == StateExited {
		return
	}
	if s.state == StateIdle && s.lastErr != nil {
		// Соединение закрыто после неудачного рукопожатия, причина уже записана.
		m.log.Debug("Connection closed after failed handshake", "session_id", s.id, "state", state.String())
		return
	}
	wasLive := s.state == StateLive
	m.stopTimer(s)
	if err == nil {
		err = fmt.Errorf("gateway connection %s", state)
	}
	m.log.Warn("Chat connection dropped", "session_id", s.id, "state", s.state.String(), "error", err)
	if s.blocked {
		s.lastErr = err
	} else {
		m.setState(s, StateIdle, err)
	}
	if wasLive && m.cfg.Reconnect.MaxAttempts > 0 {
		go m.reconnect(s.generation, s.room)
	}
}

func (m *Manager) registerHandlers(s *Session) {
	tr := s.transport
	tr.Handle(transport.ActionEnterRoomToken, m.bind(s, transport.ActionEnterRoomToken, m.onJoined))
	tr.Handle(transport.ActionHistory, m.bind(s, transport.ActionHistory, m.onHistory))
	tr.Handle(transport.ActionChat, m.bind(s, transport.ActionChat, m.onChat))
	tr.Handle(transport.ActionReaction, m.bind(s, transport.ActionReaction, m.onReaction))
	tr.Handle(transport.ActionDelChat, m.bind(s, transport.ActionDelChat, m.onDelete))
	tr.Handle(transport.ActionBlockEnterRoomToken, m.bind(s, transport.ActionBlockEnterRoomToken, m.onBlocked))
}

// bind оборачивает обработчик проверкой актуальности сессии.
func (m *Manager) bind(s *Session, action transport.Action, fn func(*Session, json.RawMessage)) transport.HandlerFunc {
	return func(data json.RawMessage) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isCurrent(s) {
			m.metrics.Stale(string(action))
			m.log.Debug("Discarding event of superseded session", "action", string(action), "session_id", s.id)
			return
		}
		fn(s, data)
	}
}

func (m *Manager) onJoined(s *Session, _ json.RawMessage) {
	if s.state != StateJoining {
		m.log.Debug("Unexpected join confirmation", "state", s.state.String())
		return
	}
	m.setState(s, StateJoined, nil)
	if err := s.transport.FetchHistory(1, m.cfg.HistoryPageSize, s.tokens.AuthToken); err != nil {
		m.failLocked(s, fmt.Errorf("request history: %w", err))
		return
	}
	m.setState(s, StateHistoryLoading, nil)
}

func (m *Manager) onHistory(s *Session, data json.RawMessage) {
	if s.blocked {
		return
	}
	var page transport.HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		m.log.Error("Failed to decode history page", "error", err)
		m.metrics.Dropped("history_page")
		s.lastErr = fmt.Errorf("decode history: %w", err)
		return
	}
	dropped := s.timeline.ReplaceFromHistory(page.List)
	m.log.Info("History loaded", "session_id", s.id, "messages", s.timeline.Len(), "dropped", dropped)
	m.emit(s, Event{Kind: EventReplaced})
	if s.state != StateLive {
		m.stopTimer(s)
		m.setState(s, StateLive, nil)
	}
}

func (m *Manager) onChat(s *Session, data json.RawMessage) {
	if s.blocked {
		return
	}
	var raw domain.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		m.log.Warn("Failed to decode chat message", "error", err)
		m.metrics.Dropped("chat_event")
		return
	}
	msg, appended, err := s.timeline.AppendIncoming(raw)
	if err != nil {
		return
	}
	kind := EventUpdated
	if appended {
		kind = EventAppended
	}
	m.emit(s, Event{Kind: kind, Message: msg})
}

func (m *Manager) onReaction(s *Session, data json.RawMessage) {
	var ev transport.ReactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		m.log.Warn("Failed to decode reaction event", "error", err)
		m.metrics.Dropped("reaction_event")
		return
	}
	if msg, ok := s.timeline.UpsertReaction(ev.Keys(), domain.NewReactionTally(ev.Reactions)); ok {
		m.emit(s, Event{Kind: EventUpdated, Message: msg})
	}
}

func (m *Manager) onDelete(s *Session, data json.RawMessage) {
	var ev transport.DeleteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		m.log.Warn("Failed to decode delete event", "error", err)
		m.metrics.Dropped("delete_event")
		return
	}
	if msg, ok := s.timeline.MarkDeleted(ev.Keys()...); ok {
		if s.reply != nil && s.reply.SameIdentity(msg) {
			s.reply = nil
		}
		m.emit(s, Event{Kind: EventRemoved, Message: msg})
	}
}

func (m *Manager) onBlocked(s *Session, _ json.RawMessage) {
	m.log.Warn("Operator blocked in room", "session_id", s.id, "room_id", s.room.ID)
	m.block(s)
}

// block очищает ленту и переводит сессию в Blocked.
func (m *Manager) block(s *Session) {
	m.stopTimer(s)
	s.blocked = true
	s.reply = nil
	s.timeline.Clear()
	m.emit(s, Event{Kind: EventCleared})
	m.setState(s, StateBlocked, nil)
}

// exitLocked отправляет выход и закрывает соединение сессии.
func (m *Manager) exitLocked(s *Session) {
	m.stopTimer(s)
	if s.transport != nil {
		if s.tokens.AuthToken != "" {
			if err := s.transport.ExitRoom(s.tokens.AuthToken); err != nil {
				m.log.Debug("Exit room was not delivered", "session_id", s.id, "error", err)
			}
		}
		if err := s.transport.Close(); err != nil {
			m.log.Debug("Failed to close chat transport", "session_id", s.id, "error", err)
		}
	}
	s.reply = nil
	m.setState(s, StateExited, nil)
	m.log.Info("Left room", "session_id", s.id, "room_id", s.room.ID)
}

// failLocked возвращает сессию в Idle и закрывает соединение.
// Повтора нет: оператор может выбрать комнату заново.
func (m *Manager) failLocked(s *Session, err error) {
	m.stopTimer(s)
	if s.transport != nil {
		_ = s.transport.Close()
	}
	m.setState(s, StateIdle, err)
	m.log.Error("Room handshake failed", "session_id", s.id, "room_id", s.room.ID, "error", err)
}

func (m *Manager) armHandshakeTimer(s *Session) {
	if m.cfg.HandshakeTimeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(m.cfg.HandshakeTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isCurrent(s) || !s.state.handshaking() {
			return
		}
		m.failLocked(s, fmt.Errorf("%w in state %s", ErrHandshakeTimeout, s.state))
	})
}

func (m *Manager) stopTimer(s *Session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (m *Manager) setState(s *Session, state State, err error) {
	s.state = state
	s.lastErr = err
	m.metrics.Transition(state.String())
	m.emit(s, Event{Kind: EventState, Err: err})
}

func (m *Manager) emit(s *Session, ev Event) {
	ev.SessionID = s.id
	ev.RoomID = s.room.ID
	ev.State = s.state
	for _, l := range m.listeners {
		l(ev)
	}
}

// reconnect повторяет рукопожатие после обрыва живой сессии с
// экспоненциальной задержкой. Останавливается, как только сессию сменили.
func (m *Manager) reconnect(generation uint64, room domain.Room) {
	policy := m.cfg.Reconnect
	eb := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		eb.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		eb.MaxInterval = policy.MaxInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()
	// Первая попытка идет после паузы, остальные считаются повторами.
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.MaxAttempts-1)), m.ctx)

	expect := generation
	attempt := 0
	op := func() error {
		attempt++
		err := m.open(m.ctx, room, &expect)
		if errors.Is(err, ErrSuperseded) || errors.Is(err, ErrManagerClosed) {
			return backoff.Permanent(err)
		}
		if err == nil {
			return nil
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.current == nil || m.current.room.ID != room.ID {
			return backoff.Permanent(ErrSuperseded)
		}
		expect = m.generation
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.log.Warn("Reconnect attempt failed", "room_id", room.ID, "attempt", attempt, "retry_in", wait, "error", err)
	}

	select {
	case <-time.After(eb.InitialInterval):
	case <-m.ctx.Done():
		return
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		m.log.Error("Giving up reconnecting", "room_id", room.ID, "attempts", attempt, "error", err)
		return
	}
	m.log.Info("Reconnected to room", "room_id", room.ID, "attempts", attempt)
}

func gatewayEndpoint(base, authToken string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", authToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
