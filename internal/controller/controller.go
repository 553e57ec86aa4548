// Package controller переводит намерения оператора в операции транспорта
// и локальные изменения ленты.
//
// Почти все действия работают по принципу fire-and-forget: результат
// появляется в ленте только после эха от шлюза. Исключения: перевод
// (локальный REST-вызов) и блокировка (локальное состояние меняется сразу).
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"chat-console/internal/domain"
	"chat-console/internal/ports"
	"chat-console/internal/session"
	"chat-console/internal/timeline"
	"chat-console/internal/transport"
)

var (
	ErrBlocked          = errors.New("operator is blocked in this room")
	ErrNotLive          = errors.New("room is not live yet")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNotOwnMessage    = errors.New("only own messages can be deleted")
	ErrMessageNotFound  = errors.New("message not found")
	ErrRateLimited      = errors.New("sending too fast")
	ErrInvalidReaction  = errors.New("unknown reaction kind")
	ErrMissingUser      = errors.New("user id is required")
	ErrNothingToCopy    = errors.New("message has nothing to copy")
	ErrNotTranslatable  = errors.New("message has no text to translate")
	ErrTranslateService = errors.New("translation failed")
)

// Config это параметры действий оператора.
type Config struct {
	TargetLanguage string
	CacheFlag      bool
	// SendRate это разрешенное число сообщений в секунду; 0 снимает ограничение.
	SendRate  float64
	SendBurst int
}

// Option определяет функциональную опцию контроллера.
type Option func(*Controller)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUUID подменяет генератор uuid клиентских сообщений.
func WithUUID(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newUUID = gen
		}
	}
}

// Controller обслуживает намерения оператора для текущей сессии.
type Controller struct {
	sessions   *session.Manager
	translator ports.Translator
	clipboard  ports.Clipboard
	cfg        Config
	limiter    *rate.Limiter
	log        *slog.Logger
	newUUID    func() string

	mu   sync.Mutex
	menu MenuState
}

// New создает контроллер и подписывает его на события сессий, чтобы
// сбрасывать меню при смене комнаты.
func New(sessions *session.Manager, translator ports.Translator, clipboard ports.Clipboard, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		sessions:   sessions,
		translator: translator,
		clipboard:  clipboard,
		cfg:        cfg,
		log:        slog.Default(),
		newUUID:    uuid.NewString,
	}
	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "controller")
	sessions.Subscribe(c.onSessionEvent)
	return c
}

// Send отправляет текстовое сообщение. Контекст ответа и ввод сбрасываются
// сразу; само сообщение появится в ленте только после эха.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return c.sessions.WithSession(func(s *session.Session) error {
		if s.Blocked() {
			return ErrBlocked
		}
		if !s.Live() {
			return ErrNotLive
		}
		if c.limiter != nil && !c.limiter.Allow() {
			return ErrRateLimited
		}

		req := transport.ChatRequest{
			RoomID: s.Room().ID,
			UUID:   c.newUUID(),
			CType:  domain.CodeText,
			Mesg:   text,
		}
		if reply, ok := s.PendingReply(); ok {
			raw := timeline.ToRaw(reply)
			req.ReplyID = firstNonEmpty(reply.ID, reply.UUID)
			req.Reply = &raw
		}
		s.ClearPendingReply()

		if err := s.Transport().SendChat(req); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		c.log.Debug("Message sent", "room_id", req.RoomID, "uuid", req.UUID, "reply_id", req.ReplyID)
		return nil
	})
}

// Reply запоминает сообщение, на которое оператор отвечает.
func (c *Controller) Reply(key string) error {
	return c.sessions.WithSession(func(s *session.Session) error {
		if s.Blocked() {
			return ErrBlocked
		}
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		s.SetPendingReply(msg)
		c.closeMenus()
		return nil
	})
}

// CancelReply сбрасывает контекст ответа.
func (c *Controller) CancelReply() error {
	return c.sessions.WithSession(func(s *session.Session) error {
		s.ClearPendingReply()
		return nil
	})
}

// React отправляет реакцию. Счетчик обновится только по событию шлюза.
func (c *Controller) React(key string, kind domain.ReactionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReaction, kind)
	}
	return c.sessions.WithSession(func(s *session.Session) error {
		if s.Blocked() {
			return ErrBlocked
		}
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		tr, err := transportOf(s)
		if err != nil {
			return err
		}
		c.closeMenus()
		err = tr.React(transport.ReactionRequest{
			RoomID:   s.Room().ID,
			ID:       msg.ID,
			UUID:     msg.UUID,
			Reaction: kind,
		})
		if err != nil {
			return fmt.Errorf("send reaction: %w", err)
		}
		return nil
	})
}

// Delete отправляет удаление собственного сообщения. Сообщение исчезнет
// из ленты по эху delChat.
func (c *Controller) Delete(key string) error {
	return c.sessions.WithSession(func(s *session.Session) error {
		if s.Blocked() {
			return ErrBlocked
		}
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		if !msg.Mine {
			return ErrNotOwnMessage
		}
		tr, err := transportOf(s)
		if err != nil {
			return err
		}
		c.closeMenus()
		err = tr.DeleteChat(transport.DeleteRequest{
			RoomID: s.Room().ID,
			ID:     msg.ID,
			UUID:   msg.UUID,
		})
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		return nil
	})
}

// Translate переводит сообщение и накладывает перевод локально.
// Если за время запроса комната сменилась, результат отбрасывается.
func (c *Controller) Translate(ctx context.Context, key string) (domain.Message, error) {
	var (
		sessionID string
		text      string
		current   domain.Message
	)
	err := c.sessions.WithSession(func(s *session.Session) error {
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		sessionID, current = s.ID(), msg
		text = translatableText(msg)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if current.Translated() {
		return current, nil
	}
	if text == "" {
		return domain.Message{}, ErrNotTranslatable
	}

	res, err := c.translator.TranslateText(ctx, domain.TranslateRequest{
		Text:           text,
		CacheFlag:      c.cfg.CacheFlag,
		TargetLanguage: c.cfg.TargetLanguage,
	})
	if err != nil {
		c.log.Error("Translation failed", "message", key, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", ErrTranslateService, err)
	}
	if res.OriginalText == "" {
		res.OriginalText = text
	}

	var out domain.Message
	err = c.sessions.WithSessionID(sessionID, func(s *session.Session) error {
		msg, ok := s.ApplyTranslation(key, res)
		if !ok {
			return ErrMessageNotFound
		}
		out = msg
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	c.closeMenus()
	return out, nil
}

// RevertTranslation возвращает исходный текст.
func (c *Controller) RevertTranslation(key string) (domain.Message, error) {
	var out domain.Message
	err := c.sessions.WithSession(func(s *session.Session) error {
		if _, ok := s.Timeline().Find(key); !ok {
			return ErrMessageNotFound
		}
		msg, ok := s.RevertTranslation(key)
		if !ok {
			msg, _ = s.Timeline().Find(key)
		}
		out = msg
		return nil
	})
	return out, err
}

// Copy кладет отображаемый текст сообщения или адрес изображения в буфер
// обмена. Ошибка возвращается оператору без повторов.
func (c *Controller) Copy(key string) (string, error) {
	var text string
	err := c.sessions.WithSession(func(s *session.Session) error {
		msg, err := findVisible(s, key)
		if err != nil {
			return err
		}
		text = msg.DisplayText()
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNothingToCopy
	}
	if err := c.clipboard.WriteAll(text); err != nil {
		return "", fmt.Errorf("copy to clipboard: %w", err)
	}
	c.closeMenus()
	return text, nil
}

// Block отправляет блокировку участника и сразу переводит сессию в Blocked,
// не дожидаясь подтверждения.
func (c *Controller) Block(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	return c.sessions.WithSession(func(s *session.Session) error {
		tr, err := transportOf(s)
		if err != nil {
			return err
		}
		if err := tr.Block(transport.BlockRequest{RoomID: s.Room().ID, UserID: userID}); err != nil {
			return fmt.Errorf("block user: %w", err)
		}
		c.log.Warn("User blocked, room is now blocked locally", "room_id", s.Room().ID, "user_id", userID)
		s.MarkBlocked()
		return nil
	})
}

// Unblock отправляет разблокировку и повторяет рукопожатие с начала.
func (c *Controller) Unblock(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	err := c.sessions.WithSession(func(s *session.Session) error {
		tr, err := transportOf(s)
		if err != nil {
			return err
		}
		if err := tr.Unblock(transport.BlockRequest{RoomID: s.Room().ID, UserID: userID}); err != nil {
			return fmt.Errorf("unblock user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := c.sessions.Restart(ctx); err != nil {
		return fmt.Errorf("rejoin after unblock: %w", err)
	}
	return nil
}

// Exit выходит из текущей комнаты.
func (c *Controller) Exit() error {
	c.closeMenus()
	return c.sessions.Exit()
}

func (c *Controller) onSessionEvent(ev session.Event) {
	switch {
	case ev.Kind == session.EventCleared:
		c.resetMenus()
	case ev.Kind == session.EventState && (ev.State == session.StateTokenRequested || ev.State == session.StateExited):
		c.resetMenus()
	case ev.Kind == session.EventRemoved:
		c.mu.Lock()
		if ev.Message.Matches(c.menu.MessageKey) {
			c.menu.MessageKey, c.menu.Kind = "", MenuNone
		}
		c.mu.Unlock()
	}
}

func findVisible(s *session.Session, key string) (domain.Message, error) {
	msg, ok := s.Timeline().Find(key)
	if !ok || !msg.Visible {
		return domain.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, key)
	}
	return msg, nil
}

// translatableText возвращает текст для перевода; у изображений его нет.
func translatableText(m domain.Message) string {
	if m.Content.Kind == domain.KindImage {
		return ""
	}
	return strings.TrimSpace(m.Content.Text)
}

// transportOf возвращает соединение сессии; до получения токенов его нет.
func transportOf(s *session.Session) (ports.ChatTransport, error) {
	if tr := s.Transport(); tr != nil {
		return tr, nil
	}
	return nil, transport.ErrNotConnected
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
