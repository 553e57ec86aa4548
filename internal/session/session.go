package session

import (
	"time"

	"chat-console/internal/domain"
	"chat-console/internal/ports"
	"chat-console/internal/timeline"
)

// Session связывает открытую комнату с соединением и парой токенов.
// Все методы вызываются только внутри Manager.WithSession или из
// обработчиков менеджера, то есть под его блокировкой.
type Session struct {
	mgr        *Manager
	id         string
	generation uint64
	room       domain.Room
	state      State
	tokens     domain.Tokens
	blocked    bool
	transport  ports.ChatTransport
	timeline   *timeline.Timeline
	reply      *domain.Message
	lastErr    error
	startedAt  time.Time
	timer      *time.Timer
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Room возвращает комнату сессии.
func (s *Session) Room() domain.Room { return s.room }

// State возвращает текущее состояние.
func (s *Session) State() State { return s.state }

// Tokens возвращает выданные токены.
func (s *Session) Tokens() domain.Tokens { return s.tokens }

// Blocked сообщает, заблокирован ли оператор в комнате.
func (s *Session) Blocked() bool { return s.blocked }

// Live сообщает, что рукопожатие завершено и сессия не заблокирована.
func (s *Session) Live() bool { return s.state == StateLive && !s.blocked }

// Err возвращает последнюю ошибку сессии.
func (s *Session) Err() error { return s.lastErr }

// Transport возвращает соединение сессии. До получения токенов возвращает nil.
func (s *Session) Transport() ports.ChatTransport { return s.transport }

// Timeline возвращает ленту сообщений комнаты.
func (s *Session) Timeline() *timeline.Timeline { return s.timeline }

// PendingReply возвращает сообщение, на которое оператор сейчас отвечает.
func (s *Session) PendingReply() (domain.Message, bool) {
	if s.reply == nil {
		return domain.Message{}, false
	}
	return *s.reply, true
}

// SetPendingReply запоминает сообщение для ответа, заменяя предыдущее.
func (s *Session) SetPendingReply(m domain.Message) {
	reply := m.Clone()
	s.reply = &reply
}

// ClearPendingReply сбрасывает контекст ответа.
func (s *Session) ClearPendingReply() {
	s.reply = nil
}

// ApplyTranslation накладывает перевод и уведомляет слушателей.
func (s *Session) ApplyTranslation(key string, res domain.TranslateResult) (domain.Message, bool) {
	msg, ok := s.timeline.ApplyTranslation(key, res.TranslatedText, res.OriginalText, res.OriginalLanguage)
	if ok {
		s.mgr.emit(s, Event{Kind: EventUpdated, Message: msg})
	}
	return msg, ok
}

// RevertTranslation снимает перевод и уведомляет слушателей.
func (s *Session) RevertTranslation(key string) (domain.Message, bool) {
	msg, ok := s.timeline.RevertTranslation(key)
	if ok {
		s.mgr.emit(s, Event{Kind: EventUpdated, Message: msg})
	}
	return msg, ok
}

// MarkBlocked переводит сессию в Blocked: лента очищается, отправка запрещается.
func (s *Session) MarkBlocked() {
	s.mgr.block(s)
}
