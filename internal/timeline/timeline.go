// Package timeline хранит упорядоченную ленту сообщений открытой комнаты.
//
// Порядок ленты совпадает с порядком получения от шлюза. Изменения никогда не
// переставляют элементы: только добавляют в конец, заменяют на месте или
// скрывают. Каждая мутация строит новый срез и подменяет им старый, поэтому
// срез, полученный из Messages, остается неизменным снимком.
//
// Timeline не потокобезопасна: доступ сериализует владелец сессии.
package timeline

import (
	"log/slog"

	"chat-console/internal/domain"
	"chat-console/internal/metrics"
)

// Option определяет функциональную опцию ленты.
type Option func(*Timeline)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timeline) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMetrics устанавливает коллекторы метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Timeline) {
		t.metrics = m
	}
}

// Timeline это дедуплицированная лента сообщений.
type Timeline struct {
	classifier *Classifier
	log        *slog.Logger
	metrics    *metrics.Metrics
	messages   []domain.Message
}

// New создает пустую ленту.
func New(classifier *Classifier, opts ...Option) *Timeline {
	t := &Timeline{
		classifier: classifier,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReplaceFromHistory заменяет ленту целиком страницей истории.
// Страница приходит от новых к старым и разворачивается в хронологический
// порядок. Испорченные записи отбрасываются, остальные применяются.
// Возвращает число отброшенных записей.
func (t *Timeline) ReplaceFromHistory(page []domain.RawMessage) int {
	next := make([]domain.Message, 0, len(page))
	dropped := 0
	for i := len(page) - 1; i >= 0; i-- {
		msg, err := t.classifier.Classify(page[i])
		if err != nil {
			dropped++
			t.drop(err)
			continue
		}
		if idx := indexOf(next, msg); idx >= 0 {
			next[idx] = msg
			continue
		}
		next = append(next, msg)
	}
	for i := range next {
		next[i] = t.resolveReply(next, next[i])
	}
	t.messages = next
	return dropped
}

// AppendIncoming добавляет сообщение в конец ленты. Повторная доставка того же
// сообщения обновляет существующую запись на месте, сохраняя наложенный перевод.
// Удаленное сообщение остается скрытым. appended == false означает обновление.
func (t *Timeline) AppendIncoming(raw domain.RawMessage) (msg domain.Message, appended bool, err error) {
	msg, err = t.classifier.Classify(raw)
	if err != nil {
		t.drop(err)
		return domain.Message{}, false, err
	}
	msg = t.resolveReply(t.messages, msg)

	if idx := indexOf(t.messages, msg); idx >= 0 {
		if prev := t.messages[idx]; prev.Translation != nil && prev.Content.Raw == msg.Content.Raw {
			tr := *prev.Translation
			msg.Translation = &tr
		}
		if !t.messages[idx].Visible {
			msg.Visible = false
		}
		t.replaceAt(idx, msg)
		return msg, false, nil
	}

	next := make([]domain.Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	t.messages = append(next, msg)
	return msg, true, nil
}

// UpsertReaction заменяет снимок реакций сообщения. Сообщение ищется по
// каждому из ключей по очереди. Отсутствие сообщения не является ошибкой.
func (t *Timeline) UpsertReaction(keys []string, tally domain.ReactionTally) (domain.Message, bool) {
	idx := t.find(keys...)
	if idx < 0 {
		t.log.Debug("Reaction for unknown message ignored", "keys", keys)
		return domain.Message{}, false
	}
	msg := t.messages[idx].Clone()
	msg.Reactions = tally.Clone()
	t.replaceAt(idx, msg)
	return msg, true
}

// MarkDeleted скрывает сообщение. Запись остается адресуемой, чтобы ответы
// на нее продолжали отображать свой снимок.
func (t *Timeline) MarkDeleted(keys ...string) (domain.Message, bool) {
	idx := t.find(keys...)
	if idx < 0 {
		t.log.Debug("Delete for unknown message ignored", "keys", keys)
		return domain.Message{}, false
	}
	msg := t.messages[idx].Clone()
	msg.Visible = false
	t.replaceAt(idx, msg)
	return msg, true
}

// ApplyTranslation накладывает перевод, сохраняя исходный текст для отката.
func (t *Timeline) ApplyTranslation(key, translated, original, originalLanguage string) (domain.Message, bool) {
	idx := t.find(key)
	if idx < 0 {
		return domain.Message{}, false
	}
	msg := t.messages[idx].Clone()
	msg.Translation = &domain.Translation{
		Text:             translated,
		Original:         original,
		OriginalLanguage: originalLanguage,
	}
	t.replaceAt(idx, msg)
	return msg, true
}

// RevertTranslation снимает наложенный перевод.
func (t *Timeline) RevertTranslation(key string) (domain.Message, bool) {
	idx := t.find(key)
	if idx < 0 || t.messages[idx].Translation == nil {
		return domain.Message{}, false
	}
	msg := t.messages[idx].Clone()
	msg.Translation = nil
	t.replaceAt(idx, msg)
	return msg, true
}

// Clear очищает ленту.
func (t *Timeline) Clear() {
	t.messages = nil
}

// Find ищет сообщение по id или uuid.
func (t *Timeline) Find(key string) (domain.Message, bool) {
	idx := t.find(key)
	if idx < 0 {
		return domain.Message{}, false
	}
	return t.messages[idx], true
}

// Messages возвращает снимок всех записей, включая скрытые.
func (t *Timeline) Messages() []domain.Message {
	return t.messages
}

// Visible возвращает только отображаемые сообщения.
func (t *Timeline) Visible() []domain.Message {
	out := make([]domain.Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Visible {
			out = append(out, m)
		}
	}
	return out
}

// Len возвращает число записей, включая скрытые.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// ReplyPreview возвращает снимок сообщения, на которое отвечает m, если его
// нужно отобразить. Решение принимается по флагу видимости самого снимка,
// а не по наличию оригинала в ленте.
func ReplyPreview(m domain.Message) (domain.ReplySnapshot, bool) {
	if m.Reply == nil || !m.Reply.Visible {
		return domain.ReplySnapshot{}, false
	}
	return *m.Reply, true
}

// resolveReply достраивает снимок ответа по ссылке, если шлюз прислал
// только replyId, а оригинал есть в ленте.
func (t *Timeline) resolveReply(list []domain.Message, msg domain.Message) domain.Message {
	if msg.Reply != nil || msg.ReplyToKey == "" {
		return msg
	}
	for _, m := range list {
		if m.Matches(msg.ReplyToKey) {
			msg.Reply = &domain.ReplySnapshot{
				ID:       m.ID,
				UUID:     m.UUID,
				SenderID: m.SenderID,
				Content:  m.Clone().Content,
				Visible:  m.Visible,
			}
			break
		}
	}
	return msg
}

func (t *Timeline) replaceAt(idx int, msg domain.Message) {
	next := make([]domain.Message, len(t.messages))
	copy(next, t.messages)
	next[idx] = msg
	t.messages = next
}

func (t *Timeline) find(keys ...string) int {
	for _, key := range keys {
		if key == "" {
			continue
		}
		for i := range t.messages {
			if t.messages[i].Matches(key) {
				return i
			}
		}
	}
	return -1
}

func (t *Timeline) drop(err error) {
	t.log.Warn("Dropping unprocessable message", "error", err)
	t.metrics.Dropped(dropReason(err))
}

func indexOf(list []domain.Message, msg domain.Message) int {
	for i := range list {
		if list[i].SameIdentity(msg) {
			return i
		}
	}
	return -1
}
