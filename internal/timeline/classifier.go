package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"chat-console/internal/domain"
)

var (
	// ErrMalformedPayload возвращается, если структурированное содержимое не удалось разобрать.
	ErrMalformedPayload = errors.New("malformed message payload")
	// ErrUnknownContent возвращается для неизвестного кода вида содержимого.
	ErrUnknownContent = errors.New("unknown content kind")
)

// Classifier превращает сырые записи шлюза в сообщения ленты.
type Classifier struct {
	imageBaseURL string
	selfKey      string
	roomID       string
	log          *slog.Logger
}

// NewClassifier создает классификатор для одной комнаты.
// selfKey это ключ участника оператора, по нему определяется флаг Mine.
func NewClassifier(imageBaseURL, selfKey, roomID string, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		selfKey:      selfKey,
		roomID:       roomID,
		log:          logger,
	}
}

// Classify разбирает одну запись. Ошибка означает, что запись нужно отбросить.
// Испорченный вложенный ответ не отбрасывает само сообщение, теряется только снимок.
func (c *Classifier) Classify(raw domain.RawMessage) (domain.Message, error) {
	id, uid := raw.ID.String(), strings.TrimSpace(raw.UUID)
	if id == "" && uid == "" {
		return domain.Message{}, fmt.Errorf("%w: message has neither id nor uuid", ErrMalformedPayload)
	}

	roomID := raw.RoomID
	if roomID == "" {
		roomID = c.roomID
	}

	content, err := c.classifyContent(raw.CType, raw.Mesg, roomID, imageKey(id, uid))
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %s: %w", firstNonEmpty(uid, id), err)
	}

	msg := domain.Message{
		ID:         id,
		UUID:       uid,
		RoomID:     roomID,
		SenderID:   raw.UserID,
		Content:    content,
		ReplyToKey: raw.ReplyID.String(),
		Reactions:  domain.NewReactionTally(raw.Reactions),
		Visible:    visible(raw.UseYn),
		Mine:       c.selfKey != "" && raw.UserID == c.selfKey,
		CreatedAt:  raw.CreatedAt,
	}

	if raw.Reply != nil {
		snap, err := c.snapshot(*raw.Reply, roomID)
		if err != nil {
			c.log.Warn("Dropping malformed reply snapshot", "message", msg.Key(), "error", err)
		} else {
			msg.Reply = &snap
			if msg.ReplyToKey == "" {
				msg.ReplyToKey = firstNonEmpty(snap.UUID, snap.ID)
			}
		}
	}
	return msg, nil
}

func (c *Classifier) snapshot(raw domain.RawMessage, roomID string) (domain.ReplySnapshot, error) {
	id, uid := raw.ID.String(), strings.TrimSpace(raw.UUID)
	if raw.RoomID != "" {
		roomID = raw.RoomID
	}
	content, err := c.classifyContent(raw.CType, raw.Mesg, roomID, imageKey(id, uid))
	if err != nil {
		return domain.ReplySnapshot{}, err
	}
	return domain.ReplySnapshot{
		ID:       id,
		UUID:     uid,
		SenderID: raw.UserID,
		Content:  content,
		Visible:  visible(raw.UseYn),
	}, nil
}

func (c *Classifier) classifyContent(code, mesg, roomID, key string) (domain.Content, error) {
	content := domain.Content{Code: code, Raw: mesg}
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case domain.CodeText:
		content.Kind = domain.KindText
		content.Text = mesg
	case domain.CodeLink:
		content.Kind = domain.KindLink
		content.Text = strings.TrimSpace(mesg)
	case domain.CodeGoods:
		var goods domain.GoodsRef
		if err := json.Unmarshal([]byte(mesg), &goods); err != nil {
			return domain.Content{}, fmt.Errorf("%w: goods reference: %v", ErrMalformedPayload, err)
		}
		content.Kind = domain.KindGoods
		content.Goods = &goods
		content.Text = goods.Name
	case domain.CodeOrder:
		var order domain.OrderRef
		if err := json.Unmarshal([]byte(mesg), &order); err != nil {
			return domain.Content{}, fmt.Errorf("%w: order reference: %v", ErrMalformedPayload, err)
		}
		content.Kind = domain.KindOrder
		content.Order = &order
		content.Text = order.OrderID
	case domain.CodeImage:
		path, err := c.imagePath(roomID, key)
		if err != nil {
			return domain.Content{}, err
		}
		content.Kind = domain.KindImage
		content.ImageURL = path
	default:
		return domain.Content{}, fmt.Errorf("%w: %q", ErrUnknownContent, code)
	}
	return content, nil
}

// imagePath строит адрес изображения из комнаты и ключа сообщения.
func (c *Classifier) imagePath(roomID, key string) (string, error) {
	if c.imageBaseURL == "" {
		return "/" + roomID + "/" + key, nil
	}
	path, err := url.JoinPath(c.imageBaseURL, roomID, key)
	if err != nil {
		return "", fmt.Errorf("%w: image path: %v", ErrMalformedPayload, err)
	}
	return path, nil
}

// ToRaw переводит сообщение обратно в сырую запись. Используется для
// денормализованной копии в ответе.
func ToRaw(m domain.Message) domain.RawMessage {
	useYn := domain.FlagYes
	if !m.Visible {
		useYn = domain.FlagNo
	}
	return domain.RawMessage{
		ID:        domain.FlexID(m.ID),
		UUID:      m.UUID,
		RoomID:    m.RoomID,
		UserID:    m.SenderID,
		CType:     m.Content.Code,
		Mesg:      m.Content.Raw,
		UseYn:     useYn,
		CreatedAt: m.CreatedAt,
	}
}

func visible(flag string) bool {
	return !strings.EqualFold(strings.TrimSpace(flag), domain.FlagNo)
}

func imageKey(id, uid string) string {
	return firstNonEmpty(id, uid)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func dropReason(err error) string {
	if errors.Is(err, ErrUnknownContent) {
		return "unknown_content"
	}
	return "malformed_payload"
}
