package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind определяет вид содержимого сообщения.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindLink  ContentKind = "external-link"
	KindGoods ContentKind = "goods-reference"
	KindOrder ContentKind = "order-reference"
	KindImage ContentKind = "image"
)

// Короткие коды-дискриминаторы, которые шлюз передает в поле ctype.
const (
	CodeText  = "C"
	CodeLink  = "L"
	CodeGoods = "G"
	CodeOrder = "O"
	CodeImage = "I"
)

// Значения флага видимости useYn.
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// ReactionKind это вид реакции из фиксированного набора.
type ReactionKind string

const (
	ReactionLike     ReactionKind = "like"
	ReactionHeart    ReactionKind = "heart"
	ReactionLaugh    ReactionKind = "laugh"
	ReactionSurprise ReactionKind = "surprise"
	ReactionSad      ReactionKind = "sad"
)

// ReactionKinds перечисляет допустимые реакции в порядке отображения.
var ReactionKinds = []ReactionKind{ReactionLike, ReactionHeart, ReactionLaugh, ReactionSurprise, ReactionSad}

// Valid сообщает, входит ли реакция в допустимый набор.
func (k ReactionKind) Valid() bool {
	for _, known := range ReactionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ReactionTally это снимок счетчиков реакций сообщения.
// Шлюз присылает полный снимок, поэтому значение всегда заменяется целиком.
type ReactionTally map[ReactionKind]int

// NewReactionTally строит снимок из сырых данных, отбрасывая неизвестные виды
// и отрицательные значения.
func NewReactionTally(raw map[string]int) ReactionTally {
	tally := make(ReactionTally, len(raw))
	for k, v := range raw {
		kind := ReactionKind(k)
		if !kind.Valid() || v < 0 {
			continue
		}
		tally[kind] = v
	}
	return tally
}

// Clone возвращает независимую копию снимка.
func (t ReactionTally) Clone() ReactionTally {
	if t == nil {
		return nil
	}
	out := make(ReactionTally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Total возвращает сумму всех реакций.
func (t ReactionTally) Total() int {
	total := 0
	for _, v := range t {
		total += v
	}
	return total
}

// Operator описывает оператора консоли.
type Operator struct {
	OrganizationID string `json:"organizationId" yaml:"organization_id"`
	VenueID        string `json:"venueId" yaml:"venue_id"`
}

// PeerKey возвращает идентификатор участника оператора в протоколе чата.
func (o Operator) PeerKey() string {
	return PeerKey(o.OrganizationID, o.VenueID)
}

// PeerKey выводит непрозрачный идентификатор участника из организации и площадки.
func PeerKey(organizationID, venueID string) string {
	return organizationID + "_" + venueID
}

// Room представляет чат-комнату.
type Room struct {
	ID             string `json:"roomId"`
	Name           string `json:"roomName"`
	OrganizationID string `json:"organizationId"`
	VenueID        string `json:"venueId"`
}

// PeerKey возвращает ключ владельца комнаты.
func (r Room) PeerKey() string {
	return PeerKey(r.OrganizationID, r.VenueID)
}

// Tokens это пара токенов, выданная для входа в комнату.
type Tokens struct {
	AuthToken string `json:"authToken"`
	RoomToken string `json:"roomToken"`
}

// Empty сообщает, что токены еще не получены.
func (t Tokens) Empty() bool {
	return t.AuthToken == "" && t.RoomToken == ""
}

// TokenRequest это запрос на выдачу токенов чата.
type TokenRequest struct {
	RoomType string `json:"roomType"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
}

// TranslateRequest это запрос на перевод текста.
type TranslateRequest struct {
	Text           string `json:"text"`
	CacheFlag      bool   `json:"cacheFlag"`
	TargetLanguage string `json:"targetLanguage"`
}

// TranslateResult это результат перевода.
type TranslateResult struct {
	TranslatedText   string `json:"translatedText"`
	OriginalText     string `json:"originalText"`
	OriginalLanguage string `json:"originalLanguage"`
}

// GoodsRef это структурированная ссылка на товар.
type GoodsRef struct {
	GoodsID  string `json:"goodsId"`
	Name     string `json:"goodsName"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// OrderRef это структурированная ссылка на заказ.
type OrderRef struct {
	OrderID   string `json:"orderId"`
	GoodsName string `json:"goodsName"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// Content это классифицированное содержимое сообщения.
type Content struct {
	Kind ContentKind
	// Code и Raw хранят исходный дискриминатор и полезную нагрузку,
	// чтобы сообщение можно было переслать в денормализованном виде.
	Code     string
	Raw      string
	Text     string
	Goods    *GoodsRef
	Order    *OrderRef
	ImageURL string
}

// Translation это наложенный перевод поверх исходного текста.
type Translation struct {
	Text             string
	Original         string
	OriginalLanguage string
}

// ReplySnapshot это денормализованная копия сообщения, на которое отвечают.
// Остается отображаемой, даже если оригинал удален или ушел за пределы страницы.
type ReplySnapshot struct {
	ID       string
	UUID     string
	SenderID string
	Content  Content
	Visible  bool
}

// Message это элемент ленты сообщений.
type Message struct {
	ID          string
	UUID        string
	RoomID      string
	SenderID    string
	Content     Content
	ReplyToKey  string
	Reply       *ReplySnapshot
	Reactions   ReactionTally
	Visible     bool
	Translation *Translation
	Mine        bool
	CreatedAt   string
}

// Key возвращает предпочтительный ключ сообщения.
func (m Message) Key() string {
	if m.UUID != "" {
		return m.UUID
	}
	return m.ID
}

// Matches сообщает, адресует ли ключ это сообщение (по id или по uuid).
func (m Message) Matches(key string) bool {
	if key == "" {
		return false
	}
	return key == m.ID || key == m.UUID
}

// SameIdentity сообщает, являются ли два сообщения одним логическим сообщением.
func (m Message) SameIdentity(other Message) bool {
	if m.ID != "" && (m.ID == other.ID || m.ID == other.UUID) {
		return true
	}
	if m.UUID != "" && (m.UUID == other.UUID || m.UUID == other.ID) {
		return true
	}
	return false
}

// Translated сообщает, активен ли перевод.
func (m Message) Translated() bool {
	return m.Translation != nil
}

// DisplayText возвращает текст, который должен видеть оператор.
func (m Message) DisplayText() string {
	if m.Translation != nil {
		return m.Translation.Text
	}
	return m.Content.DisplayText()
}

// DisplayText возвращает человекочитаемое представление содержимого.
func (c Content) DisplayText() string {
	switch c.Kind {
	case KindGoods:
		if c.Goods != nil {
			return fmt.Sprintf("[goods] %s (%d)", c.Goods.Name, c.Goods.Price)
		}
	case KindOrder:
		if c.Order != nil {
			return fmt.Sprintf("[order] %s %s", c.Order.OrderID, c.Order.Status)
		}
	case KindImage:
		return c.ImageURL
	}
	return c.Text
}

// Clone возвращает глубокую копию сообщения.
func (m Message) Clone() Message {
	out := m
	out.Reactions = m.Reactions.Clone()
	out.Content = m.Content.clone()
	if m.Reply != nil {
		reply := *m.Reply
		reply.Content = m.Reply.Content.clone()
		out.Reply = &reply
	}
	if m.Translation != nil {
		tr := *m.Translation
		out.Translation = &tr
	}
	return out
}

func (c Content) clone() Content {
	out := c
	if c.Goods != nil {
		g := *c.Goods
		out.Goods = &g
	}
	if c.Order != nil {
		o := *c.Order
		out.Order = &o
	}
	return out
}

// FlexID это идентификатор, который шлюз передает то числом, то строкой.
type FlexID string

// UnmarshalJSON принимает как строку, так и число.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// String возвращает строковое значение идентификатора.
func (id FlexID) String() string {
	return string(id)
}

// RawMessage это сообщение в том виде, в котором его передает шлюз.
type RawMessage struct {
	ID        FlexID         `json:"id,omitempty"`
	UUID      string         `json:"uuid,omitempty"`
	RoomID    string         `json:"roomId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	CType     string         `json:"ctype"`
	Mesg      string         `json:"mesg"`
	UseYn     string         `json:"useYn,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`
	ReplyID   FlexID         `json:"replyId,omitempty"`
	Reply     *RawMessage    `json:"reply,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
}
