package log

import (
	"context"
	"log/slog"
	"regexp"
)

// TokenMaskerHandler - обертка для slog.Handler, которая маскирует токены в логах
type TokenMaskerHandler struct {
	handler slog.Handler
}

// NewTokenMaskerHandler создает новый обработчик с маскировкой токенов
func NewTokenMaskerHandler(handler slog.Handler) *TokenMaskerHandler {
	return &TokenMaskerHandler{
		handler: handler,
	}
}

const mask = "***masked***"

var (
	// токен в query-параметрах адреса шлюза: ?token=..., &authToken=...
	queryTokenRegex = regexp.MustCompile(`([?&](?:token|authToken|roomToken)=)[^&\s"']+`)
	// JWT: три base64url-сегмента, заголовок начинается с eyJ
	jwtRegex = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)
	// заголовок Authorization
	bearerRegex = regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._~+/=-]+`)
)

// секретные ключи атрибутов маскируются целиком
var sensitiveKeys = map[string]struct{}{
	"auth_token": {},
	"room_token": {},
	"api_token":  {},
}

// maskTokens заменяет найденные токены на маску
func maskTokens(text string) string {
	text = queryTokenRegex.ReplaceAllString(text, "${1}"+mask)
	text = jwtRegex.ReplaceAllString(text, mask)
	return bearerRegex.ReplaceAllString(text, "${1}"+mask)
}

// Enabled реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Clone() не копирует атрибуты, поэтому они добавляются заново уже замаскированными.
	// Оригинальная запись может переиспользоваться slog.
	r := record.Clone()
	r.Message = maskTokens(r.Message)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(maskAttr(a))
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = maskAttr(attr)
	}
	return &TokenMaskerHandler{
		handler: h.handler.WithAttrs(maskedAttrs),
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithGroup(name string) slog.Handler {
	return &TokenMaskerHandler{
		handler: h.handler.WithGroup(name),
	}
}

func maskAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[a.Key]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, mask)
	}
	return slog.Attr{Key: a.Key, Value: maskAttributeValue(a.Value)}
}

// maskAttributeValue рекурсивно маскирует значения атрибутов
func maskAttributeValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskTokens(value.String()))
	case slog.KindAny:
		// Ошибки дозвона и http-клиента содержат полный URL с токеном.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskTokens(err.Error()))
		}
		return value
	case slog.KindLogValuer:
		return maskAttributeValue(value.Resolve())
	case slog.KindGroup:
		group := value.Group()
		maskedGroup := make([]slog.Attr, len(group))
		for i, attr := range group {
			maskedGroup[i] = maskAttr(attr)
		}
		return slog.GroupValue(maskedGroup...)
	default:
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой токенов
func NewMaskedLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewTokenMaskerHandler(handler))
}
