package cache

import (
	"context"
	"log/slog"
	"time"

	"chat-console/internal/domain"
	"chat-console/internal/ports"
)

// DefaultTTL это срок жизни перевода в кэше по умолчанию.
const DefaultTTL = 30 * time.Minute

// Translator кэширует результаты перевода поверх другого ports.Translator.
// Кэш используется только для запросов с CacheFlag. Ошибки не кэшируются.
type Translator struct {
	next  ports.Translator
	store *CacheStore
	ttl   time.Duration
	log   *slog.Logger
}

// NewTranslator оборачивает next кэшем. Нулевой ttl заменяется на DefaultTTL.
func NewTranslator(next ports.Translator, store *CacheStore, ttl time.Duration, logger *slog.Logger) *Translator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		next:  next,
		store: store,
		ttl:   ttl,
		log:   logger.With("component", "translation_cache"),
	}
}

// TranslateText реализует ports.Translator.
func (t *Translator) TranslateText(ctx context.Context, req domain.TranslateRequest) (domain.TranslateResult, error) {
	if !req.CacheFlag {
		return t.next.TranslateText(ctx, req)
	}

	key := CalculateHash(req.TargetLanguage, req.Text)
	if item, ok := t.store.Get(key); ok {
		t.log.Debug("Translation cache hit", "lang", req.TargetLanguage)
		return item.Result, nil
	}

	res, err := t.next.TranslateText(ctx, req)
	if err != nil {
		return domain.TranslateResult{}, err
	}
	t.store.Put(key, res, t.ttl)
	return res, nil
}
