package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"chat-console/internal/domain"
)

// CacheItem представляет кэшированный результат перевода
type CacheItem struct {
	Result    domain.TranslateResult
	ExpiresAt time.Time
}

// CacheStore управляет хранением и извлечением кэшированных переводов
type CacheStore struct {
	cache map[string]*CacheItem
	mutex sync.RWMutex
	now   func() time.Time
}

// NewCacheStore создает новый экземпляр CacheStore
func NewCacheStore() *CacheStore {
	return &CacheStore{
		cache: make(map[string]*CacheItem),
		now:   time.Now,
	}
}

// Get извлекает кэшированный элемент по его ключу (хешу)
func (cs *CacheStore) Get(key string) (*CacheItem, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	item, exists := cs.cache[key]
	if !exists || cs.now().After(item.ExpiresAt) {
		return nil, false
	}

	return item, true
}

// Put сохраняет перевод в кэш с указанным сроком действия
func (cs *CacheStore) Put(key string, result domain.TranslateResult, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache[key] = &CacheItem{
		Result:    result,
		ExpiresAt: cs.now().Add(ttl),
	}
}

// Len возвращает число элементов, включая еще не удаленные просроченные.
func (cs *CacheStore) Len() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()
	return len(cs.cache)
}

// CleanupExpired удаляет просроченные элементы из кэша
func (cs *CacheStore) CleanupExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	removed := 0
	for key, item := range cs.cache {
		if now.After(item.ExpiresAt) {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker запускает таймер для периодической очистки просроченных элементов
func (cs *CacheStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}

// CalculateHash вычисляет хеш SHA256 для пары язык/текст.
// Разделитель исключает совпадение ключей вида ("en", "xtext") и ("enx", "text").
func CalculateHash(lang, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(lang))
	hasher.Write([]byte{0})
	hasher.Write([]byte(text))
	return fmt.Sprintf("%x", hasher.Sum(nil))
}
