// cache.go — LRU-кэш результатов поиска с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/viizet/Inline10/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_cache_hits_total",
		Help: "Общее количество попаданий в кэш результатов поиска.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_cache_misses_total",
		Help: "Общее количество промахов кэша результатов поиска.",
	})
)

// CacheService — кэш результатов поиска по ключу (термин, фильтр).
// Живёт столько же, сколько кэш inline-ответа на стороне Telegram (CACHE_TIME),
// и полностью сбрасывается при любом изменении коллекции.
type CacheService struct {
	cache *expirable.LRU[string, []*model.MediaRecord]
}

// NewCacheService создаёт кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, []*model.MediaRecord](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает результаты из кэша. Обновляет метрики hit/miss.
func (c *CacheService) Get(key string) ([]*model.MediaRecord, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет результаты в кэше.
func (c *CacheService) Set(key string, items []*model.MediaRecord) {
	c.cache.Add(key, items)
}

// Purge очищает кэш целиком (новая запись, удаление, переименование).
func (c *CacheService) Purge() {
	c.cache.Purge()
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
