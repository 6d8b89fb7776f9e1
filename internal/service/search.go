// search.go — конвейер поиска: разбор запроса → кэш → хранилище → усечение.
// Ошибки хранилища не пробрасываются наружу, а становятся исходом OutcomeError.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/repository"
)

// Ошибки сервисного слоя.
var (
	// ErrInvalidQuery — пустой термин там, где нужен поиск.
	ErrInvalidQuery = errors.New("пустой поисковый запрос")
)

// Prometheus-метрики поиска.
var (
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_search_total",
		Help: "Общее количество поисковых запросов по исходу (search, browse, error).",
	}, []string{"outcome"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediasearch_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// OutcomeKind — путь, которым прошёл запрос.
type OutcomeKind int

const (
	// OutcomeSearch — поиск по термину.
	OutcomeSearch OutcomeKind = iota
	// OutcomeBrowse — пустой термин, последние записи.
	OutcomeBrowse
	// OutcomeError — ошибка хранилища.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBrowse:
		return "browse"
	case OutcomeError:
		return "error"
	default:
		return "search"
	}
}

// Outcome — результат конвейера поиска.
type Outcome struct {
	// Kind — путь обработки
	Kind OutcomeKind
	// Query — разобранный запрос
	Query ParsedQuery
	// Items — найденные записи, новые первыми
	Items []*model.MediaRecord
	// Err — ошибка хранилища (только для OutcomeError)
	Err error
}

// SearchOptions — параметры конвейера из конфигурации.
type SearchOptions struct {
	// MaxResults — максимум результатов поиска (MAX_RESULTS)
	MaxResults int
	// BrowseLimit — количество записей при пустом запросе (BROWSE_LIMIT)
	BrowseLimit int
	// CaptionSearch — разрешён ли поиск по подписи (USE_CAPTION_FILTER)
	CaptionSearch bool
}

// SearchService — конвейер поиска медиа.
type SearchService struct {
	media  repository.MediaRepository
	cache  *CacheService
	opts   SearchOptions
	logger *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(
	media repository.MediaRepository,
	cache *CacheService,
	opts SearchOptions,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		media:  media,
		cache:  cache,
		opts:   opts,
		logger: logger.With(slog.String("component", "search_service")),
	}
}

// Search обрабатывает строку inline-запроса.
// Пустой термин всегда идёт по пути просмотра, а не поиска.
func (s *SearchService) Search(ctx context.Context, raw string) Outcome {
	start := time.Now()
	q := ParseQuery(raw)

	var out Outcome
	if q.IsBrowse() {
		out = s.browse(ctx, q)
	} else {
		out = s.search(ctx, q)
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())
	searchTotal.WithLabelValues(out.Kind.String()).Inc()

	if out.Kind == OutcomeError {
		s.logger.Error("Ошибка поиска",
			slog.String("term", q.Term),
			slog.String("error", out.Err.Error()),
		)
		return out
	}

	s.logger.Debug("Поиск выполнен",
		slog.String("outcome", out.Kind.String()),
		slog.String("term", q.Term),
		slog.Int("returned", len(out.Items)),
		slog.Duration("duration", duration),
	)
	return out
}

// browse возвращает последние записи: по типу из фильтра или смешанные.
// Неизвестный тип в фильтре даёт пустой результат.
func (s *SearchService) browse(ctx context.Context, q ParsedQuery) Outcome {
	out := Outcome{Kind: OutcomeBrowse, Query: q}

	var err error
	switch {
	case q.Filter != nil:
		kind, ok := q.FilterKind()
		if !ok {
			return out
		}
		out.Items, err = s.media.RecentByType(ctx, kind, s.opts.BrowseLimit)
	default:
		out.Items, err = s.media.RecentMixed(ctx, s.opts.BrowseLimit)
	}

	if err != nil {
		return Outcome{Kind: OutcomeError, Query: q, Err: fmt.Errorf("просмотр последних записей: %w", err)}
	}
	return out
}

// search выполняет поиск по термину. Результаты кэшируются по (термин, фильтр).
func (s *SearchService) search(ctx context.Context, q ParsedQuery) Outcome {
	key := q.cacheKey()
	if items, ok := s.cache.Get(key); ok {
		return Outcome{Kind: OutcomeSearch, Query: q, Items: items}
	}

	items, err := s.media.Search(ctx, s.params(q))
	if err != nil {
		return Outcome{Kind: OutcomeError, Query: q, Err: fmt.Errorf("поиск медиа: %w", err)}
	}

	s.cache.Set(key, items)
	return Outcome{Kind: OutcomeSearch, Query: q, Items: items}
}

// Lookup выполняет поиск в обход кэша (для массовых операций администратора).
// Пустой термин — ErrInvalidQuery.
func (s *SearchService) Lookup(ctx context.Context, raw string) ([]*model.MediaRecord, error) {
	q := ParseQuery(raw)
	if q.IsBrowse() {
		return nil, ErrInvalidQuery
	}
	items, err := s.media.Search(ctx, s.params(q))
	if err != nil {
		return nil, fmt.Errorf("поиск медиа: %w", err)
	}
	return items, nil
}

// Invalidate сбрасывает кэш результатов после изменения коллекции.
func (s *SearchService) Invalidate() {
	s.cache.Purge()
}

func (s *SearchService) params(q ParsedQuery) repository.SearchParams {
	return repository.SearchParams{
		Term:          q.Term,
		Type:          q.Filter,
		CaptionSearch: s.opts.CaptionSearch,
		Limit:         s.opts.MaxResults,
	}
}

// Paginate возвращает страницу items, начиная со смещения offset
// (строка next_offset из inline-запроса), и смещение следующей страницы.
// Некорректное смещение трактуется как 0; пустой next — страниц больше нет.
func Paginate(items []*model.MediaRecord, offset string, pageSize int) (page []*model.MediaRecord, next string) {
	start, err := strconv.Atoi(offset)
	if err != nil || start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil, ""
	}

	end := min(start+pageSize, len(items))
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next
}
