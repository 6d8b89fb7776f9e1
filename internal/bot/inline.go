// inline.go — ответ на inline-запрос: доступ → конвейер поиска →
// presenter → страница результатов с next_offset.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/viizet/Inline10/internal/service"
)

// inlinePageSize — максимум результатов в одном ответе Telegram.
const inlinePageSize = 50

var (
	inlineAnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_inline_answers_total",
		Help: "Ответы на inline-запросы по исходу.",
	}, []string{"outcome"})
	inlineAnswerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediasearch_inline_answer_duration_seconds",
		Help:    "Длительность обработки inline-запроса.",
		Buckets: prometheus.DefBuckets,
	})
)

// handleInline отвечает на inline-запрос.
func (b *Bot) handleInline(ctx context.Context, q *tgbotapi.InlineQuery) {
	start := time.Now()
	defer func() { inlineAnswerDuration.Observe(time.Since(start).Seconds()) }()

	if q.From == nil {
		return
	}

	switch decision := b.checkAccess(ctx, q.From.ID); decision {
	case accessAllowed:
	case accessNotSubscribed:
		inlineAnswersTotal.WithLabelValues(decision.String()).Inc()
		b.answerInline(q.ID, []any{subscribeResult(b.username)}, 0, "")
		return
	default:
		inlineAnswersTotal.WithLabelValues(decision.String()).Inc()
		b.answerInline(q.ID, []any{unauthorizedResult()}, 0, "")
		return
	}

	out := b.search.Search(ctx, q.Query)
	inlineAnswersTotal.WithLabelValues(out.Kind.String()).Inc()

	switch out.Kind {
	case service.OutcomeError:
		b.answerInline(q.ID, []any{errorResult()}, 0, "")
		return
	case service.OutcomeBrowse:
		page, next := service.Paginate(out.Items, q.Offset, inlinePageSize)
		results := ensureResults(b.presenter.Present(page, offsetIndex(q.Offset)), emptyBrowseResult())
		b.answerInline(q.ID, results, b.cfg.BrowseCacheTime, next)
		return
	}

	// Журнал поиска пишется только для первой страницы.
	if q.Offset == "" {
		b.activity.RecordSearch(ctx, q.From.ID, q.From.UserName, out.Query.Term, len(out.Items) > 0)
	}

	page, next := service.Paginate(out.Items, q.Offset, inlinePageSize)
	results := ensureResults(b.presenter.Present(page, offsetIndex(q.Offset)), notFoundResult(out.Query.Term))
	b.answerInline(q.ID, results, b.cfg.CacheTime, next)
}

// answerInline отправляет ответ. cacheTime 0 — ответ персональный и не кэшируется.
func (b *Bot) answerInline(queryID string, results []any, cacheTime int, nextOffset string) {
	cfg := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       results,
		CacheTime:     cacheTime,
		IsPersonal:    true,
		NextOffset:    nextOffset,
	}
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn("Не удалось ответить на inline-запрос",
			slog.String("query_id", queryID),
			slog.String("error", err.Error()),
		)
	}
}

// offsetIndex возвращает порядковый номер первой записи страницы.
func offsetIndex(offset string) int {
	n, err := strconv.Atoi(offset)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
