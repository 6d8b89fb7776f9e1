// indexer.go — сохранение медиа из каналов: живые посты, правки, удаления, история.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/repository"
)

// historyProgressEvery — частота обновления статуса /index.
const historyProgressEvery = 10

// Ошибки индексации.
var (
	// ErrLimitOutOfRange — лимит /index вне допустимого диапазона.
	ErrLimitOutOfRange = errors.New("недопустимый лимит индексации")
)

// Prometheus-метрики индексации.
var (
	indexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_indexed_total",
		Help: "Сообщения с медиа, обработанные индексатором, по источнику и результату.",
	}, []string{"source", "result"})
	removedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_removed_total",
		Help: "Записи, удалённые из индекса вслед за каналом.",
	})
)

// Outcome — результат индексации одного сообщения.
type Outcome int

const (
	// OutcomeNoMedia — в сообщении нет поддерживаемого медиа.
	OutcomeNoMedia Outcome = iota
	// OutcomeIndexed — запись добавлена.
	OutcomeIndexed
	// OutcomeDuplicate — запись с таким file_unique_id уже есть.
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIndexed:
		return "indexed"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "no_media"
	}
}

// Invalidator сбрасывает кэш результатов поиска после изменения коллекции.
type Invalidator interface {
	Invalidate()
}

// HistorySource — доступ к истории канала для /index.
type HistorySource interface {
	// ChatTitle возвращает название канала (ошибка — канал недоступен боту).
	ChatTitle(ctx context.Context, chatID int64) (string, error)
	// Head возвращает идентификатор последнего сообщения канала.
	Head(ctx context.Context, chatID int64) (int, error)
	// Message возвращает сообщение канала. nil без ошибки — сообщения нет.
	Message(ctx context.Context, chatID int64, messageID int) (*tgbotapi.Message, error)
}

// HistoryReport — итог индексации истории канала.
type HistoryReport struct {
	// ChatTitle — название канала
	ChatTitle string
	// Limit — запрошенное количество сообщений
	Limit int
	// Counts — Done = проиндексировано, Skipped = без медиа или дубликат
	Counts batch.Counts
}

// Indexer — индексатор медиа.
type Indexer struct {
	media       repository.MediaRepository
	invalidator Invalidator
	runner      *batch.Runner
	maxLimit    int
	logger      *slog.Logger
}

// NewIndexer создаёт индексатор.
// maxLimit — верхняя граница лимита /index (INDEX_MAX_LIMIT).
func NewIndexer(
	media repository.MediaRepository,
	invalidator Invalidator,
	runner *batch.Runner,
	maxLimit int,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		media:       media,
		invalidator: invalidator,
		runner:      runner,
		maxLimit:    maxLimit,
		logger:      logger.With(slog.String("component", "indexer")),
	}
}

// MaxLimit возвращает верхнюю границу лимита /index.
func (ix *Indexer) MaxLimit() int {
	return ix.maxLimit
}

// IndexMessage сохраняет медиа из живого поста канала.
func (ix *Indexer) IndexMessage(ctx context.Context, msg *tgbotapi.Message) (Outcome, error) {
	return ix.index(ctx, msg, "live")
}

// HandleEdit переиндексирует отредактированный пост: удаление по
// (chat_id, message_id), затем повторная индексация.
func (ix *Indexer) HandleEdit(ctx context.Context, msg *tgbotapi.Message) (Outcome, error) {
	if msg == nil || msg.Chat == nil {
		return OutcomeNoMedia, nil
	}
	if _, err := ix.media.Delete(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		return OutcomeNoMedia, fmt.Errorf("удаление перед переиндексацией: %w", err)
	}
	ix.invalidator.Invalidate()

	outcome, err := ix.index(ctx, msg, "edit")
	if err != nil {
		return outcome, err
	}
	ix.logger.Info("Пост переиндексирован после правки",
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int("message_id", msg.MessageID),
		slog.String("outcome", outcome.String()),
	)
	return outcome, nil
}

// HandleDeleted удаляет записи удалённых в канале сообщений.
// Ошибка по одному сообщению логируется и не прерывает остальные.
// Возвращает количество удалённых записей.
func (ix *Indexer) HandleDeleted(ctx context.Context, chatID int64, messageIDs []int) int {
	deleted := 0
	for _, id := range messageIDs {
		ok, err := ix.media.Delete(ctx, chatID, id)
		if err != nil {
			ix.logger.Error("Ошибка удаления записи",
				slog.Int64("chat_id", chatID),
				slog.Int("message_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		removedTotal.Add(float64(deleted))
		ix.invalidator.Invalidate()
		ix.logger.Info("Записи удалены вслед за каналом",
			slog.Int64("chat_id", chatID),
			slog.Int("deleted", deleted),
		)
	}
	return deleted
}

// IndexHistory индексирует последние limit сообщений канала, от новых к старым.
// Прогресс передаётся каждые 10 обработанных сообщений.
func (ix *Indexer) IndexHistory(
	ctx context.Context,
	src HistorySource,
	chatID int64,
	limit int,
	progress func(HistoryReport),
) (*HistoryReport, error) {
	if limit < 1 || limit > ix.maxLimit {
		return nil, fmt.Errorf("%w: %d (допустимо 1..%d)", ErrLimitOutOfRange, limit, ix.maxLimit)
	}

	title, err := src.ChatTitle(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("доступ к каналу %d: %w", chatID, err)
	}
	head, err := src.Head(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("последнее сообщение канала %d: %w", chatID, err)
	}

	report := &HistoryReport{ChatTitle: title, Limit: limit}

	item := func(ctx context.Context, i int) (batch.Result, error) {
		messageID := head - i
		if messageID <= 0 {
			return batch.Skipped, nil
		}
		msg, err := src.Message(ctx, chatID, messageID)
		if err != nil {
			return batch.Skipped, err
		}
		outcome, err := ix.index(ctx, msg, "history")
		if err != nil {
			return batch.Skipped, err
		}
		if outcome == OutcomeIndexed {
			return batch.Done, nil
		}
		return batch.Skipped, nil
	}

	var onProgress batch.ProgressFunc
	if progress != nil {
		onProgress = func(c batch.Counts) {
			progress(HistoryReport{ChatTitle: title, Limit: limit, Counts: c})
		}
	}

	report.Counts = ix.runner.Run(ctx, "index", limit, historyProgressEvery, item, onProgress)
	return report, nil
}

// index извлекает и сохраняет запись; source — метка для метрик.
func (ix *Indexer) index(ctx context.Context, msg *tgbotapi.Message, source string) (Outcome, error) {
	rec, ok := Extract(msg)
	if !ok {
		return OutcomeNoMedia, nil
	}
	if err := rec.Validate(); err != nil {
		return OutcomeNoMedia, fmt.Errorf("некорректная запись: %w", err)
	}

	res, err := ix.media.Save(ctx, rec)
	if err != nil {
		return OutcomeNoMedia, fmt.Errorf("сохранение медиа: %w", err)
	}

	if res == repository.SaveDuplicate {
		indexedTotal.WithLabelValues(source, "duplicate").Inc()
		ix.logger.Debug("Медиа уже проиндексировано", slog.String("file_name", rec.FileName))
		return OutcomeDuplicate, nil
	}

	indexedTotal.WithLabelValues(source, "indexed").Inc()
	ix.invalidator.Invalidate()
	ix.logger.Info("Медиа проиндексировано",
		slog.String("file_type", string(rec.FileType)),
		slog.String("file_name", rec.FileName),
		slog.String("chat_title", rec.ChatTitle),
	)
	return OutcomeIndexed, nil
}
