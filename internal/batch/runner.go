// Пакет batch — последовательное выполнение пакетных операций
// (рассылка, индексация истории, массовое удаление и переименование).
//
// Каждый элемент выполняется через circuit breaker (sony/gobreaker):
// после MaxConsecutiveFailures ошибок подряд пакет прерывается.
// Между элементами выдерживается ItemDelay (golang.org/x/time/rate).
// Ошибка или паника одного элемента учитывается и не прерывает пакет.
// Ошибки, помеченные Permanent, не учитываются circuit breaker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Prometheus-метрики пакетных операций.
var (
	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_batch_items_total",
		Help: "Обработанные элементы пакетных операций по операции и результату.",
	}, []string{"operation", "result"})
	abortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_batch_aborted_total",
		Help: "Пакетные операции, прерванные circuit breaker или отменой контекста.",
	}, []string{"operation"})
)

// Result — исход обработки одного элемента без ошибки.
type Result int

const (
	// Done — элемент обработан.
	Done Result = iota
	// Skipped — элемент пропущен (нет медиа, дубликат, нечего менять).
	Skipped
)

// permanentError — ошибка самого элемента (получатель заблокировал бота,
// чат не существует). Учитывается как Failed, но не приближает
// срабатывание circuit breaker.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку элемента как не связанную с доступностью API.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, что err помечена через Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ItemFunc обрабатывает элемент с индексом i.
type ItemFunc func(ctx context.Context, i int) (Result, error)

// ProgressFunc получает промежуточные счётчики.
type ProgressFunc func(Counts)

// Counts — счётчики пакетной операции.
type Counts struct {
	// JobID — короткий идентификатор запуска для логов и сообщений
	JobID string
	// Total — запланированное количество элементов
	Total int
	// Processed — обработано элементов (Done + Skipped + Failed)
	Processed int
	// Done — успешно обработано
	Done int
	// Skipped — пропущено
	Skipped int
	// Failed — завершилось ошибкой
	Failed int
	// Aborted — пакет прерван до обработки всех элементов
	Aborted bool
}

// Runner — исполнитель пакетных операций.
type Runner struct {
	itemDelay   time.Duration
	maxFailures int
	logger      *slog.Logger
}

// NewRunner создаёт исполнитель с общими для всех операций параметрами.
func NewRunner(itemDelay time.Duration, maxConsecutiveFailures int, logger *slog.Logger) *Runner {
	return &Runner{
		itemDelay:   itemDelay,
		maxFailures: maxConsecutiveFailures,
		logger:      logger.With(slog.String("component", "batch_runner")),
	}
}

// Run последовательно обрабатывает total элементов.
// Возвращает итоговые счётчики; ошибка элемента наружу не пробрасывается.
func (r *Runner) Run(ctx context.Context, operation string, total, progressEvery int, item ItemFunc, progress ProgressFunc) Counts {
	counts := Counts{JobID: uuid.NewString()[:8], Total: total}
	logger := r.logger.With(
		slog.String("operation", operation),
		slog.String("job_id", counts.JobID),
	)
	logger.Info("Пакетная операция запущена", slog.Int("total", total))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if r.itemDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.itemDelay), 1)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: operation + "-" + counts.JobID,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return r.maxFailures > 0 && c.ConsecutiveFailures >= uint32(r.maxFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	})

	for i := 0; i < total; i++ {
		if err := limiter.Wait(ctx); err != nil {
			counts.Aborted = true
			break
		}

		res, err := breaker.Execute(func() (any, error) {
			return safeCall(ctx, item, i)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			counts.Aborted = true
			break
		}

		counts.Processed++
		switch {
		case err != nil:
			counts.Failed++
			itemsTotal.WithLabelValues(operation, "failed").Inc()
			logger.Warn("Ошибка обработки элемента", slog.Int("index", i), slog.String("error", err.Error()))
		case res.(Result) == Skipped:
			counts.Skipped++
			itemsTotal.WithLabelValues(operation, "skipped").Inc()
		default:
			counts.Done++
			itemsTotal.WithLabelValues(operation, "done").Inc()
		}

		if progress != nil && progressEvery > 0 && counts.Processed%progressEvery == 0 && counts.Processed < total {
			progress(counts)
		}
	}

	if counts.Aborted {
		abortedTotal.WithLabelValues(operation).Inc()
		logger.Warn("Пакетная операция прервана",
			slog.Int("processed", counts.Processed),
			slog.Int("failed", counts.Failed),
		)
	} else {
		logger.Info("Пакетная операция завершена",
			slog.Int("done", counts.Done),
			slog.Int("skipped", counts.Skipped),
			slog.Int("failed", counts.Failed),
		)
	}
	return counts
}

// safeCall вызывает item, превращая панику в ошибку.
func safeCall(ctx context.Context, item ItemFunc, i int) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("паника при обработке элемента %d: %v", i, p)
		}
	}()
	return item(ctx, i)
}
