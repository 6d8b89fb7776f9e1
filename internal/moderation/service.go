// service.go — workflows /remove, /edit и /broadcast поверх batch.Runner.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/repository"
	"github.com/viizet/Inline10/internal/telegram"
)

// ConfirmLiteral — точный ответ, подтверждающий удаление.
const ConfirmLiteral = "CONFIRM"

// Частота обновления статуса для каждой операции.
const (
	removeProgressEvery    = 5
	renameProgressEvery    = 3
	broadcastProgressEvery = 10
)

// renameDelimiter — разделитель аргументов /edit.
const renameDelimiter = " | "

// Ошибки модерации.
var (
	// ErrNoPending — нет ожидающей подтверждения операции.
	ErrNoPending = errors.New("нет операции, ожидающей подтверждения")
	// ErrConfirmationMismatch — ответ не совпал с CONFIRM.
	ErrConfirmationMismatch = errors.New("подтверждение не совпадает")
	// ErrNothingFound — по запросу ничего не найдено.
	ErrNothingFound = errors.New("по запросу ничего не найдено")
	// ErrInvalidRename — аргументы /edit не в формате "<old> | <new>".
	ErrInvalidRename = errors.New("ожидается формат: <old> | <new>")
	// ErrNoRecipients — некому рассылать.
	ErrNoRecipients = errors.New("нет получателей рассылки")
	// ErrCircuitOpen — пакет прерван после серии ошибок подряд.
	ErrCircuitOpen = errors.New("операция прервана: слишком много ошибок подряд")
)

// Finder — поиск записей для массовой операции.
type Finder interface {
	Lookup(ctx context.Context, raw string) ([]*model.MediaRecord, error)
}

// Invalidator сбрасывает кэш результатов поиска.
type Invalidator interface {
	Invalidate()
}

// Recipients — получатели рассылки.
type Recipients interface {
	UserIDs(ctx context.Context) ([]int64, error)
}

// SendFunc доставляет рассылку одному пользователю.
type SendFunc func(ctx context.Context, userID int64) error

// ProgressFunc получает промежуточные счётчики.
type ProgressFunc func(batch.Counts)

// Service — массовые операции администратора.
type Service struct {
	media       repository.MediaRepository
	finder      Finder
	invalidator Invalidator
	recipients  Recipients
	sessions    *SessionStore
	runner      *batch.Runner
	logger      *slog.Logger
	now         func() time.Time
}

// NewService создаёт сервис модерации.
func NewService(
	media repository.MediaRepository,
	finder Finder,
	invalidator Invalidator,
	recipients Recipients,
	sessions *SessionStore,
	runner *batch.Runner,
	logger *slog.Logger,
) *Service {
	return &Service{
		media:       media,
		finder:      finder,
		invalidator: invalidator,
		recipients:  recipients,
		sessions:    sessions,
		runner:      runner,
		logger:      logger.With(slog.String("component", "moderation")),
		now:         time.Now,
	}
}

// PrepareRemove находит записи по запросу и сохраняет их как ожидающие удаления.
// Повторный вызов того же пользователя заменяет прежний набор.
func (s *Service) PrepareRemove(ctx context.Context, userID int64, query string) (*Pending, error) {
	items, err := s.finder.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNothingFound
	}

	p := &Pending{Query: strings.TrimSpace(query), Items: items, CreatedAt: s.now()}
	s.sessions.Put(userID, p)

	s.logger.Info("Удаление ожидает подтверждения",
		slog.Int64("user_id", userID),
		slog.String("query", p.Query),
		slog.Int("items", len(items)),
	)
	return p, nil
}

// HasPending сообщает, ждёт ли пользователь подтверждения.
func (s *Service) HasPending(userID int64) bool {
	_, ok := s.sessions.Get(userID)
	return ok
}

// Cancel отменяет ожидающую операцию. true — она была.
func (s *Service) Cancel(userID int64) bool {
	return s.sessions.Clear(userID)
}

// ConfirmRemove выполняет ожидающее удаление, если reply точно равен CONFIRM.
// При несовпадении ожидающая операция сохраняется.
func (s *Service) ConfirmRemove(ctx context.Context, userID int64, reply string, progress ProgressFunc) (batch.Counts, error) {
	p, ok := s.sessions.Get(userID)
	if !ok {
		return batch.Counts{}, ErrNoPending
	}
	if strings.TrimSpace(reply) != ConfirmLiteral {
		return batch.Counts{}, ErrConfirmationMismatch
	}
	s.sessions.Clear(userID)

	counts := s.runner.Run(ctx, "remove", len(p.Items), removeProgressEvery,
		func(ctx context.Context, i int) (batch.Result, error) {
			rec := p.Items[i]
			deleted, err := s.media.Delete(ctx, rec.ChatID, rec.MessageID)
			if err != nil {
				return batch.Skipped, err
			}
			if !deleted {
				return batch.Skipped, nil
			}
			return batch.Done, nil
		}, batch.ProgressFunc(progress))

	if counts.Done > 0 {
		s.invalidator.Invalidate()
	}
	return counts, s.abortErr(ctx, counts)
}

// Rename переименовывает записи по аргументу "<old> | <new>".
// Вхождения old в имени файла заменяются на new без учёта регистра.
// Записи, найденные только по подписи (old нет в имени), пропускаются.
func (s *Service) Rename(ctx context.Context, args string, progress ProgressFunc) (batch.Counts, error) {
	oldPart, newPart, found := strings.Cut(args, renameDelimiter)
	oldPart, newPart = strings.TrimSpace(oldPart), strings.TrimSpace(newPart)
	if !found || oldPart == "" || newPart == "" {
		return batch.Counts{}, ErrInvalidRename
	}

	items, err := s.finder.Lookup(ctx, oldPart)
	if err != nil {
		return batch.Counts{}, err
	}
	if len(items) == 0 {
		return batch.Counts{}, ErrNothingFound
	}

	counts := s.runner.Run(ctx, "rename", len(items), renameProgressEvery,
		func(ctx context.Context, i int) (batch.Result, error) {
			rec := items[i]
			title, ok := renamed(rec.FileName, oldPart, newPart)
			if !ok || title == rec.FileName {
				return batch.Skipped, nil
			}
			updated, err := s.media.UpdateTitle(ctx, rec.ChatID, rec.MessageID, title)
			if err != nil {
				return batch.Skipped, err
			}
			if !updated {
				return batch.Skipped, nil
			}
			return batch.Done, nil
		}, batch.ProgressFunc(progress))

	if counts.Done > 0 {
		s.invalidator.Invalidate()
	}
	return counts, s.abortErr(ctx, counts)
}

// Broadcast доставляет сообщение всем пользователям через send.
// Отказ конкретного получателя (403, 400) учитывается как Failed и не
// прерывает рассылку; серия прочих ошибок размыкает circuit breaker.
func (s *Service) Broadcast(ctx context.Context, send SendFunc, progress ProgressFunc) (batch.Counts, error) {
	ids, err := s.recipients.UserIDs(ctx)
	if err != nil {
		return batch.Counts{}, fmt.Errorf("получатели рассылки: %w", err)
	}
	if len(ids) == 0 {
		return batch.Counts{}, ErrNoRecipients
	}

	counts := s.runner.Run(ctx, "broadcast", len(ids), broadcastProgressEvery,
		func(ctx context.Context, i int) (batch.Result, error) {
			err := send(ctx, ids[i])
			if telegram.IsForbidden(err) || telegram.IsBadRequest(err) {
				return batch.Done, batch.Permanent(err)
			}
			return batch.Done, err
		}, batch.ProgressFunc(progress))

	return counts, s.abortErr(ctx, counts)
}

// abortErr возвращает причину прерывания пакета или nil.
func (s *Service) abortErr(ctx context.Context, counts batch.Counts) error {
	if !counts.Aborted {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrCircuitOpen
}

// renamed заменяет вхождения old в name без учёта регистра.
// false — вхождений нет, имя не меняется.
func renamed(name, old, replacement string) (string, bool) {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(old))
	if !re.MatchString(name) {
		return name, false
	}
	return re.ReplaceAllLiteralString(name, replacement), true
}
