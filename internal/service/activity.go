// activity.go — учёт пользователей и журналов поиска.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/repository"
)

// ActivityService — запись событий поиска и аналитика по ним.
type ActivityService struct {
	users  repository.UserRepository
	events repository.EventRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewActivityService создаёт сервис учёта активности.
func NewActivityService(
	users repository.UserRepository,
	events repository.EventRepository,
	logger *slog.Logger,
) *ActivityService {
	return &ActivityService{
		users:  users,
		events: events,
		logger: logger.With(slog.String("component", "activity_service")),
		now:    time.Now,
	}
}

// TouchUser регистрирует пользователя при /start.
func (s *ActivityService) TouchUser(ctx context.Context, userID int64, username, firstName string) error {
	return s.users.Touch(ctx, userID, username, firstName)
}

// RecordSearch пишет событие поиска. Найдено — search_logs и счётчик
// пользователя; не найдено — not_found_logs. Ошибки только логируются:
// учёт не должен влиять на ответ пользователю.
func (s *ActivityService) RecordSearch(ctx context.Context, userID int64, username, query string, found bool) {
	ev := model.SearchEvent{UserID: userID, Username: username, Query: query, Timestamp: s.now()}

	if !found {
		if err := s.events.LogNotFound(ctx, ev); err != nil {
			s.logger.Warn("Не удалось записать not_found", slog.String("error", err.Error()))
		}
		return
	}

	if err := s.events.LogSearch(ctx, ev); err != nil {
		s.logger.Warn("Не удалось записать поиск", slog.String("error", err.Error()))
	}
	if err := s.users.IncrementSearchCount(ctx, userID, username); err != nil {
		s.logger.Warn("Не удалось обновить счётчик поисков",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// TopQueries возвращает самые частые запросы.
func (s *ActivityService) TopQueries(ctx context.Context, limit int) ([]model.QueryCount, error) {
	return s.events.TopSearchedQueries(ctx, limit)
}

// TopNotFound возвращает самые частые запросы без результатов.
func (s *ActivityService) TopNotFound(ctx context.Context, limit int) ([]model.QueryCount, error) {
	return s.events.MostSearchedNotFound(ctx, limit)
}

// ActiveUsers возвращает самых активных пользователей.
func (s *ActivityService) ActiveUsers(ctx context.Context, limit int) ([]model.UserActivity, error) {
	return s.events.MostActiveUsers(ctx, limit)
}

// UserCount возвращает количество пользователей.
func (s *ActivityService) UserCount(ctx context.Context) (int64, error) {
	return s.users.Count(ctx)
}

// UserIDs возвращает получателей рассылки (без заблокированных).
func (s *ActivityService) UserIDs(ctx context.Context) ([]int64, error) {
	return s.users.IDs(ctx)
}
