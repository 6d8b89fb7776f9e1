// access.go — контроль доступа: бан → администратор → allowlist → подписка.
package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// access — решение о доступе пользователя.
type access int

const (
	accessAllowed access = iota
	accessBanned
	accessUnauthorized
	accessNotSubscribed
)

func (a access) String() string {
	switch a {
	case accessBanned:
		return "banned"
	case accessUnauthorized:
		return "unauthorized"
	case accessNotSubscribed:
		return "not_subscribed"
	default:
		return "allowed"
	}
}

// checkAccess проверяет доступ пользователя к поиску.
// Ошибка хранилища при проверке бана не блокирует пользователя.
func (b *Bot) checkAccess(ctx context.Context, userID int64) access {
	banned, err := b.bans.IsBanned(ctx, userID)
	if err != nil {
		b.logger.Warn("Не удалось проверить бан",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	if banned {
		return accessBanned
	}
	if b.cfg.IsAdmin(userID) {
		return accessAllowed
	}
	if !b.cfg.IsAllowlisted(userID) {
		return accessUnauthorized
	}
	if !b.isSubscribed(userID) {
		return accessNotSubscribed
	}
	return accessAllowed
}

// isSubscribed проверяет участие в AUTH_CHANNEL. Ошибка API — не подписан.
func (b *Bot) isSubscribed(userID int64) bool {
	if b.cfg.AuthChannel == 0 {
		return true
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: b.cfg.AuthChannel, UserID: userID},
	})
	if err != nil {
		b.logger.Debug("Проверка подписки не удалась",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return member.Status != "left" && member.Status != "kicked"
}
