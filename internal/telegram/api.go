// Пакет telegram — обёртки над Bot API: интерфейс клиента, разбор ошибок
// и источник истории каналов для /index.
package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API — используемое подмножество методов *tgbotapi.BotAPI.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// RetryAfter возвращает паузу, которую требует Bot API после 429.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second, true
	}
	return 0, false
}

// IsBadRequest сообщает, что Bot API отклонил запрос с кодом 400.
func IsBadRequest(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 400
}

// IsForbidden сообщает, что Bot API отклонил запрос с кодом 403
// (пользователь заблокировал бота или не начинал с ним диалог).
func IsForbidden(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 403
}

// SendWithRetry отправляет c; при 429 ждёт указанную паузу и повторяет один раз.
func SendWithRetry(ctx context.Context, api API, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := api.Send(c)
	wait, ok := RetryAfter(err)
	if !ok {
		return msg, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	case <-timer.C:
	}
	return api.Send(c)
}
