// history.go — чтение истории канала для /index.
//
// Bot API не отдаёт историю чата. Сообщение канала читается пересылкой
// в служебный чат (INDEX_DUMP_CHAT): у пересланной копии те же file_id и
// file_unique_id, после чтения копия удаляется. Последний message_id канала
// берётся из постов, увиденных с момента запуска, иначе пробным сообщением,
// иначе по максимальному проиндексированному message_id.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/viizet/Inline10/internal/repository"
)

// probeText — текст пробного сообщения для определения последнего message_id.
const probeText = "⏳"

// HeadTracker запоминает наибольший message_id каждого канала из живых постов.
type HeadTracker struct {
	mu    sync.Mutex
	heads map[int64]int
}

// NewHeadTracker создаёт пустой трекер.
func NewHeadTracker() *HeadTracker {
	return &HeadTracker{heads: make(map[int64]int)}
}

// Observe учитывает пост канала.
func (t *HeadTracker) Observe(chatID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if messageID > t.heads[chatID] {
		t.heads[chatID] = messageID
	}
}

// Head возвращает наибольший увиденный message_id.
func (t *HeadTracker) Head(chatID int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.heads[chatID]
	return id, ok
}

// LatestIndexed — наибольший проиндексированный message_id канала.
type LatestIndexed interface {
	LatestMessageID(ctx context.Context, chatID int64) (int, error)
}

// History — источник истории канала через пересылку в служебный чат.
type History struct {
	api      API
	dumpChat int64
	tracker  *HeadTracker
	indexed  LatestIndexed
	logger   *slog.Logger
}

// NewHistory создаёт источник истории.
func NewHistory(api API, dumpChat int64, tracker *HeadTracker, indexed LatestIndexed, logger *slog.Logger) *History {
	return &History{
		api:      api,
		dumpChat: dumpChat,
		tracker:  tracker,
		indexed:  indexed,
		logger:   logger.With(slog.String("component", "history")),
	}
}

// ChatTitle возвращает название канала.
func (h *History) ChatTitle(_ context.Context, chatID int64) (string, error) {
	chat, err := h.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return "", err
	}
	if chat.Title == "" {
		return "Unknown Chat", nil
	}
	return chat.Title, nil
}

// Head возвращает последний message_id канала.
func (h *History) Head(ctx context.Context, chatID int64) (int, error) {
	if id, ok := h.tracker.Head(chatID); ok {
		return id, nil
	}

	probe := tgbotapi.NewMessage(chatID, probeText)
	probe.DisableNotification = true
	msg, err := h.api.Send(probe)
	if err == nil {
		if _, derr := h.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); derr != nil {
			h.logger.Warn("Не удалось удалить пробное сообщение",
				slog.Int64("chat_id", chatID),
				slog.String("error", derr.Error()),
			)
		}
		return msg.MessageID - 1, nil
	}
	h.logger.Debug("Пробное сообщение не отправлено", slog.String("error", err.Error()))

	id, ierr := h.indexed.LatestMessageID(ctx, chatID)
	if ierr != nil {
		if errors.Is(ierr, repository.ErrNotFound) {
			return 0, fmt.Errorf("последнее сообщение неизвестно: %w", err)
		}
		return 0, ierr
	}
	return id, nil
}

// Message читает сообщение канала. nil без ошибки — сообщения нет
// (удалено или служебное).
func (h *History) Message(ctx context.Context, chatID int64, messageID int) (*tgbotapi.Message, error) {
	fwd := tgbotapi.NewForward(h.dumpChat, chatID, messageID)
	fwd.DisableNotification = true

	copyMsg, err := SendWithRetry(ctx, h.api, fwd)
	if err != nil {
		if IsBadRequest(err) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(h.dumpChat, copyMsg.MessageID)); err != nil {
		h.logger.Warn("Не удалось удалить пересланную копию",
			slog.Int("message_id", copyMsg.MessageID),
			slog.String("error", err.Error()),
		)
	}

	return restoreOriginal(copyMsg, chatID, messageID), nil
}

// restoreOriginal возвращает копии канал, message_id и дату оригинала.
func restoreOriginal(copyMsg tgbotapi.Message, chatID int64, messageID int) *tgbotapi.Message {
	msg := copyMsg
	msg.MessageID = messageID
	msg.From = nil
	if msg.ForwardDate != 0 {
		msg.Date = msg.ForwardDate
	}
	if msg.ForwardFromChat != nil {
		msg.Chat = msg.ForwardFromChat
	} else {
		msg.Chat = &tgbotapi.Chat{ID: chatID, Type: "channel"}
	}
	return &msg
}
