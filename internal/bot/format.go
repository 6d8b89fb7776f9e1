// format.go — тексты ответов и форматирование чисел, размеров и прогресса.
package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/domain/model"
)

// ErrUsage — команда вызвана с неверными аргументами.
var ErrUsage = errors.New("неверные аргументы команды")

// replyError — ошибка с готовым текстом для пользователя.
type replyError struct {
	text string
	err  error
}

func (e *replyError) Error() string {
	if e.err == nil {
		return e.text
	}
	return e.text + ": " + e.err.Error()
}

func (e *replyError) Unwrap() error { return e.err }

// usage возвращает ошибку с подсказкой по синтаксису команды.
func usage(text string) error {
	return &replyError{text: "❌ Usage: " + text, err: ErrUsage}
}

// failed возвращает ошибку с сообщением для пользователя.
func failed(text string, err error) error {
	return &replyError{text: "❌ " + text, err: err}
}

const msgInternalError = "❌ Something went wrong. Please try again later."

// Ответы пользователю без доступа.
const (
	msgBanned     = "🚫 <b>You are banned</b>\n\nYou can no longer use this bot."
	alertBanned   = "🚫 You are banned from using this bot."
	alertNoAccess = "❌ You don't have access to this bot."
)

// Лимиты текста Telegram.
const (
	maxMessageLen  = 4000
	maxTitleRunes  = 50
	maxCaptionPrev = 100
)

// escape экранирует текст для ParseMode HTML.
func escape(s string) string {
	return html.EscapeString(s)
}

// truncateRunes обрезает s до limit символов: при превышении
// оставляет limit-3 символа и добавляет "...".
func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// previewRunes оставляет первые limit символов и добавляет "..." при обрезке.
func previewRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// formatSize возвращает человекочитаемый размер; 0 — неизвестен.
func formatSize(size int64) string {
	if size <= 0 {
		return "Unknown size"
	}
	return humanize.IBytes(uint64(size))
}

// kindTitle возвращает название типа для списков статистики.
func kindTitle(k model.MediaKind) string {
	s := string(k)
	if k == model.KindGIF {
		return "GIF"
	}
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// isNotModified — Telegram отклонил правку, не меняющую текст.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// progressText — промежуточный статус пакетной операции.
func progressText(title string, c batch.Counts) string {
	return fmt.Sprintf("%s\n\n✅ Done: %d\n⏭ Skipped: %d\n❌ Failed: %d\n⏳ Progress: %d/%d\n\n<code>job %s</code>",
		title, c.Done, c.Skipped, c.Failed, c.Processed, c.Total, c.JobID)
}

// resultText — итог пакетной операции.
func resultText(title string, c batch.Counts, err error) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "✅ Done: %d\n⏭ Skipped: %d\n❌ Failed: %d\n📊 Processed: %d/%d",
		c.Done, c.Skipped, c.Failed, c.Processed, c.Total)
	if err != nil {
		fmt.Fprintf(&sb, "\n\n⚠️ %s", escape(err.Error()))
	}
	fmt.Fprintf(&sb, "\n\n<code>job %s</code>", c.JobID)
	return sb.String()
}

// limitText обрезает длинный текст до limit байт, не разрывая UTF-8 символы.
func limitText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n... (truncated)"
}
