// Пакет ingest — индексация медиа из отслеживаемых каналов:
// извлечение записи из сообщения, живые посты, правки, удаления
// и ручная индексация истории (/index).
package ingest

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/viizet/Inline10/internal/domain/model"
)

// Extract преобразует сообщение канала в MediaRecord.
// ok = false, если сообщение не содержит поддерживаемого медиа.
//
// Порядок проверки: video, animation, document, audio, photo.
// Animation проверяется раньше document: Bot API заполняет оба поля для GIF.
func Extract(msg *tgbotapi.Message) (*model.MediaRecord, bool) {
	if msg == nil {
		return nil, false
	}

	var rec *model.MediaRecord
	switch {
	case msg.Video != nil:
		v := msg.Video
		rec = model.NewMediaRecord(model.VideoAttrs{
			Duration: v.Duration, Width: v.Width, Height: v.Height, MimeType: v.MimeType,
		})
		rec.FileUniqueID, rec.FileID, rec.FileSize = v.FileUniqueID, v.FileID, int64(v.FileSize)
		rec.FileName = nameOr(v.FileName, "video_%d.mp4", msg.MessageID)

	case msg.Animation != nil:
		a := msg.Animation
		rec = model.NewMediaRecord(model.GIFAttrs{
			Duration: a.Duration, Width: a.Width, Height: a.Height, MimeType: a.MimeType,
		})
		rec.FileUniqueID, rec.FileID, rec.FileSize = a.FileUniqueID, a.FileID, int64(a.FileSize)
		rec.FileName = nameOr(a.FileName, "gif_%d.gif", msg.MessageID)

	case msg.Document != nil:
		d := msg.Document
		rec = model.NewMediaRecord(model.DocumentAttrs{MimeType: d.MimeType})
		rec.FileUniqueID, rec.FileID, rec.FileSize = d.FileUniqueID, d.FileID, int64(d.FileSize)
		rec.FileName = nameOr(d.FileName, "document_%d", msg.MessageID)

	case msg.Audio != nil:
		a := msg.Audio
		rec = model.NewMediaRecord(model.AudioAttrs{
			Duration: a.Duration, Performer: a.Performer, Title: a.Title, MimeType: a.MimeType,
		})
		rec.FileUniqueID, rec.FileID, rec.FileSize = a.FileUniqueID, a.FileID, int64(a.FileSize)
		rec.FileName = nameOr(a.FileName, "audio_%d.mp3", msg.MessageID)

	case len(msg.Photo) > 0:
		p := largestPhoto(msg.Photo)
		rec = model.NewMediaRecord(model.PhotoAttrs{Width: p.Width, Height: p.Height})
		rec.FileUniqueID, rec.FileID, rec.FileSize = p.FileUniqueID, p.FileID, int64(p.FileSize)
		rec.FileName = fmt.Sprintf("photo_%d.jpg", msg.MessageID)

	default:
		return nil, false
	}

	rec.Caption = msg.Caption
	rec.MessageID = msg.MessageID
	rec.Date = msg.Time().UTC()
	if msg.Chat != nil {
		rec.ChatID = msg.Chat.ID
		rec.ChatTitle = msg.Chat.Title
	}
	if msg.From != nil {
		rec.FromUserID = msg.From.ID
	}
	return rec, true
}

// HasMedia сообщает, содержит ли сообщение поддерживаемое медиа.
func HasMedia(msg *tgbotapi.Message) bool {
	return msg != nil &&
		(msg.Video != nil || msg.Animation != nil || msg.Document != nil || msg.Audio != nil || len(msg.Photo) > 0)
}

// nameOr возвращает name или синтетическое имя по шаблону с message id.
func nameOr(name, pattern string, messageID int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf(pattern, messageID)
}

// largestPhoto выбирает наибольший размер фото (по площади).
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
