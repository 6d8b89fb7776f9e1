// presenter.go — преобразование MediaRecord в результаты inline-ответа.
// Ошибка построения одного результата пропускает только эту запись.
package bot

import (
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/viizet/Inline10/internal/domain/model"
)

var presentSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediasearch_present_skipped_total",
	Help: "Записи, пропущенные при построении inline-результатов.",
})

// errNoFileID — у записи нет дескриптора для отправки.
var errNoFileID = errors.New("пустой file_id")

// PresentOptions — оформление результатов.
type PresentOptions struct {
	// CaptionSignature — строка, добавляемая к подписи видео
	CaptionSignature string
	// JoinURL — ссылка кнопки «Join» у видео (пусто — только кнопка поиска)
	JoinURL string
}

// Presenter строит inline-результаты.
type Presenter struct {
	opts   PresentOptions
	logger *slog.Logger
}

// NewPresenter создаёт presenter.
func NewPresenter(opts PresentOptions, logger *slog.Logger) *Presenter {
	return &Presenter{opts: opts, logger: logger.With(slog.String("component", "presenter"))}
}

// Present строит результаты для items. start — порядковый номер первой
// записи во всём наборе, из него выводятся идентификаторы результатов.
func (p *Presenter) Present(items []*model.MediaRecord, start int) []any {
	results := make([]any, 0, len(items))
	for i, rec := range items {
		res, err := p.safeBuild(rec, start+i)
		if err != nil {
			presentSkipped.Inc()
			p.logger.Warn("Запись пропущена при построении результата",
				slog.Int("index", start+i),
				slog.String("error", err.Error()),
			)
			continue
		}
		results = append(results, res)
	}
	return results
}

// safeBuild вызывает build, превращая панику в ошибку.
func (p *Presenter) safeBuild(rec *model.MediaRecord, index int) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника: %v", r)
		}
	}()
	return p.build(rec, index)
}

// build выбирает вариант результата по типу записи.
func (p *Presenter) build(rec *model.MediaRecord, index int) (any, error) {
	if rec == nil {
		return nil, errors.New("пустая запись")
	}
	if rec.FileID == "" {
		return nil, errNoFileID
	}

	title := resultTitle(rec)
	description := resultDescription(rec)

	switch rec.FileType {
	case model.KindVideo:
		r := tgbotapi.NewInlineQueryResultCachedVideo(fmt.Sprintf("video_%d", index), rec.FileID, title)
		r.Description = description
		r.Caption = p.videoCaption(rec.FileName)
		r.ReplyMarkup = p.videoKeyboard()
		return r, nil
	case model.KindDocument:
		r := tgbotapi.NewInlineQueryResultCachedDocument(fmt.Sprintf("doc_%d", index), rec.FileID, title)
		r.Description = description
		return r, nil
	case model.KindAudio:
		return tgbotapi.NewInlineQueryResultCachedAudio(fmt.Sprintf("audio_%d", index), rec.FileID), nil
	case model.KindPhoto:
		r := tgbotapi.NewInlineQueryResultCachedPhoto(fmt.Sprintf("photo_%d", index), rec.FileID)
		r.Title = title
		r.Description = description
		return r, nil
	case model.KindGIF:
		r := tgbotapi.NewInlineQueryResultCachedGIF(fmt.Sprintf("gif_%d", index), rec.FileID)
		r.Title = title
		return r, nil
	default:
		r := tgbotapi.NewInlineQueryResultCachedDocument(fmt.Sprintf("file_%d", index), rec.FileID, title)
		r.Description = description
		return r, nil
	}
}

// videoCaption — имя файла и подпись канала.
func (p *Presenter) videoCaption(name string) string {
	if p.opts.CaptionSignature == "" {
		return name
	}
	return name + "\n\n" + p.opts.CaptionSignature
}

// videoKeyboard — кнопки «Search» и «Join» под видео.
func (p *Presenter) videoKeyboard() *tgbotapi.InlineKeyboardMarkup {
	current := ""
	row := []tgbotapi.InlineKeyboardButton{
		{Text: "🔍 Search", SwitchInlineQueryCurrentChat: &current},
	}
	if p.opts.JoinURL != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("📢 Join", p.opts.JoinURL))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return &kb
}

// resultTitle — значок типа и имя файла (не длиннее maxTitleRunes).
func resultTitle(rec *model.MediaRecord) string {
	name := rec.FileName
	if name == "" {
		name = "Unknown"
	}
	return rec.FileType.Emoji() + " " + truncateRunes(name, maxTitleRunes)
}

// resultDescription — размер и начало подписи.
func resultDescription(rec *model.MediaRecord) string {
	d := formatSize(rec.FileSize)
	if rec.Caption != "" {
		d += " • " + previewRunes(rec.Caption, maxCaptionPrev)
	}
	return d
}

// ensureResults подставляет placeholder, если результатов нет.
func ensureResults(results []any, placeholder any) []any {
	if len(results) == 0 {
		return []any{placeholder}
	}
	return results
}

// --- Информационные результаты ---

func article(id, title, description, text string) tgbotapi.InlineQueryResultArticle {
	a := tgbotapi.NewInlineQueryResultArticleHTML(id, title, text)
	a.Description = description
	return a
}

func errorResult() tgbotapi.InlineQueryResultArticle {
	return article("error", "❌ Search Error", "An error occurred while searching",
		"❌ <b>Search Error</b>\n\nAn error occurred while searching. Please try again later.\n"+
			"If the problem persists, contact the bot administrators.")
}

func notFoundResult(term string) tgbotapi.InlineQueryResultArticle {
	return article("no_results", "🔍 Not Found",
		fmt.Sprintf("No results for '%s' - Try different keywords", term),
		fmt.Sprintf("🔍 <b>Not Found</b>\n\nNothing found for: <code>%s</code>\n\n"+
			"💡 <b>Try:</b>\n• Different keywords\n• Shorter search terms\n• Check spelling", escape(term)))
}

func emptyBrowseResult() tgbotapi.InlineQueryResultArticle {
	return article("help", "🔍 No Media Found", "Add media to channels first, then search here",
		"🔍 <b>No media files found</b>\n\nTo use this bot:\n"+
			"• Add the bot to your media channels\n"+
			"• Upload some videos, documents, or other files\n"+
			"• Then search here using keywords\n\n"+
			"<b>Search Examples:</b>\n• <code>video name</code>\n• <code>keyword | video</code>")
}

func unauthorizedResult() tgbotapi.InlineQueryResultArticle {
	return article("unauthorized", "❌ Unauthorized Access", "Contact admin for access",
		"❌ You are not authorized to use this bot.\nContact an administrator for access.")
}

func subscribeResult(username string) tgbotapi.InlineQueryResultArticle {
	return article("auth_required", "🔒 Authorization Required", "Join our channel to use this bot",
		fmt.Sprintf("🔒 You need to join our channel to use this bot.\nStart the bot @%s for more information.", username))
}
