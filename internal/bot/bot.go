// Пакет bot — обработка обновлений Telegram: диспетчер, команды,
// inline-поиск, представление результатов и контроль доступа.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/config"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/ingest"
	"github.com/viizet/Inline10/internal/moderation"
	"github.com/viizet/Inline10/internal/repository"
	"github.com/viizet/Inline10/internal/service"
	"github.com/viizet/Inline10/internal/sysinfo"
	"github.com/viizet/Inline10/internal/telegram"
)

// maxConcurrentUpdates — сколько обновлений обрабатывается одновременно.
const maxConcurrentUpdates = 16

// Метрики диспетчера.
var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasearch_updates_total",
		Help: "Обработанные обновления Telegram по типу.",
	}, []string{"type"})
	updatePanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediasearch_update_panics_total",
		Help: "Паники, перехваченные при обработке обновлений.",
	})
)

// Searcher — конвейер поиска.
type Searcher interface {
	Search(ctx context.Context, raw string) service.Outcome
}

// Activity — учёт пользователей и аналитика поиска.
type Activity interface {
	TouchUser(ctx context.Context, userID int64, username, firstName string) error
	RecordSearch(ctx context.Context, userID int64, username, query string, found bool)
	TopQueries(ctx context.Context, limit int) ([]model.QueryCount, error)
	TopNotFound(ctx context.Context, limit int) ([]model.QueryCount, error)
	ActiveUsers(ctx context.Context, limit int) ([]model.UserActivity, error)
	UserCount(ctx context.Context) (int64, error)
}

// Indexer — индексация постов каналов.
type Indexer interface {
	IndexMessage(ctx context.Context, msg *tgbotapi.Message) (ingest.Outcome, error)
	HandleEdit(ctx context.Context, msg *tgbotapi.Message) (ingest.Outcome, error)
	IndexHistory(ctx context.Context, src ingest.HistorySource, chatID int64, limit int,
		progress func(ingest.HistoryReport)) (*ingest.HistoryReport, error)
	MaxLimit() int
}

// Moderator — массовые операции администратора.
type Moderator interface {
	PrepareRemove(ctx context.Context, userID int64, query string) (*moderation.Pending, error)
	HasPending(userID int64) bool
	Cancel(userID int64) bool
	ConfirmRemove(ctx context.Context, userID int64, reply string, progress moderation.ProgressFunc) (batch.Counts, error)
	Rename(ctx context.Context, args string, progress moderation.ProgressFunc) (batch.Counts, error)
	Broadcast(ctx context.Context, send moderation.SendFunc, progress moderation.ProgressFunc) (batch.Counts, error)
}

// Invalidator сбрасывает кэш результатов поиска.
type Invalidator interface {
	Invalidate()
}

// HeadObserver учитывает message_id живых постов каналов.
type HeadObserver interface {
	Observe(chatID int64, messageID int)
}

// Deps — зависимости бота.
type Deps struct {
	API        telegram.API
	Config     *config.Config
	Search     Searcher
	Activity   Activity
	Media      repository.MediaRepository
	Cache      Invalidator
	Bans       repository.BanRepository
	Indexer    Indexer
	History    ingest.HistorySource
	Heads      HeadObserver
	Moderation Moderator
	// SysInfo — снимок ресурсов хоста для /stats (nil — раздел не выводится)
	SysInfo func(ctx context.Context) sysinfo.Snapshot
	// Username — имя бота без @ для подсказок
	Username string
	Logger   *slog.Logger
}

// Bot — обработчик обновлений.
type Bot struct {
	api        telegram.API
	cfg        *config.Config
	search     Searcher
	activity   Activity
	media      repository.MediaRepository
	cache      Invalidator
	bans       repository.BanRepository
	indexer    Indexer
	history    ingest.HistorySource
	heads      HeadObserver
	moderation Moderator
	sysinfo    func(ctx context.Context) sysinfo.Snapshot
	username   string
	presenter  *Presenter
	commands   map[string]command
	logger     *slog.Logger
}

// New создаёт бота.
func New(d Deps) *Bot {
	b := &Bot{
		api:        d.API,
		cfg:        d.Config,
		search:     d.Search,
		activity:   d.Activity,
		media:      d.Media,
		cache:      d.Cache,
		bans:       d.Bans,
		indexer:    d.Indexer,
		history:    d.History,
		heads:      d.Heads,
		moderation: d.Moderation,
		sysinfo:    d.SysInfo,
		username:   d.Username,
		logger:     d.Logger.With(slog.String("component", "bot")),
	}
	b.presenter = NewPresenter(PresentOptions{
		CaptionSignature: d.Config.VideoCaptionSignature,
		JoinURL:          d.Config.JoinURL,
	}, d.Logger)
	b.commands = b.commandTable()
	return b
}

// Run обрабатывает обновления до закрытия канала или отмены ctx.
// Возвращает управление после завершения всех начатых обработчиков.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUpdates)

	b.logger.Info("Обработка обновлений запущена", slog.String("username", b.username))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			g.Go(func() error {
				b.HandleUpdate(gctx, upd)
				return nil
			})
		}
	}

	err := g.Wait()
	b.logger.Info("Обработка обновлений остановлена")
	return err
}

// HandleUpdate обрабатывает одно обновление. Паника не выходит наружу:
// пользователь получает ответ об ошибке, обработка остальных продолжается.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			updatePanics.Inc()
			b.logger.Error("Паника при обработке обновления",
				slog.Int("update_id", upd.UpdateID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			b.recoverReply(upd)
		}
	}()

	switch {
	case upd.ChannelPost != nil:
		updatesTotal.WithLabelValues("channel_post").Inc()
		b.handleChannelPost(ctx, upd.ChannelPost)
	case upd.EditedChannelPost != nil:
		updatesTotal.WithLabelValues("edited_channel_post").Inc()
		b.handleEditedPost(ctx, upd.EditedChannelPost)
	case upd.InlineQuery != nil:
		updatesTotal.WithLabelValues("inline_query").Inc()
		b.handleInline(ctx, upd.InlineQuery)
	case upd.CallbackQuery != nil:
		updatesTotal.WithLabelValues("callback_query").Inc()
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		updatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, upd.Message)
	case upd.EditedMessage != nil:
		updatesTotal.WithLabelValues("edited_message").Inc()
		b.handleEditedPost(ctx, upd.EditedMessage)
	default:
		updatesTotal.WithLabelValues("other").Inc()
	}
}

// recoverReply отправляет безопасный ответ после паники.
func (b *Bot) recoverReply(upd tgbotapi.Update) {
	switch {
	case upd.InlineQuery != nil:
		b.answerInline(upd.InlineQuery.ID, []any{errorResult()}, 0, "")
	case upd.Message != nil && upd.Message.Chat != nil && !b.cfg.IsMonitoredChannel(upd.Message.Chat.ID):
		b.reply(upd.Message, msgInternalError)
	case upd.CallbackQuery != nil:
		_, _ = b.api.Request(tgbotapi.NewCallback(upd.CallbackQuery.ID, msgInternalError))
	}
}

// handleChannelPost индексирует пост отслеживаемого канала.
func (b *Bot) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if b.heads != nil {
		b.heads.Observe(msg.Chat.ID, msg.MessageID)
	}
	if !b.cfg.IsMonitoredChannel(msg.Chat.ID) {
		return
	}
	if _, err := b.indexer.IndexMessage(ctx, msg); err != nil {
		b.logger.Error("Ошибка индексации поста",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int("message_id", msg.MessageID),
			slog.String("error", err.Error()),
		)
	}
}

// handleEditedPost переиндексирует изменённый пост.
func (b *Bot) handleEditedPost(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !b.cfg.IsMonitoredChannel(msg.Chat.ID) {
		return
	}
	if _, err := b.indexer.HandleEdit(ctx, msg); err != nil {
		b.logger.Error("Ошибка переиндексации поста",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int("message_id", msg.MessageID),
			slog.String("error", err.Error()),
		)
	}
}

// handleMessage обрабатывает сообщения: посты групп-источников, команды
// и ответ CONFIRM на ожидающее удаление.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if b.cfg.IsMonitoredChannel(msg.Chat.ID) {
		b.handleChannelPost(ctx, msg)
		return
	}
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.dispatchCommand(ctx, msg)
		return
	}

	if b.cfg.IsAdmin(msg.From.ID) && b.moderation.HasPending(msg.From.ID) {
		b.runCommand(ctx, msg, "confirm", b.cmdConfirm)
	}
}

// dispatchCommand находит и выполняет команду.
func (b *Bot) dispatchCommand(ctx context.Context, msg *tgbotapi.Message) {
	name := msg.Command()
	cmd, ok := b.commands[name]
	if !ok {
		return
	}
	if cmd.admin && !b.cfg.IsAdmin(msg.From.ID) {
		b.logger.Warn("Команда администратора от пользователя",
			slog.String("command", name),
			slog.Int64("user_id", msg.From.ID),
		)
		return
	}
	b.runCommand(ctx, msg, name, cmd.run)
}

// runCommand выполняет обработчик и превращает ошибку в ответ «❌ ...».
func (b *Bot) runCommand(ctx context.Context, msg *tgbotapi.Message, name string, run commandFunc) {
	err := run(ctx, msg)
	if err == nil {
		return
	}

	var re *replyError
	if errors.As(err, &re) {
		if !errors.Is(err, ErrUsage) {
			b.logger.Warn("Команда завершилась ошибкой",
				slog.String("command", name),
				slog.Int64("user_id", msg.From.ID),
				slog.String("error", err.Error()),
			)
		}
		b.reply(msg, re.text)
		return
	}

	b.logger.Error("Ошибка выполнения команды",
		slog.String("command", name),
		slog.Int64("user_id", msg.From.ID),
		slog.String("error", err.Error()),
	)
	b.reply(msg, msgInternalError)
}

// reply отвечает на сообщение HTML-текстом.
func (b *Bot) reply(msg *tgbotapi.Message, text string) *tgbotapi.Message {
	return b.sendHTML(msg.Chat.ID, text, msg.MessageID, nil)
}

// sendHTML отправляет HTML-сообщение. nil — отправить не удалось.
func (b *Bot) sendHTML(chatID int64, text string, replyTo int, markup any) *tgbotapi.Message {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	m.ReplyToMessageID = replyTo
	if markup != nil {
		m.ReplyMarkup = markup
	}
	sent, err := b.api.Send(m)
	if err != nil {
		b.logger.Warn("Не удалось отправить сообщение",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if sent.Chat == nil {
		sent.Chat = &tgbotapi.Chat{ID: chatID}
	}
	return &sent
}

// editHTML заменяет текст ранее отправленного сообщения.
func (b *Bot) editHTML(status *tgbotapi.Message, text string) {
	if status == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(status.Chat.ID, status.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil && !isNotModified(err) {
		b.logger.Debug("Не удалось обновить статус",
			slog.Int("message_id", status.MessageID),
			slog.String("error", err.Error()),
		)
	}
}
