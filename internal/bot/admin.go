// admin.go — команды администратора: статистика, бан, удаление,
// массовые операции, индексация истории и журнал.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/ingest"
	"github.com/viizet/Inline10/internal/logfile"
	"github.com/viizet/Inline10/internal/moderation"
	"github.com/viizet/Inline10/internal/service"
	"github.com/viizet/Inline10/internal/sysinfo"
	"github.com/viizet/Inline10/internal/telegram"
)

// Параметры команд.
const (
	defaultIndexLimit = 100
	topLimit          = 10
	loggerLines       = 10
)

// cmdStats — общая статистика: коллекция, пользователи, конфигурация, сервер.
func (b *Bot) cmdStats(ctx context.Context, msg *tgbotapi.Message) error {
	var (
		stats     *model.Stats
		totalSize int64
		users     int64
		snap      sysinfo.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = b.media.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		totalSize, err = b.media.TotalSizeBytes(gctx)
		return err
	})
	g.Go(func() (err error) {
		users, err = b.activity.UserCount(gctx)
		return err
	})
	if b.sysinfo != nil {
		g.Go(func() error {
			snap = b.sysinfo(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed("Error retrieving statistics.", err)
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Bot Statistics</b>\n\n")
	fmt.Fprintf(&sb, "👥 <b>Total Users:</b> %s\n", humanize.Comma(users))
	fmt.Fprintf(&sb, "📁 <b>Total Files:</b> %s\n", humanize.Comma(stats.TotalCount))
	fmt.Fprintf(&sb, "💾 <b>Total Size:</b> %s\n\n", humanize.IBytes(uint64(max(totalSize, 0))))

	sb.WriteString("<b>📂 Files by Type:</b>\n")
	for _, k := range model.AllKinds {
		fmt.Fprintf(&sb, "• %s %s: %s\n", k.Emoji(), kindTitle(k), humanize.Comma(stats.CountsByType[k]))
	}

	sb.WriteString("\n<b>⚙️ Configuration:</b>\n")
	fmt.Fprintf(&sb, "• Indexed Channels: %d\n", len(b.cfg.Channels))
	fmt.Fprintf(&sb, "• Cache Time: %ds\n", b.cfg.CacheTime)
	fmt.Fprintf(&sb, "• Max Results: %d\n", b.cfg.MaxResults)
	fmt.Fprintf(&sb, "• Caption Filter: %s\n", checkMark(b.cfg.UseCaptionFilter))

	if b.sysinfo != nil {
		sb.WriteString("\n<b>🖥 Server:</b>\n")
		fmt.Fprintf(&sb, "• CPU: %.1f%% of %d cores, load %.2f\n", snap.CPUPercent, snap.CPUCores, snap.Load1)
		fmt.Fprintf(&sb, "• RAM: %s / %s (%.0f%%)\n",
			humanize.IBytes(snap.MemUsed), humanize.IBytes(snap.MemTotal), snap.MemPercent())
		fmt.Fprintf(&sb, "• Disk: %s / %s (%.0f%%)\n",
			humanize.IBytes(snap.DiskUsed), humanize.IBytes(snap.DiskTotal), snap.DiskPercent())
		fmt.Fprintf(&sb, "• Uptime: %s\n", snap.HostUptime)
		fmt.Fprintf(&sb, "• Goroutines: %d\n", snap.Goroutines)
	}

	b.reply(msg, sb.String())
	return nil
}

func checkMark(v bool) string {
	if v {
		return "✅"
	}
	return "❌"
}

// cmdTotal — количество и суммарный размер файлов.
func (b *Bot) cmdTotal(ctx context.Context, msg *tgbotapi.Message) error {
	stats, err := b.media.Stats(ctx)
	if err != nil {
		return failed("Error retrieving total count.", err)
	}
	size, err := b.media.TotalSizeBytes(ctx)
	if err != nil {
		return failed("Error retrieving total count.", err)
	}
	b.reply(msg, fmt.Sprintf("📊 <b>Total Files:</b> %s\n💾 <b>Total Size:</b> %s",
		humanize.Comma(stats.TotalCount), humanize.IBytes(uint64(max(size, 0)))))
	return nil
}

// parseUserID разбирает единственный аргумент команды.
func parseUserID(msg *tgbotapi.Message, syntax string) (int64, error) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return 0, usage(syntax)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, failed("Invalid user ID. Please provide a valid number.", ErrUsage)
	}
	return id, nil
}

func (b *Bot) cmdBan(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseUserID(msg, "/ban &lt;user_id&gt;")
	if err != nil {
		return err
	}
	if b.cfg.IsAdmin(id) {
		return failed("Administrators cannot be banned.", ErrUsage)
	}
	if err := b.bans.Ban(ctx, id); err != nil {
		return failed("Error banning user.", err)
	}
	b.logger.Info("Пользователь заблокирован", slog.Int64("user_id", id), slog.Int64("admin_id", msg.From.ID))
	b.reply(msg, fmt.Sprintf("✅ User <code>%d</code> has been banned from using the bot.", id))
	return nil
}

func (b *Bot) cmdUnban(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := parseUserID(msg, "/unban &lt;user_id&gt;")
	if err != nil {
		return err
	}
	removed, err := b.bans.Unban(ctx, id)
	if err != nil {
		return failed("Error unbanning user.", err)
	}
	if !removed {
		b.reply(msg, fmt.Sprintf("ℹ️ User <code>%d</code> is not banned.", id))
		return nil
	}
	b.logger.Info("Пользователь разблокирован", slog.Int64("user_id", id), slog.Int64("admin_id", msg.From.ID))
	b.reply(msg, fmt.Sprintf("✅ User <code>%d</code> has been unbanned and can now use the bot.", id))
	return nil
}

// cmdDelete удаляет из индекса медиа из сообщения, на которое дан ответ.
// Для пересланного поста ключ берётся из исходного канала.
func (b *Bot) cmdDelete(ctx context.Context, msg *tgbotapi.Message) error {
	target := msg.ReplyToMessage
	if target == nil {
		return usage("reply to a media message with /delete")
	}
	if !ingest.HasMedia(target) {
		return failed("Replied message doesn't contain any media.", ErrUsage)
	}

	chatID, messageID := target.Chat.ID, target.MessageID
	if target.ForwardFromChat != nil && target.ForwardFromMessageID != 0 {
		chatID, messageID = target.ForwardFromChat.ID, target.ForwardFromMessageID
	}

	deleted, err := b.media.Delete(ctx, chatID, messageID)
	if err != nil {
		return failed("Error deleting media from database.", err)
	}
	if !deleted {
		b.reply(msg, "❌ Media not found in database or already deleted.")
		return nil
	}
	b.cache.Invalidate()
	b.reply(msg, "✅ Media deleted from database successfully.")
	return nil
}

// cmdRemove готовит удаление всех записей по запросу.
func (b *Bot) cmdRemove(ctx context.Context, msg *tgbotapi.Message) error {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		return usage("/remove &lt;query&gt;")
	}

	p, err := b.moderation.PrepareRemove(ctx, msg.From.ID, query)
	switch {
	case errors.Is(err, moderation.ErrNothingFound):
		return failed(fmt.Sprintf("Nothing found for <code>%s</code>.", escape(query)), err)
	case errors.Is(err, service.ErrInvalidQuery):
		return usage("/remove &lt;query&gt;")
	case err != nil:
		return failed("Error searching media.", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ <b>%d file(s) match</b> <code>%s</code>:\n\n", len(p.Items), escape(p.Query))
	for i, rec := range p.Items {
		if i == topLimit {
			fmt.Fprintf(&sb, "… and %d more\n", len(p.Items)-topLimit)
			break
		}
		fmt.Fprintf(&sb, "• %s %s\n", rec.FileType.Emoji(), escape(truncateRunes(rec.FileName, maxTitleRunes)))
	}
	fmt.Fprintf(&sb, "\nSend <code>%s</code> to delete them or /cancel to abort.", moderation.ConfirmLiteral)
	b.reply(msg, sb.String())
	return nil
}

// cmdConfirm выполняет ожидающее удаление по ответу CONFIRM.
func (b *Bot) cmdConfirm(ctx context.Context, msg *tgbotapi.Message) error {
	const title = "🗑 <b>Removing media...</b>"

	status := b.reply(msg, title)
	counts, err := b.moderation.ConfirmRemove(ctx, msg.From.ID, msg.Text, b.progress(status, title))
	switch {
	case errors.Is(err, moderation.ErrConfirmationMismatch):
		b.editHTML(status, fmt.Sprintf("❌ Confirmation mismatch. Send <code>%s</code> exactly or /cancel.",
			moderation.ConfirmLiteral))
		return nil
	case errors.Is(err, moderation.ErrNoPending):
		b.editHTML(status, "❌ Nothing is waiting for confirmation.")
		return nil
	}
	b.finish(status, "🗑 <b>Removal complete</b>", counts, err)
	return nil
}

func (b *Bot) cmdCancel(_ context.Context, msg *tgbotapi.Message) error {
	if b.moderation.Cancel(msg.From.ID) {
		b.reply(msg, "✅ Pending removal cancelled.")
		return nil
	}
	b.reply(msg, "ℹ️ Nothing to cancel.")
	return nil
}

// cmdEdit переименовывает записи: /edit <old> | <new>.
func (b *Bot) cmdEdit(ctx context.Context, msg *tgbotapi.Message) error {
	const title = "✏️ <b>Renaming media...</b>"

	args := msg.CommandArguments()
	if strings.TrimSpace(args) == "" {
		return usage("/edit &lt;old&gt; | &lt;new&gt;")
	}

	status := b.reply(msg, title)
	counts, err := b.moderation.Rename(ctx, args, b.progress(status, title))
	switch {
	case errors.Is(err, moderation.ErrInvalidRename):
		b.editHTML(status, "❌ Usage: /edit &lt;old&gt; | &lt;new&gt;")
		return nil
	case errors.Is(err, moderation.ErrNothingFound):
		b.editHTML(status, "❌ Nothing found to rename.")
		return nil
	}
	b.finish(status, "✏️ <b>Rename complete</b>", counts, err)
	return nil
}

// cmdBroadcast копирует сообщение, на которое дан ответ, всем пользователям.
func (b *Bot) cmdBroadcast(ctx context.Context, msg *tgbotapi.Message) error {
	const title = "📡 <b>Broadcasting...</b>"

	source := msg.ReplyToMessage
	if source == nil {
		return usage("reply to a message with /broadcast")
	}

	send := func(ctx context.Context, userID int64) error {
		_, err := telegram.SendWithRetry(ctx, b.api, tgbotapi.NewCopyMessage(userID, source.Chat.ID, source.MessageID))
		return err
	}

	status := b.reply(msg, title)
	counts, err := b.moderation.Broadcast(ctx, send, b.progress(status, title))
	if errors.Is(err, moderation.ErrNoRecipients) {
		b.editHTML(status, "❌ No users found to broadcast to.")
		return nil
	}
	b.finish(status, "📡 <b>Broadcast complete</b>", counts, err)
	return nil
}

// cmdIndex индексирует историю канала: /index <channel_id> [limit].
func (b *Bot) cmdIndex(ctx context.Context, msg *tgbotapi.Message) error {
	syntax := "/index &lt;channel_id&gt; [limit]\n\nExample: <code>/index -1001234567890 100</code>"
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 || len(fields) > 2 {
		return usage(syntax)
	}
	chatID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return failed("Invalid channel ID. Please provide a valid number.", ErrUsage)
	}
	limit := defaultIndexLimit
	if len(fields) == 2 {
		if limit, err = strconv.Atoi(fields[1]); err != nil {
			return usage(syntax)
		}
	}
	if limit < 1 || limit > b.indexer.MaxLimit() {
		return failed(fmt.Sprintf("Limit must be between 1 and %d messages.", b.indexer.MaxLimit()), ErrUsage)
	}

	status := b.reply(msg, fmt.Sprintf("🔄 <b>Starting manual indexing...</b>\n\n📊 Channel ID: <code>%d</code>\n"+
		"📊 Limit: %d messages\n⏳ Please wait...", chatID, limit))

	report, err := b.indexer.IndexHistory(ctx, b.history, chatID, limit, func(r ingest.HistoryReport) {
		b.editHTML(status, progressText("🔄 <b>Indexing: "+escape(r.ChatTitle)+"</b>", r.Counts))
	})
	if err != nil {
		b.editHTML(status, "❌ Error accessing channel: "+escape(err.Error()))
		return nil
	}

	var abortErr error
	if report.Counts.Aborted {
		abortErr = moderation.ErrCircuitOpen
		if ctx.Err() != nil {
			abortErr = ctx.Err()
		}
	}
	b.finish(status, "✅ <b>Indexing complete: "+escape(report.ChatTitle)+"</b>", report.Counts, abortErr)
	return nil
}

// cmdTop10 — частые запросы и активные пользователи.
func (b *Bot) cmdTop10(ctx context.Context, msg *tgbotapi.Message) error {
	var (
		queries []model.QueryCount
		users   []model.UserActivity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		queries, err = b.activity.TopQueries(gctx, topLimit)
		return err
	})
	g.Go(func() (err error) {
		users, err = b.activity.ActiveUsers(gctx, topLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return failed("Error retrieving search statistics.", err)
	}

	var sb strings.Builder
	sb.WriteString("🔥 <b>Top Searches</b>\n\n")
	writeQueryCounts(&sb, queries)
	sb.WriteString("\n👤 <b>Most Active Users</b>\n\n")
	if len(users) == 0 {
		sb.WriteString("No data yet.\n")
	}
	for i, u := range users {
		name := strconv.FormatInt(u.UserID, 10)
		if u.Username != "" {
			name = "@" + u.Username
		}
		fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, escape(name), humanize.Comma(u.Count))
	}
	b.reply(msg, sb.String())
	return nil
}

// cmdNotFound — частые запросы без результатов.
func (b *Bot) cmdNotFound(ctx context.Context, msg *tgbotapi.Message) error {
	queries, err := b.activity.TopNotFound(ctx, topLimit)
	if err != nil {
		return failed("Error retrieving search statistics.", err)
	}
	var sb strings.Builder
	sb.WriteString("🕳 <b>Most Searched, Not Found</b>\n\n")
	writeQueryCounts(&sb, queries)
	b.reply(msg, sb.String())
	return nil
}

func writeQueryCounts(sb *strings.Builder, rows []model.QueryCount) {
	if len(rows) == 0 {
		sb.WriteString("No data yet.\n")
		return
	}
	for i, q := range rows {
		fmt.Fprintf(sb, "%d. <code>%s</code> — %s\n", i+1, escape(q.Query), humanize.Comma(q.Count))
	}
}

// cmdLogger показывает последние строки файла лога.
func (b *Bot) cmdLogger(_ context.Context, msg *tgbotapi.Message) error {
	lines, err := logfile.Tail(b.cfg.LogFile, loggerLines)
	if errors.Is(err, logfile.ErrNoLogFile) {
		return failed("Log file not found.", err)
	}
	if err != nil {
		return failed("Error reading log file.", err)
	}
	if len(lines) == 0 {
		b.reply(msg, "📋 Log file is empty.")
		return nil
	}

	body := limitText(strings.Join(lines, "\n"), maxMessageLen-100)
	b.reply(msg, "📋 <b>Recent Log Entries:</b>\n\n<code>"+escape(body)+"</code>")
	return nil
}

// progress возвращает обработчик промежуточных счётчиков, обновляющий статус.
func (b *Bot) progress(status *tgbotapi.Message, title string) moderation.ProgressFunc {
	return func(c batch.Counts) {
		b.editHTML(status, progressText(title, c))
	}
}

// finish выводит итог пакетной операции.
func (b *Bot) finish(status *tgbotapi.Message, title string, c batch.Counts, err error) {
	if errors.Is(err, moderation.ErrCircuitOpen) {
		title = "⛔️ <b>Stopped after repeated failures</b>"
	}
	b.editHTML(status, resultText(title, c, err))
}
