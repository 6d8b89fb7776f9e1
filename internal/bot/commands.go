// commands.go — таблица команд, пользовательские команды и callback-кнопки.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Данные callback-кнопок.
const (
	callbackHelp     = "help"
	callbackCheckSub = "check_sub"
)

type commandFunc func(ctx context.Context, msg *tgbotapi.Message) error

type command struct {
	admin bool
	run   commandFunc
}

// commandTable связывает имена команд с обработчиками.
func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"start":     {run: b.cmdStart},
		"help":      {run: b.cmdHelp},
		"commands":  {admin: true, run: b.cmdCommands},
		"stats":     {admin: true, run: b.cmdStats},
		"total":     {admin: true, run: b.cmdTotal},
		"broadcast": {admin: true, run: b.cmdBroadcast},
		"ban":       {admin: true, run: b.cmdBan},
		"unban":     {admin: true, run: b.cmdUnban},
		"delete":    {admin: true, run: b.cmdDelete},
		"remove":    {admin: true, run: b.cmdRemove},
		"cancel":    {admin: true, run: b.cmdCancel},
		"edit":      {admin: true, run: b.cmdEdit},
		"index":     {admin: true, run: b.cmdIndex},
		"top10":     {admin: true, run: b.cmdTop10},
		"notfound":  {admin: true, run: b.cmdNotFound},
		"logger":    {admin: true, run: b.cmdLogger},
	}
}

// cmdStart регистрирует пользователя и показывает приветствие.
func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) error {
	a := b.checkAccess(ctx, msg.From.ID)
	if a != accessBanned {
		if err := b.activity.TouchUser(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName); err != nil {
			b.logger.Warn("Не удалось сохранить пользователя",
				slog.Int64("user_id", msg.From.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	b.greet(msg.Chat.ID, msg.From, a)
	return nil
}

// greet отправляет приветствие или причину отказа в доступе.
func (b *Bot) greet(chatID int64, user *tgbotapi.User, a access) {
	if a != accessAllowed {
		b.deny(chatID, a)
		return
	}
	b.sendHTML(chatID, welcomeText(escape(user.FirstName), b.username), 0, welcomeKeyboard())
}

// deny отправляет причину отказа в доступе.
func (b *Bot) deny(chatID int64, a access) {
	switch a {
	case accessBanned:
		b.sendHTML(chatID, msgBanned, 0, nil)
	case accessUnauthorized:
		b.sendHTML(chatID, "❌ <b>Unauthorized Access</b>\n\nYou are not authorized to use this bot.\n"+
			"Contact an administrator for access.", 0, nil)
	case accessNotSubscribed:
		b.sendHTML(chatID, "🔒 <b>Access Restricted</b>\n\nYou need to join our channel to use this bot.\n"+
			"Join the channel and then check your subscription.", 0, b.subscribeKeyboard())
	}
}

// cmdHelp показывает справку администратора или пользователя.
// Пользователю без доступа вместо справки приходит причина отказа.
func (b *Bot) cmdHelp(ctx context.Context, msg *tgbotapi.Message) error {
	if a := b.checkAccess(ctx, msg.From.ID); a != accessAllowed {
		b.deny(msg.Chat.ID, a)
		return nil
	}
	if b.cfg.IsAdmin(msg.From.ID) {
		b.reply(msg, adminHelpText(b.username))
		return nil
	}
	b.reply(msg, userHelpText(b.username))
	return nil
}

// cmdCommands перечисляет команды администратора.
func (b *Bot) cmdCommands(_ context.Context, msg *tgbotapi.Message) error {
	b.reply(msg, adminCommandsText)
	return nil
}

// handleCallback обрабатывает кнопки приветствия.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}

	a := b.checkAccess(ctx, cq.From.ID)
	if a == accessBanned {
		b.answerCallback(cq.ID, alertBanned, true)
		return
	}

	switch cq.Data {
	case callbackHelp:
		if a != accessAllowed {
			b.answerCallback(cq.ID, alertNoAccess, true)
			return
		}
		b.answerCallback(cq.ID, "", false)
		if cq.Message != nil && cq.Message.Chat != nil {
			b.editHTML(cq.Message, userHelpText(b.username))
		}
	case callbackCheckSub:
		if a == accessNotSubscribed {
			b.answerCallback(cq.ID, "❌ Please join the channel first!", true)
			return
		}
		if a != accessAllowed {
			b.answerCallback(cq.ID, alertNoAccess, true)
			return
		}
		b.answerCallback(cq.ID, "✅ Subscription verified! You can now use the bot.", true)
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		b.greet(chatID, cq.From, a)
	default:
		b.answerCallback(cq.ID, "", false)
	}
}

func (b *Bot) answerCallback(id, text string, alert bool) {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	if _, err := b.api.Request(cb); err != nil {
		b.logger.Debug("Не удалось ответить на callback", slog.String("error", err.Error()))
	}
}

// subscribeKeyboard — кнопки «Join Channel» (если задан JOIN_URL) и проверки подписки.
func (b *Bot) subscribeKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if b.cfg.JoinURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Join Channel", b.cfg.JoinURL)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Check Subscription", callbackCheckSub)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func welcomeKeyboard() tgbotapi.InlineKeyboardMarkup {
	current := ""
	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{{Text: "🎬 Search Media", SwitchInlineQueryCurrentChat: &current}},
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("ℹ️ Help", callbackHelp)),
	)
}

// --- Тексты ---

func welcomeText(firstName, username string) string {
	return strings.NewReplacer("{name}", firstName, "{bot}", username).Replace(`🎉 <b>Welcome to Media Search Bot!</b>

Hello {name}! I'm your personal media search assistant.

<b>🔍 How to use:</b>
• Type <code>@{bot} your search query</code> in any chat
• I'll show you relevant media files instantly
• Tap on any result to share it

<b>🎯 Search Examples:</b>
• <code>@{bot} python tutorial</code>
• <code>@{bot} movie | video</code>
• <code>@{bot} ebook | document</code>
• <code>@{bot} music | audio</code>

<b>📁 Supported Types:</b>
🎬 Videos • 📄 Documents • 🎵 Audio • 🖼 Photos • 🎞 GIFs

Start typing <code>@{bot}</code> in any chat to begin searching!`)
}

func userHelpText(username string) string {
	return strings.ReplaceAll(`ℹ️ <b>How to Use Media Search Bot</b>

<b>🔍 Inline Search:</b>
Type <code>@{bot} query</code> in any chat to search for media files.

<b>🎯 Search Tips:</b>
• Use specific keywords for better results
• Add a file type filter: <code>query | video</code>
• Send an empty query to browse the latest files

<b>📝 Supported Filters:</b>
• <code>| video</code> - Videos only
• <code>| document</code> - Documents only
• <code>| audio</code> - Audio files only
• <code>| photo</code> - Photos only
• <code>| gif</code> - GIFs only`, "{bot}", username)
}

func adminHelpText(username string) string {
	return fmt.Sprintf("🤖 <b>Media Search Bot - Admin Help</b>\n\n"+
		"<b>🔍 Search Usage:</b>\n"+
		"• Type <code>@%s query</code> in any chat to search\n"+
		"• Use file type filters: <code>query | video</code>\n\n%s", username, adminCommandsText)
}

const adminCommandsText = `<b>⚙️ Admin Commands:</b>
• <code>/stats</code> - Bot statistics
• <code>/total</code> - Total indexed files and size
• <code>/broadcast</code> - Send a message to all users (reply to message)
• <code>/ban &lt;user_id&gt;</code> - Ban a user
• <code>/unban &lt;user_id&gt;</code> - Unban a user
• <code>/delete</code> - Remove media from the index (reply to message)
• <code>/remove &lt;query&gt;</code> - Remove all matches (asks for CONFIRM)
• <code>/cancel</code> - Cancel a pending removal
• <code>/edit &lt;old&gt; | &lt;new&gt;</code> - Rename matching files
• <code>/index &lt;channel_id&gt; [limit]</code> - Index channel history
• <code>/top10</code> - Most searched queries and most active users
• <code>/notfound</code> - Most searched queries without results
• <code>/logger</code> - Recent log entries
• <code>/commands</code> - This list`
