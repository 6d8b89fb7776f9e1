package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/ingest"
	"github.com/viizet/Inline10/internal/moderation"
	"github.com/viizet/Inline10/internal/sysinfo"
)

func send(tb *testBot, msg *tgbotapi.Message) {
	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func TestStart_RegistersAndGreets(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testUser, "/start"))

	if len(tb.activity.touched) != 1 || tb.activity.touched[0] != testUser {
		t.Errorf("touched = %v, ожидался [%d]", tb.activity.touched, testUser)
	}
	text := tb.api.lastText()
	if !strings.Contains(text, "Hello Ann!") || !strings.Contains(text, "@media_bot") {
		t.Errorf("приветствие = %q", text)
	}
}

func TestStart_Banned(t *testing.T) {
	tb := newTestBot(testConfig())
	_ = tb.bans.Ban(context.Background(), testUser)
	send(tb, commandMsg(testUser, "/start"))

	if !strings.Contains(tb.api.lastText(), "You are banned") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
	if len(tb.activity.touched) != 0 {
		t.Errorf("заблокированный пользователь зарегистрирован: %v", tb.activity.touched)
	}
}

func TestHelp_Banned(t *testing.T) {
	tb := newTestBot(testConfig())
	_ = tb.bans.Ban(context.Background(), testUser)
	send(tb, commandMsg(testUser, "/help"))

	if got := tb.api.lastText(); got != msgBanned {
		t.Errorf("ответ = %q, ожидался отказ", got)
	}
}

func TestHelp_NotSubscribed(t *testing.T) {
	cfg := testConfig()
	cfg.AuthChannel = -100500
	tb := newTestBot(cfg)
	tb.api.memberFn = func(_ tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
		return tgbotapi.ChatMember{Status: "left"}, nil
	}
	send(tb, commandMsg(testUser, "/help"))

	if got := tb.api.lastText(); !strings.Contains(got, "Access Restricted") {
		t.Errorf("ответ = %q, ожидалось требование подписки", got)
	}
}

func TestHelp_AdminAndUser(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testUser, "/help"))
	if strings.Contains(tb.api.lastText(), "Admin Commands") {
		t.Error("пользователь не должен видеть команды администратора")
	}

	send(tb, commandMsg(testAdmin, "/help"))
	if !strings.Contains(tb.api.lastText(), "Admin Commands") {
		t.Errorf("справка администратора = %q", tb.api.lastText())
	}
}

func TestAdminCommand_IgnoredForUser(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testUser, "/ban 42"))

	if n := len(tb.api.texts()); n != 0 {
		t.Errorf("отправлено сообщений = %d, ожидалось 0", n)
	}
	if banned, _ := tb.bans.IsBanned(context.Background(), 42); banned {
		t.Error("пользователь не должен быть заблокирован")
	}
}

func TestUnknownCommand_Ignored(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testAdmin, "/nope"))
	if n := len(tb.api.texts()); n != 0 {
		t.Errorf("отправлено сообщений = %d, ожидалось 0", n)
	}
}

func TestBan(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantText string
		banned   bool
	}{
		{"без аргумента", "/ban", "❌ Usage: /ban", false},
		{"не число", "/ban abc", "Invalid user ID", false},
		{"администратор", "/ban 1", "cannot be banned", false},
		{"успех", "/ban 42", "has been banned", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(testConfig())
			send(tb, commandMsg(testAdmin, tt.text))

			if !strings.Contains(tb.api.lastText(), tt.wantText) {
				t.Errorf("ответ = %q, ожидалось содержимое %q", tb.api.lastText(), tt.wantText)
			}
			if banned, _ := tb.bans.IsBanned(context.Background(), 42); banned != tt.banned {
				t.Errorf("banned = %v, ожидалось %v", banned, tt.banned)
			}
		})
	}
}

func TestUnban(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testAdmin, "/unban 42"))
	if !strings.Contains(tb.api.lastText(), "is not banned") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	_ = tb.bans.Ban(context.Background(), 42)
	send(tb, commandMsg(testAdmin, "/unban 42"))
	if !strings.Contains(tb.api.lastText(), "has been unbanned") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestDelete(t *testing.T) {
	video := &tgbotapi.Video{FileID: "f", FileUniqueID: "u"}

	tests := []struct {
		name       string
		reply      *tgbotapi.Message
		deleted    bool
		wantKey    [2]int64
		wantText   string
		invalidate int
	}{
		{name: "без ответа", wantText: "❌ Usage:"},
		{name: "без медиа", reply: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: testAdmin}, Text: "hi"},
			wantText: "doesn't contain any media"},
		{name: "пересланный пост",
			reply: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: testAdmin}, Video: video,
				ForwardFromChat: &tgbotapi.Chat{ID: testChannel}, ForwardFromMessageID: 77},
			deleted: true, wantKey: [2]int64{testChannel, 77}, wantText: "deleted from database", invalidate: 1},
		{name: "нет в индексе",
			reply:   &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: testChannel}, Video: video},
			wantKey: [2]int64{testChannel, 5}, wantText: "not found in database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(testConfig())
			var gotKey [2]int64
			tb.media.deleteFn = func(_ context.Context, chatID int64, messageID int) (bool, error) {
				gotKey = [2]int64{chatID, int64(messageID)}
				return tt.deleted, nil
			}

			msg := commandMsg(testAdmin, "/delete")
			msg.ReplyToMessage = tt.reply
			send(tb, msg)

			if !strings.Contains(tb.api.lastText(), tt.wantText) {
				t.Errorf("ответ = %q, ожидалось содержимое %q", tb.api.lastText(), tt.wantText)
			}
			if gotKey != tt.wantKey {
				t.Errorf("ключ удаления = %v, ожидался %v", gotKey, tt.wantKey)
			}
			if tb.cache.calls != tt.invalidate {
				t.Errorf("Invalidate вызван %d раз, ожидалось %d", tb.cache.calls, tt.invalidate)
			}
		})
	}
}

func TestDelete_StorageError(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.media.deleteFn = func(_ context.Context, _ int64, _ int) (bool, error) {
		return false, errors.New("db down")
	}
	msg := commandMsg(testAdmin, "/delete")
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: testChannel}, Audio: &tgbotapi.Audio{FileID: "a"}}
	send(tb, msg)

	if !strings.Contains(tb.api.lastText(), "Error deleting media") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestRemoveConfirmFlow(t *testing.T) {
	tb := newTestBot(testConfig())

	send(tb, commandMsg(testAdmin, "/remove"))
	if !strings.Contains(tb.api.lastText(), "❌ Usage: /remove") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	send(tb, commandMsg(testAdmin, "/remove old film"))
	if !strings.Contains(tb.api.lastText(), "Send <code>CONFIRM</code>") {
		t.Fatalf("ответ = %q", tb.api.lastText())
	}

	var gotReply string
	tb.moderation.confirmFn = func(_ context.Context, userID int64, reply string, progress moderation.ProgressFunc) (batch.Counts, error) {
		gotReply = reply
		tb.moderation.pending = false
		progress(batch.Counts{Total: 1, Processed: 1, Done: 1})
		return batch.Counts{Total: 1, Processed: 1, Done: 1}, nil
	}
	send(tb, &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: testAdmin},
		Chat:      &tgbotapi.Chat{ID: testAdmin, Type: "private"},
		Text:      "CONFIRM",
	})

	if gotReply != "CONFIRM" {
		t.Errorf("ConfirmRemove получил %q", gotReply)
	}
	if !strings.Contains(tb.api.lastText(), "Removal complete") {
		t.Errorf("итог = %q", tb.api.lastText())
	}
}

func TestConfirm_Mismatch(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.moderation.pending = true
	tb.moderation.confirmFn = func(_ context.Context, _ int64, _ string, _ moderation.ProgressFunc) (batch.Counts, error) {
		return batch.Counts{}, moderation.ErrConfirmationMismatch
	}
	send(tb, &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: testAdmin},
		Chat:      &tgbotapi.Chat{ID: testAdmin, Type: "private"},
		Text:      "confirm",
	})

	if !strings.Contains(tb.api.lastText(), "Confirmation mismatch") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestPlainTextWithoutPending_Ignored(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: testAdmin},
		Chat:      &tgbotapi.Chat{ID: testAdmin, Type: "private"},
		Text:      "CONFIRM",
	})
	if n := len(tb.api.texts()); n != 0 {
		t.Errorf("отправлено сообщений = %d, ожидалось 0", n)
	}
}

func TestCancel(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testAdmin, "/cancel"))
	if !strings.Contains(tb.api.lastText(), "Nothing to cancel") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	tb.moderation.pending = true
	send(tb, commandMsg(testAdmin, "/cancel"))
	if !strings.Contains(tb.api.lastText(), "cancelled") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestEdit(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.moderation.renameFn = func(_ context.Context, args string, _ moderation.ProgressFunc) (batch.Counts, error) {
		if args == "bad" {
			return batch.Counts{}, moderation.ErrInvalidRename
		}
		return batch.Counts{Total: 2, Processed: 2, Done: 2}, nil
	}

	send(tb, commandMsg(testAdmin, "/edit bad"))
	if !strings.Contains(tb.api.lastText(), "Usage: /edit") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	send(tb, commandMsg(testAdmin, "/edit old | new"))
	if !strings.Contains(tb.api.lastText(), "Rename complete") || !strings.Contains(tb.api.lastText(), "Done: 2") {
		t.Errorf("итог = %q", tb.api.lastText())
	}
}

func TestBroadcast(t *testing.T) {
	tb := newTestBot(testConfig())
	send(tb, commandMsg(testAdmin, "/broadcast"))
	if !strings.Contains(tb.api.lastText(), "❌ Usage:") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	msg := commandMsg(testAdmin, "/broadcast")
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: testAdmin}, Text: "news"}
	send(tb, msg)
	if !strings.Contains(tb.api.lastText(), "No users found") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestIndex_Validation(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/index", "❌ Usage: /index"},
		{"/index abc", "Invalid channel ID"},
		{"/index -1001 0", "Limit must be between 1 and 1000"},
		{"/index -1001 5000", "Limit must be between 1 and 1000"},
		{"/index -1001 x", "❌ Usage: /index"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tb := newTestBot(testConfig())
			called := false
			tb.indexer.histFn = func(_ context.Context, _ int64, _ int) (*ingest.HistoryReport, error) {
				called = true
				return &ingest.HistoryReport{}, nil
			}
			send(tb, commandMsg(testAdmin, tt.text))

			if called {
				t.Error("IndexHistory не должен вызываться")
			}
			if !strings.Contains(tb.api.lastText(), tt.want) {
				t.Errorf("ответ = %q, ожидалось содержимое %q", tb.api.lastText(), tt.want)
			}
		})
	}
}

func TestIndex_Runs(t *testing.T) {
	tb := newTestBot(testConfig())
	var gotChat int64
	var gotLimit int
	tb.indexer.histFn = func(_ context.Context, chatID int64, limit int) (*ingest.HistoryReport, error) {
		gotChat, gotLimit = chatID, limit
		return &ingest.HistoryReport{ChatTitle: "Films", Limit: limit,
			Counts: batch.Counts{Total: limit, Processed: limit, Done: 3, Skipped: limit - 3}}, nil
	}

	send(tb, commandMsg(testAdmin, "/index -1001 20"))

	if gotChat != -1001 || gotLimit != 20 {
		t.Errorf("IndexHistory(%d, %d), ожидалось (-1001, 20)", gotChat, gotLimit)
	}
	if text := tb.api.lastText(); !strings.Contains(text, "Indexing complete: Films") || !strings.Contains(text, "Done: 3") {
		t.Errorf("итог = %q", text)
	}
}

func TestIndex_DefaultLimitAndAbort(t *testing.T) {
	tb := newTestBot(testConfig())
	var gotLimit int
	tb.indexer.histFn = func(_ context.Context, _ int64, limit int) (*ingest.HistoryReport, error) {
		gotLimit = limit
		return &ingest.HistoryReport{ChatTitle: "Films", Counts: batch.Counts{Aborted: true}}, nil
	}

	send(tb, commandMsg(testAdmin, "/index -1001"))

	if gotLimit != defaultIndexLimit {
		t.Errorf("limit = %d, ожидалось %d", gotLimit, defaultIndexLimit)
	}
	if !strings.Contains(tb.api.lastText(), "Stopped after repeated failures") {
		t.Errorf("итог = %q", tb.api.lastText())
	}
}

func TestIndex_ChannelError(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.indexer.histFn = func(_ context.Context, _ int64, _ int) (*ingest.HistoryReport, error) {
		return nil, errors.New("chat not found")
	}
	send(tb, commandMsg(testAdmin, "/index -1001 10"))

	if !strings.Contains(tb.api.lastText(), "Error accessing channel: chat not found") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestStats(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.sysinfo = func(context.Context) sysinfo.Snapshot {
		return sysinfo.Snapshot{CPUCores: 4, MemUsed: 1 << 30, MemTotal: 4 << 30, Goroutines: 12}
	}
	send(tb, commandMsg(testAdmin, "/stats"))

	text := tb.api.lastText()
	for _, want := range []string{"Total Users:</b> 1,234", "Total Files:</b> 2,500", "3.0 GiB", "Video: 2,000", "Server", "Goroutines: 12"} {
		if !strings.Contains(text, want) {
			t.Errorf("статистика не содержит %q:\n%s", want, text)
		}
	}
}

func TestStats_StorageError(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.media.statsFn = func(_ context.Context) (*model.Stats, error) {
		return nil, errors.New("db down")
	}
	send(tb, commandMsg(testAdmin, "/stats"))

	if !strings.Contains(tb.api.lastText(), "Error retrieving statistics") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestTop10AndNotFound(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.activity.topFn = func(_ context.Context, limit int) ([]model.QueryCount, error) {
		if limit != topLimit {
			t.Errorf("limit = %d, ожидалось %d", limit, topLimit)
		}
		return []model.QueryCount{{Query: "matrix", Count: 1500}}, nil
	}

	send(tb, commandMsg(testAdmin, "/top10"))
	if text := tb.api.lastText(); !strings.Contains(text, "<code>matrix</code> — 1,500") || !strings.Contains(text, "@neo") {
		t.Errorf("/top10 = %q", text)
	}

	send(tb, commandMsg(testAdmin, "/notfound"))
	if text := tb.api.lastText(); !strings.Contains(text, "missing &lt;film&gt;") {
		t.Errorf("/notfound = %q", text)
	}
}

func TestLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.LogFile = filepath.Join(dir, "bot.log")

	tb := newTestBot(cfg)
	send(tb, commandMsg(testAdmin, "/logger"))
	if !strings.Contains(tb.api.lastText(), "Log file not found") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}

	var lines []string
	for i := range 15 {
		lines = append(lines, "line <"+string(rune('a'+i))+">")
	}
	if err := os.WriteFile(cfg.LogFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	send(tb, commandMsg(testAdmin, "/logger"))

	text := tb.api.lastText()
	if strings.Contains(text, "line &lt;e&gt;") || !strings.Contains(text, "line &lt;f&gt;") || !strings.Contains(text, "line &lt;o&gt;") {
		t.Errorf("ожидались последние 10 строк:\n%s", text)
	}
}

func TestCommandPanic_Recovered(t *testing.T) {
	tb := newTestBot(testConfig())
	tb.media.statsFn = func(_ context.Context) (*model.Stats, error) {
		panic("boom")
	}
	send(tb, commandMsg(testAdmin, "/total"))

	if tb.api.lastText() != msgInternalError {
		t.Errorf("ответ = %q, ожидалось %q", tb.api.lastText(), msgInternalError)
	}
}

func TestChannelPost_Indexed(t *testing.T) {
	tb := newTestBot(testConfig())
	post := &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: testChannel, Type: "channel"}, Video: &tgbotapi.Video{FileID: "f"}}
	tb.HandleUpdate(context.Background(), tgbotapi.Update{ChannelPost: post})

	if len(tb.indexer.indexed) != 1 || tb.indexer.indexed[0] != 42 {
		t.Errorf("indexed = %v, ожидалось [42]", tb.indexer.indexed)
	}
	if tb.heads.seen[testChannel] != 42 {
		t.Errorf("head = %d, ожидалось 42", tb.heads.seen[testChannel])
	}

	other := &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: -999, Type: "channel"}}
	tb.HandleUpdate(context.Background(), tgbotapi.Update{ChannelPost: other})
	if len(tb.indexer.indexed) != 1 {
		t.Errorf("пост неотслеживаемого канала проиндексирован: %v", tb.indexer.indexed)
	}
	if tb.heads.seen[-999] != 7 {
		t.Errorf("head неотслеживаемого канала = %d, ожидалось 7", tb.heads.seen[-999])
	}
}

func TestEditedPost_Reindexed(t *testing.T) {
	tb := newTestBot(testConfig())
	post := &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: testChannel, Type: "channel"}}
	tb.HandleUpdate(context.Background(), tgbotapi.Update{EditedChannelPost: post})
	tb.HandleUpdate(context.Background(), tgbotapi.Update{EditedMessage: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: testUser}}})

	if len(tb.indexer.edited) != 1 || tb.indexer.edited[0] != 42 {
		t.Errorf("edited = %v, ожидалось [42]", tb.indexer.edited)
	}
}

func TestCallback_CheckSubscription(t *testing.T) {
	cfg := testConfig()
	cfg.AuthChannel = -100500
	tb := newTestBot(cfg)
	status := "left"
	tb.api.memberFn = func(_ tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
		return tgbotapi.ChatMember{Status: status}, nil
	}
	cq := &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: testUser, FirstName: "Ann"},
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: testUser}}, Data: callbackCheckSub}

	tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cq})
	if n := len(tb.api.texts()); n != 0 {
		t.Errorf("без подписки приветствие не отправляется, отправлено %d", n)
	}

	status = "member"
	tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cq})
	if !strings.Contains(tb.api.lastText(), "Welcome") {
		t.Errorf("ответ = %q", tb.api.lastText())
	}
}

func TestCallback_Banned(t *testing.T) {
	tb := newTestBot(testConfig())
	_ = tb.bans.Ban(context.Background(), testUser)

	for _, data := range []string{callbackHelp, callbackCheckSub} {
		cq := &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: testUser},
			Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: testUser}}, Data: data}
		tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cq})
	}

	if n := len(tb.api.texts()); n != 0 {
		t.Errorf("заблокированному отправлено сообщений: %d (%v)", n, tb.api.texts())
	}
	answers := tb.api.callbackAnswers()
	if len(answers) != 2 {
		t.Fatalf("ответов на callback = %d, ожидалось 2", len(answers))
	}
	for _, a := range answers {
		if a != alertBanned {
			t.Errorf("ответ на callback = %q, ожидался %q", a, alertBanned)
		}
	}
}
