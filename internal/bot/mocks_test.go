package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/config"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/ingest"
	"github.com/viizet/Inline10/internal/moderation"
	"github.com/viizet/Inline10/internal/repository"
	"github.com/viizet/Inline10/internal/service"
)

const (
	testAdmin   int64 = 1
	testUser    int64 = 100
	testChannel int64 = -1001
)

// --- Telegram API ---

// fakeAPI записывает отправленные сообщения и запросы.
type fakeAPI struct {
	mu          sync.Mutex
	sent        []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	memberFn    func(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	nextMessage int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextMessage++
	return tgbotapi.Message{MessageID: 1000 + f.nextMessage}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChat(_ tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return tgbotapi.Chat{}, nil
}

func (f *fakeAPI) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if f.memberFn != nil {
		return f.memberFn(config)
	}
	return tgbotapi.ChatMember{Status: "member"}, nil
}

// texts возвращает тексты отправленных и отредактированных сообщений.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

// lastText возвращает текст последнего сообщения или правки.
func (f *fakeAPI) lastText() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

// inlineAnswers возвращает ответы на inline-запросы.
func (f *fakeAPI) inlineAnswers() []tgbotapi.InlineConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.InlineConfig
	for _, c := range f.requests {
		if ic, ok := c.(tgbotapi.InlineConfig); ok {
			out = append(out, ic)
		}
	}
	return out
}

// callbackAnswers возвращает тексты ответов на callback-кнопки.
func (f *fakeAPI) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

// --- Сервисы ---

type mockSearcher struct {
	searchFn func(ctx context.Context, raw string) service.Outcome
}

func (m *mockSearcher) Search(ctx context.Context, raw string) service.Outcome {
	if m.searchFn != nil {
		return m.searchFn(ctx, raw)
	}
	return service.Outcome{Kind: service.OutcomeBrowse, Query: service.ParseQuery(raw)}
}

type recordedSearch struct {
	userID int64
	query  string
	found  bool
}

type mockActivity struct {
	mu       sync.Mutex
	searches []recordedSearch
	touched  []int64
	topFn    func(ctx context.Context, limit int) ([]model.QueryCount, error)
}

func (m *mockActivity) TouchUser(_ context.Context, userID int64, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, userID)
	return nil
}

func (m *mockActivity) RecordSearch(_ context.Context, userID int64, _, query string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, recordedSearch{userID: userID, query: query, found: found})
}

func (m *mockActivity) TopQueries(ctx context.Context, limit int) ([]model.QueryCount, error) {
	if m.topFn != nil {
		return m.topFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockActivity) TopNotFound(_ context.Context, _ int) ([]model.QueryCount, error) {
	return []model.QueryCount{{Query: "missing <film>", Count: 3}}, nil
}

func (m *mockActivity) ActiveUsers(_ context.Context, _ int) ([]model.UserActivity, error) {
	return []model.UserActivity{{UserID: 7, Username: "neo", Count: 12}}, nil
}

func (m *mockActivity) UserCount(_ context.Context) (int64, error) {
	return 1234, nil
}

// mockMedia — мок MediaRepository.
type mockMedia struct {
	deleteFn func(ctx context.Context, chatID int64, messageID int) (bool, error)
	statsFn  func(ctx context.Context) (*model.Stats, error)
}

func (m *mockMedia) Save(_ context.Context, _ *model.MediaRecord) (repository.SaveResult, error) {
	return repository.SaveInserted, nil
}

func (m *mockMedia) Delete(ctx context.Context, chatID int64, messageID int) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, chatID, messageID)
	}
	return false, nil
}

func (m *mockMedia) UpdateTitle(_ context.Context, _ int64, _ int, _ string) (bool, error) {
	return false, nil
}

func (m *mockMedia) Search(_ context.Context, _ repository.SearchParams) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *mockMedia) RecentByType(_ context.Context, _ model.MediaKind, _ int) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *mockMedia) RecentMixed(_ context.Context, _ int) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *mockMedia) Stats(ctx context.Context) (*model.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.Stats{TotalCount: 2500, CountsByType: map[model.MediaKind]int64{model.KindVideo: 2000, model.KindAudio: 500}}, nil
}

func (m *mockMedia) TotalSizeBytes(_ context.Context) (int64, error) {
	return 3 << 30, nil
}

func (m *mockMedia) LatestMessageID(_ context.Context, _ int64) (int, error) {
	return 0, repository.ErrNotFound
}

type mockBans struct {
	mu     sync.Mutex
	banned map[int64]bool
}

func (m *mockBans) Ban(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.banned == nil {
		m.banned = make(map[int64]bool)
	}
	m.banned[userID] = true
	return nil
}

func (m *mockBans) Unban(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.banned[userID]
	delete(m.banned, userID)
	return was, nil
}

func (m *mockBans) IsBanned(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banned[userID], nil
}

type mockIndexer struct {
	indexed []int
	edited  []int
	histFn  func(ctx context.Context, chatID int64, limit int) (*ingest.HistoryReport, error)
}

func (m *mockIndexer) IndexMessage(_ context.Context, msg *tgbotapi.Message) (ingest.Outcome, error) {
	m.indexed = append(m.indexed, msg.MessageID)
	return ingest.OutcomeIndexed, nil
}

func (m *mockIndexer) HandleEdit(_ context.Context, msg *tgbotapi.Message) (ingest.Outcome, error) {
	m.edited = append(m.edited, msg.MessageID)
	return ingest.OutcomeIndexed, nil
}

func (m *mockIndexer) IndexHistory(ctx context.Context, _ ingest.HistorySource, chatID int64, limit int,
	_ func(ingest.HistoryReport)) (*ingest.HistoryReport, error) {
	if m.histFn != nil {
		return m.histFn(ctx, chatID, limit)
	}
	return &ingest.HistoryReport{Limit: limit}, nil
}

func (m *mockIndexer) MaxLimit() int { return 1000 }

type mockModerator struct {
	pending   bool
	confirmFn func(ctx context.Context, userID int64, reply string, progress moderation.ProgressFunc) (batch.Counts, error)
	renameFn  func(ctx context.Context, args string, progress moderation.ProgressFunc) (batch.Counts, error)
}

func (m *mockModerator) PrepareRemove(_ context.Context, _ int64, query string) (*moderation.Pending, error) {
	m.pending = true
	return &moderation.Pending{Query: query, Items: []*model.MediaRecord{{FileName: "a.mp4", FileType: model.KindVideo}}}, nil
}

func (m *mockModerator) HasPending(_ int64) bool { return m.pending }

func (m *mockModerator) Cancel(_ int64) bool {
	was := m.pending
	m.pending = false
	return was
}

func (m *mockModerator) ConfirmRemove(ctx context.Context, userID int64, reply string, progress moderation.ProgressFunc) (batch.Counts, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, userID, reply, progress)
	}
	return batch.Counts{}, nil
}

func (m *mockModerator) Rename(ctx context.Context, args string, progress moderation.ProgressFunc) (batch.Counts, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, args, progress)
	}
	return batch.Counts{}, nil
}

func (m *mockModerator) Broadcast(_ context.Context, _ moderation.SendFunc, _ moderation.ProgressFunc) (batch.Counts, error) {
	return batch.Counts{}, moderation.ErrNoRecipients
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

type headRecorder struct{ seen map[int64]int }

func (h *headRecorder) Observe(chatID int64, messageID int) {
	if h.seen == nil {
		h.seen = make(map[int64]int)
	}
	h.seen[chatID] = messageID
}

// --- Сборка бота ---

type testBot struct {
	*Bot
	api        *fakeAPI
	activity   *mockActivity
	media      *mockMedia
	bans       *mockBans
	indexer    *mockIndexer
	moderation *mockModerator
	cache      *countingInvalidator
	heads      *headRecorder
	searcher   *mockSearcher
}

func testConfig() *config.Config {
	return &config.Config{
		Admins:                []int64{testAdmin},
		Channels:              []int64{testChannel},
		CacheTime:             300,
		BrowseCacheTime:       10,
		MaxResults:            50,
		UseCaptionFilter:      true,
		VideoCaptionSignature: "@channel",
		JoinURL:               "https://t.me/example",
	}
}

func newTestBot(cfg *config.Config) *testBot {
	tb := &testBot{
		api:        &fakeAPI{},
		activity:   &mockActivity{},
		media:      &mockMedia{},
		bans:       &mockBans{},
		indexer:    &mockIndexer{},
		moderation: &mockModerator{},
		cache:      &countingInvalidator{},
		heads:      &headRecorder{},
		searcher:   &mockSearcher{},
	}
	tb.Bot = New(Deps{
		API:        tb.api,
		Config:     cfg,
		Search:     tb.searcher,
		Activity:   tb.activity,
		Media:      tb.media,
		Cache:      tb.cache,
		Bans:       tb.bans,
		Indexer:    tb.indexer,
		Heads:      tb.heads,
		Moderation: tb.moderation,
		Username:   "media_bot",
		Logger:     slog.Default(),
	})
	return tb
}

// commandMsg строит личное сообщение с командой.
func commandMsg(from int64, text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from, UserName: "u", FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func records(n int, kind model.MediaKind) []*model.MediaRecord {
	out := make([]*model.MediaRecord, n)
	for i := range out {
		out[i] = &model.MediaRecord{FileID: "f", FileUniqueID: "u", FileType: kind, FileName: "file.mp4", FileSize: 1024}
	}
	return out
}
