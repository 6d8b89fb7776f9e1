package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/viizet/Inline10/internal/batch"
	"github.com/viizet/Inline10/internal/domain/model"
	"github.com/viizet/Inline10/internal/repository"
)

// --- In-memory MediaRepository ---

type key struct {
	chatID    int64
	messageID int
}

// memMediaRepo — хранилище в памяти с уникальностью file_unique_id.
type memMediaRepo struct {
	byUnique map[string]*model.MediaRecord
	saveErr  error
}

func newMemMediaRepo() *memMediaRepo {
	return &memMediaRepo{byUnique: make(map[string]*model.MediaRecord)}
}

func (m *memMediaRepo) Save(_ context.Context, rec *model.MediaRecord) (repository.SaveResult, error) {
	if m.saveErr != nil {
		return repository.SaveInserted, m.saveErr
	}
	if _, ok := m.byUnique[rec.FileUniqueID]; ok {
		return repository.SaveDuplicate, nil
	}
	m.byUnique[rec.FileUniqueID] = rec
	return repository.SaveInserted, nil
}

func (m *memMediaRepo) Delete(_ context.Context, chatID int64, messageID int) (bool, error) {
	for id, rec := range m.byUnique {
		if (key{rec.ChatID, rec.MessageID}) == (key{chatID, messageID}) {
			delete(m.byUnique, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memMediaRepo) UpdateTitle(_ context.Context, _ int64, _ int, _ string) (bool, error) {
	return false, nil
}

func (m *memMediaRepo) Search(_ context.Context, _ repository.SearchParams) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *memMediaRepo) RecentByType(_ context.Context, _ model.MediaKind, _ int) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *memMediaRepo) RecentMixed(_ context.Context, _ int) ([]*model.MediaRecord, error) {
	return nil, nil
}

func (m *memMediaRepo) Stats(_ context.Context) (*model.Stats, error) {
	return &model.Stats{TotalCount: int64(len(m.byUnique))}, nil
}

func (m *memMediaRepo) TotalSizeBytes(_ context.Context) (int64, error) {
	return 0, nil
}

func (m *memMediaRepo) LatestMessageID(_ context.Context, _ int64) (int, error) {
	return 0, repository.ErrNotFound
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

// fakeHistory — история канала: messageID → сообщение.
type fakeHistory struct {
	title    string
	head     int
	messages map[int]*tgbotapi.Message
	failAt   map[int]bool
}

func (f *fakeHistory) ChatTitle(_ context.Context, _ int64) (string, error) {
	if f.title == "" {
		return "", errors.New("chat not found")
	}
	return f.title, nil
}

func (f *fakeHistory) Head(_ context.Context, _ int64) (int, error) {
	return f.head, nil
}

func (f *fakeHistory) Message(_ context.Context, _ int64, messageID int) (*tgbotapi.Message, error) {
	if f.failAt[messageID] {
		return nil, errors.New("Too Many Requests")
	}
	return f.messages[messageID], nil
}

func videoMessage(id int, unique string) *tgbotapi.Message {
	msg := channelMessage(id)
	msg.Video = &tgbotapi.Video{FileID: "file-" + unique, FileUniqueID: unique, FileName: fmt.Sprintf("clip %d.mp4", id)}
	return msg
}

func newTestIndexer(repo repository.MediaRepository, inv Invalidator) *Indexer {
	return NewIndexer(repo, inv, batch.NewRunner(0, 20, slog.Default()), 1000, slog.Default())
}

// --- Тесты Indexer ---

// TestIndexer_IndexMessage проверяет сохранение и идемпотентность.
func TestIndexer_IndexMessage(t *testing.T) {
	repo := newMemMediaRepo()
	inv := &countingInvalidator{}
	ix := newTestIndexer(repo, inv)
	ctx := context.Background()

	out, err := ix.IndexMessage(ctx, videoMessage(1, "u1"))
	if err != nil || out != OutcomeIndexed {
		t.Fatalf("IndexMessage = %s/%v, ожидался indexed", out, err)
	}

	out, err = ix.IndexMessage(ctx, videoMessage(1, "u1"))
	if err != nil || out != OutcomeDuplicate {
		t.Fatalf("повторный IndexMessage = %s/%v, ожидался duplicate", out, err)
	}

	text := channelMessage(2)
	text.Text = "hello"
	if out, _ := ix.IndexMessage(ctx, text); out != OutcomeNoMedia {
		t.Errorf("IndexMessage(текст) = %s, ожидался no_media", out)
	}

	if len(repo.byUnique) != 1 {
		t.Errorf("записей = %d, ожидалась 1", len(repo.byUnique))
	}
	if inv.calls != 1 {
		t.Errorf("Invalidate вызван %d раз, ожидался 1", inv.calls)
	}
}

// TestIndexer_HandleEdit проверяет удаление и повторную индексацию.
func TestIndexer_HandleEdit(t *testing.T) {
	repo := newMemMediaRepo()
	ix := newTestIndexer(repo, &countingInvalidator{})
	ctx := context.Background()

	if _, err := ix.IndexMessage(ctx, videoMessage(9, "old")); err != nil {
		t.Fatalf("IndexMessage: %v", err)
	}

	edited := videoMessage(9, "new")
	out, err := ix.HandleEdit(ctx, edited)
	if err != nil || out != OutcomeIndexed {
		t.Fatalf("HandleEdit = %s/%v, ожидался indexed", out, err)
	}
	if _, ok := repo.byUnique["old"]; ok {
		t.Error("старая запись не удалена")
	}
	if _, ok := repo.byUnique["new"]; !ok {
		t.Error("новая запись не сохранена")
	}
}

// TestIndexer_HandleDeleted проверяет подсчёт удалённых записей.
func TestIndexer_HandleDeleted(t *testing.T) {
	repo := newMemMediaRepo()
	ix := newTestIndexer(repo, &countingInvalidator{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := ix.IndexMessage(ctx, videoMessage(i, fmt.Sprintf("u%d", i))); err != nil {
			t.Fatalf("IndexMessage: %v", err)
		}
	}

	deleted := ix.HandleDeleted(ctx, -1001, []int{1, 3, 99})
	if deleted != 2 {
		t.Errorf("deleted = %d, ожидалось 2", deleted)
	}
	if len(repo.byUnique) != 1 {
		t.Errorf("осталось записей = %d, ожидалась 1", len(repo.byUnique))
	}
}

// TestIndexer_IndexHistory проверяет счётчики и прогресс индексации истории.
func TestIndexer_IndexHistory(t *testing.T) {
	repo := newMemMediaRepo()
	ix := newTestIndexer(repo, &countingInvalidator{})
	ctx := context.Background()

	// Сообщения 1..25: чётные — видео, 15 — уже проиндексировано, 21 — ошибка.
	src := &fakeHistory{
		title:    "Movies",
		head:     25,
		messages: make(map[int]*tgbotapi.Message),
		failAt:   map[int]bool{21: true},
	}
	for id := 1; id <= 25; id++ {
		if id%2 == 0 {
			src.messages[id] = videoMessage(id, fmt.Sprintf("u%d", id))
		}
	}
	src.messages[15] = videoMessage(15, "dup")
	if _, err := ix.IndexMessage(ctx, videoMessage(15, "dup")); err != nil {
		t.Fatalf("IndexMessage: %v", err)
	}

	var progress []int
	report, err := ix.IndexHistory(ctx, src, -1001, 25, func(r HistoryReport) {
		progress = append(progress, r.Counts.Processed)
	})
	if err != nil {
		t.Fatalf("IndexHistory ошибка: %v", err)
	}

	c := report.Counts
	if report.ChatTitle != "Movies" {
		t.Errorf("ChatTitle = %q", report.ChatTitle)
	}
	if c.Processed != 25 {
		t.Errorf("Processed = %d, ожидалось 25", c.Processed)
	}
	if c.Done != 12 {
		t.Errorf("Done = %d, ожидалось 12", c.Done)
	}
	if c.Failed != 1 {
		t.Errorf("Failed = %d, ожидалась 1", c.Failed)
	}
	if c.Skipped != 12 {
		t.Errorf("Skipped = %d, ожидалось 12", c.Skipped)
	}
	if len(progress) != 2 || progress[0] != 10 || progress[1] != 20 {
		t.Errorf("progress = %v, ожидалось [10 20]", progress)
	}
}

// TestIndexer_IndexHistoryBeyondFirstMessage проверяет лимит больше истории канала.
func TestIndexer_IndexHistoryBeyondFirstMessage(t *testing.T) {
	ix := newTestIndexer(newMemMediaRepo(), &countingInvalidator{})
	src := &fakeHistory{title: "Small", head: 3, messages: map[int]*tgbotapi.Message{
		1: videoMessage(1, "a"), 2: videoMessage(2, "b"), 3: videoMessage(3, "c"),
	}}

	report, err := ix.IndexHistory(context.Background(), src, -1001, 10, nil)
	if err != nil {
		t.Fatalf("IndexHistory ошибка: %v", err)
	}
	if report.Counts.Done != 3 || report.Counts.Skipped != 7 {
		t.Errorf("Done/Skipped = %d/%d, ожидались 3/7", report.Counts.Done, report.Counts.Skipped)
	}
}

// TestIndexer_IndexHistoryValidation проверяет проверку лимита и доступа к каналу.
func TestIndexer_IndexHistoryValidation(t *testing.T) {
	ix := newTestIndexer(newMemMediaRepo(), &countingInvalidator{})
	ctx := context.Background()
	src := &fakeHistory{title: "Movies", head: 10}

	for _, limit := range []int{0, 1001} {
		if _, err := ix.IndexHistory(ctx, src, -1001, limit, nil); !errors.Is(err, ErrLimitOutOfRange) {
			t.Errorf("IndexHistory(limit=%d) = %v, ожидался ErrLimitOutOfRange", limit, err)
		}
	}

	if _, err := ix.IndexHistory(ctx, &fakeHistory{}, -1001, 10, nil); err == nil {
		t.Error("ожидалась ошибка для недоступного канала")
	}
}

// TestIndexer_SaveError проверяет проброс ошибки хранилища для живого поста.
func TestIndexer_SaveError(t *testing.T) {
	repo := newMemMediaRepo()
	repo.saveErr = &repository.StorageError{Op: "save", Err: errors.New("timeout")}
	ix := newTestIndexer(repo, &countingInvalidator{})

	_, err := ix.IndexMessage(context.Background(), videoMessage(1, "u1"))
	var se *repository.StorageError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, ожидалась StorageError", err)
	}
}
