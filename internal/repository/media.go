package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/viizet/Inline10/internal/domain/model"
)

// SaveResult — исход операции Save.
type SaveResult int

const (
	// SaveInserted — запись добавлена.
	SaveInserted SaveResult = iota
	// SaveDuplicate — запись с таким file_unique_id уже существует (не ошибка).
	SaveDuplicate
)

func (r SaveResult) String() string {
	if r == SaveDuplicate {
		return "duplicate"
	}
	return "inserted"
}

// MediaRepository — контракт хранилища медиа-записей.
type MediaRepository interface {
	// Save добавляет запись. Повтор file_unique_id даёт SaveDuplicate без ошибки.
	Save(ctx context.Context, rec *model.MediaRecord) (SaveResult, error)
	// Delete удаляет запись по (chat_id, message_id). true — запись существовала.
	Delete(ctx context.Context, chatID int64, messageID int) (bool, error)
	// UpdateTitle меняет имя файла. true — запись изменена.
	UpdateTitle(ctx context.Context, chatID int64, messageID int, newTitle string) (bool, error)
	// Search выполняет поиск по имени файла (и подписи), новые первыми.
	Search(ctx context.Context, params SearchParams) ([]*model.MediaRecord, error)
	// RecentByType возвращает последние записи заданного типа.
	RecentByType(ctx context.Context, kind model.MediaKind, limit int) ([]*model.MediaRecord, error)
	// RecentMixed возвращает последние видео, добирая другими типами.
	RecentMixed(ctx context.Context, limit int) ([]*model.MediaRecord, error)
	// Stats возвращает общее количество и разбивку по типам.
	Stats(ctx context.Context) (*model.Stats, error)
	// TotalSizeBytes возвращает суммарный размер всех файлов.
	TotalSizeBytes(ctx context.Context) (int64, error)
	// LatestMessageID возвращает наибольший message_id, проиндексированный в канале.
	LatestMessageID(ctx context.Context, chatID int64) (int, error)
}

// mediaDocument — BSON-представление MediaRecord.
// Плоский документ: типо-специфичные поля опциональны.
type mediaDocument struct {
	FileUniqueID string    `bson:"file_unique_id"`
	FileID       string    `bson:"file_id"`
	FileType     string    `bson:"file_type"`
	FileName     string    `bson:"file_name"`
	FileSize     int64     `bson:"file_size,omitempty"`
	Caption      string    `bson:"caption"`
	ChatID       int64     `bson:"chat_id"`
	ChatTitle    string    `bson:"chat_title,omitempty"`
	MessageID    int       `bson:"message_id"`
	FromUser     int64     `bson:"from_user,omitempty"`
	Date         time.Time `bson:"date"`
	Duration     int       `bson:"duration,omitempty"`
	Width        int       `bson:"width,omitempty"`
	Height       int       `bson:"height,omitempty"`
	MimeType     string    `bson:"mime_type,omitempty"`
	Performer    string    `bson:"performer,omitempty"`
	Title        string    `bson:"title,omitempty"`
}

// toDocument раскладывает вариант атрибутов в плоский документ.
func toDocument(rec *model.MediaRecord) mediaDocument {
	doc := mediaDocument{
		FileUniqueID: rec.FileUniqueID,
		FileID:       rec.FileID,
		FileType:     string(rec.FileType),
		FileName:     rec.FileName,
		FileSize:     rec.FileSize,
		Caption:      rec.Caption,
		ChatID:       rec.ChatID,
		ChatTitle:    rec.ChatTitle,
		MessageID:    rec.MessageID,
		FromUser:     rec.FromUserID,
		Date:         rec.Date,
	}

	switch a := rec.Attrs.(type) {
	case model.VideoAttrs:
		doc.Duration, doc.Width, doc.Height, doc.MimeType = a.Duration, a.Width, a.Height, a.MimeType
	case model.DocumentAttrs:
		doc.MimeType = a.MimeType
	case model.AudioAttrs:
		doc.Duration, doc.Performer, doc.Title, doc.MimeType = a.Duration, a.Performer, a.Title, a.MimeType
	case model.PhotoAttrs:
		doc.Width, doc.Height = a.Width, a.Height
	case model.GIFAttrs:
		doc.Duration, doc.Width, doc.Height, doc.MimeType = a.Duration, a.Width, a.Height, a.MimeType
	}
	return doc
}

// fromDocument собирает MediaRecord; вариант атрибутов выбирается по file_type.
// Для неизвестного типа Attrs остаётся nil.
func fromDocument(doc *mediaDocument) *model.MediaRecord {
	rec := &model.MediaRecord{
		FileUniqueID: doc.FileUniqueID,
		FileID:       doc.FileID,
		FileType:     model.MediaKind(doc.FileType),
		FileName:     doc.FileName,
		FileSize:     doc.FileSize,
		Caption:      doc.Caption,
		ChatID:       doc.ChatID,
		ChatTitle:    doc.ChatTitle,
		MessageID:    doc.MessageID,
		FromUserID:   doc.FromUser,
		Date:         doc.Date,
	}

	switch rec.FileType {
	case model.KindVideo:
		rec.Attrs = model.VideoAttrs{Duration: doc.Duration, Width: doc.Width, Height: doc.Height, MimeType: doc.MimeType}
	case model.KindDocument:
		rec.Attrs = model.DocumentAttrs{MimeType: doc.MimeType}
	case model.KindAudio:
		rec.Attrs = model.AudioAttrs{Duration: doc.Duration, Performer: doc.Performer, Title: doc.Title, MimeType: doc.MimeType}
	case model.KindPhoto:
		rec.Attrs = model.PhotoAttrs{Width: doc.Width, Height: doc.Height}
	case model.KindGIF:
		rec.Attrs = model.GIFAttrs{Duration: doc.Duration, Width: doc.Width, Height: doc.Height, MimeType: doc.MimeType}
	}
	return rec
}

// mediaRepo — реализация MediaRepository через mongo-driver.
type mediaRepo struct {
	col *mongo.Collection
}

// NewMediaRepository создаёт репозиторий медиа-записей.
func NewMediaRepository(db *mongo.Database, collection string) MediaRepository {
	return &mediaRepo{col: db.Collection(collection)}
}

// byDateDesc — сортировка «новые первыми».
var byDateDesc = bson.D{{Key: "date", Value: -1}}

// Save добавляет запись. Нарушение уникальности file_unique_id — SaveDuplicate.
func (r *mediaRepo) Save(ctx context.Context, rec *model.MediaRecord) (SaveResult, error) {
	if _, err := r.col.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return SaveDuplicate, nil
		}
		return SaveInserted, wrapErr("save", err)
	}
	return SaveInserted, nil
}

// Delete удаляет одну запись по (chat_id, message_id).
func (r *mediaRepo) Delete(ctx context.Context, chatID int64, messageID int) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"chat_id": chatID, "message_id": messageID})
	if err != nil {
		return false, wrapErr("delete", err)
	}
	return res.DeletedCount > 0, nil
}

// UpdateTitle меняет file_name записи по (chat_id, message_id).
func (r *mediaRepo) UpdateTitle(ctx context.Context, chatID int64, messageID int, newTitle string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"chat_id": chatID, "message_id": messageID},
		bson.M{"$set": bson.M{"file_name": newTitle}},
	)
	if err != nil {
		return false, wrapErr("update_title", err)
	}
	return res.ModifiedCount > 0, nil
}

// Search выполняет поиск по фильтру buildSearchFilter, новые первыми, не более params.Limit.
func (r *mediaRepo) Search(ctx context.Context, params SearchParams) ([]*model.MediaRecord, error) {
	opts := options.Find().SetSort(byDateDesc).SetLimit(int64(params.Limit))
	recs, err := r.find(ctx, buildSearchFilter(params), opts)
	return recs, wrapErr("search", err)
}

// RecentByType возвращает последние записи заданного типа.
func (r *mediaRepo) RecentByType(ctx context.Context, kind model.MediaKind, limit int) ([]*model.MediaRecord, error) {
	opts := options.Find().SetSort(byDateDesc).SetLimit(int64(limit))
	recs, err := r.find(ctx, bson.M{"file_type": string(kind)}, opts)
	return recs, wrapErr("recent_by_type", err)
}

// RecentMixed возвращает последние видео; если их меньше limit,
// добирает записями других типов. Дубликаты по file_id отбрасываются.
func (r *mediaRepo) RecentMixed(ctx context.Context, limit int) ([]*model.MediaRecord, error) {
	videos, err := r.RecentByType(ctx, model.KindVideo, limit)
	if err != nil {
		return nil, err
	}
	if len(videos) >= limit {
		return mergeRecent(videos, nil, limit), nil
	}

	opts := options.Find().SetSort(byDateDesc).SetLimit(int64(limit))
	others, err := r.find(ctx, bson.M{"file_type": bson.M{"$ne": string(model.KindVideo)}}, opts)
	if err != nil {
		return nil, wrapErr("recent_mixed", err)
	}
	return mergeRecent(videos, others, limit), nil
}

// mergeRecent объединяет primary и backfill (в этом порядке) без повторов file_id,
// не более limit записей.
func mergeRecent(primary, backfill []*model.MediaRecord, limit int) []*model.MediaRecord {
	seen := make(map[string]struct{}, limit)
	out := make([]*model.MediaRecord, 0, limit)

	for _, list := range [][]*model.MediaRecord{primary, backfill} {
		for _, rec := range list {
			if len(out) >= limit {
				return out
			}
			if _, dup := seen[rec.FileID]; dup {
				continue
			}
			seen[rec.FileID] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// Stats считает записи: всего и по типам. Без кэширования.
func (r *mediaRepo) Stats(ctx context.Context) (*model.Stats, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, wrapErr("stats_count", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$file_type"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr("stats_by_type", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Type  string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapErr("stats_by_type", err)
	}

	stats := &model.Stats{TotalCount: total, CountsByType: make(map[model.MediaKind]int64, len(rows))}
	for _, row := range rows {
		stats.CountsByType[model.MediaKind(row.Type)] = row.Count
	}
	return stats, nil
}

// TotalSizeBytes суммирует file_size по всей коллекции.
func (r *mediaRepo) TotalSizeBytes(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$file_size"}}},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, wrapErr("total_size", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, wrapErr("total_size", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// LatestMessageID возвращает наибольший message_id канала или ErrNotFound.
func (r *mediaRepo) LatestMessageID(ctx context.Context, chatID int64) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "message_id", Value: -1}}).
		SetProjection(bson.M{"message_id": 1})

	var doc struct {
		MessageID int `bson:"message_id"`
	}
	err := r.col.FindOne(ctx, bson.M{"chat_id": chatID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, wrapErr("latest_message_id", err)
	}
	return doc.MessageID, nil
}

// find выполняет запрос и декодирует все документы.
func (r *mediaRepo) find(ctx context.Context, filter any, opts *options.FindOptions) ([]*model.MediaRecord, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mediaDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]*model.MediaRecord, 0, len(docs))
	for i := range docs {
		result = append(result, fromDocument(&docs[i]))
	}
	return result, nil
}
