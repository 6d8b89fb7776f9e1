// Пакет repository — слой доступа к данным MongoDB.
// Основная коллекция медиа + коллекции users, banned_users,
// search_logs, not_found_logs. Поиск, сортировка и агрегации
// выполняются на стороне БД.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/viizet/Inline10/internal/config"
)

// Имена служебных коллекций.
const (
	usersCollection        = "users"
	bannedCollection       = "banned_users"
	searchLogsCollection   = "search_logs"
	notFoundLogsCollection = "not_found_logs"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// StorageError — ошибка драйвера MongoDB с указанием операции.
type StorageError struct {
	// Op — имя операции репозитория
	Op string
	// Err — исходная ошибка драйвера
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ошибка хранилища (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrapErr оборачивает ошибку драйвера в StorageError. nil остаётся nil.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Connect создаёт клиента MongoDB и проверяет доступность через ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DatabaseURI))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}

	logger.Info("Подключение к MongoDB установлено",
		slog.String("database", cfg.DatabaseName),
		slog.String("collection", cfg.CollectionName),
	)

	return client, nil
}

// EnsureIndexes создаёт индексы, от которых зависит корректность и скорость запросов.
// Уникальный индекс file_unique_id — единственный инвариант, который держит БД.
func EnsureIndexes(ctx context.Context, db *mongo.Database, mediaCollection string, logger *slog.Logger) error {
	media := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "file_unique_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "message_id", Value: 1}}},
		{Keys: bson.D{{Key: "file_type", Value: 1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "date", Value: -1}}},
	}
	if _, err := db.Collection(mediaCollection).Indexes().CreateMany(ctx, media); err != nil {
		return wrapErr("create_indexes_media", err)
	}

	singles := map[string]bson.D{
		usersCollection:        {{Key: "user_id", Value: 1}},
		bannedCollection:       {{Key: "user_id", Value: 1}},
		searchLogsCollection:   {{Key: "timestamp", Value: -1}},
		notFoundLogsCollection: {{Key: "timestamp", Value: -1}},
	}
	for name, keys := range singles {
		opts := options.Index()
		if name == usersCollection || name == bannedCollection {
			opts.SetUnique(true)
		}
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts}); err != nil {
			return wrapErr("create_indexes_"+name, err)
		}
	}

	logger.Info("Индексы MongoDB проверены", slog.String("collection", mediaCollection))
	return nil
}

// ReadinessChecker — проверка готовности MongoDB для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	client *mongo.Client
}

// NewReadinessChecker создаёт проверку готовности MongoDB.
func NewReadinessChecker(client *mongo.Client) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady проверяет подключение к MongoDB через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return "fail", fmt.Sprintf("MongoDB недоступна: %v", err)
	}
	return "ok", "подключение активно"
}
