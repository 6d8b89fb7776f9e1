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

// UserRepository — пользователи, запускавшие бота.
type UserRepository interface {
	// Touch создаёт или обновляет пользователя (username, first_name, last_seen).
	Touch(ctx context.Context, userID int64, username, firstName string) error
	// IncrementSearchCount увеличивает счётчик успешных поисков.
	IncrementSearchCount(ctx context.Context, userID int64, username string) error
	// Get возвращает пользователя или ErrNotFound.
	Get(ctx context.Context, userID int64) (*model.UserRecord, error)
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int64, error)
	// IDs возвращает получателей рассылки: всех пользователей, кроме заблокированных.
	IDs(ctx context.Context) ([]int64, error)
}

// BanRepository — список заблокированных пользователей.
type BanRepository interface {
	// Ban блокирует пользователя (идемпотентно).
	Ban(ctx context.Context, userID int64) error
	// Unban снимает блокировку. true — пользователь был заблокирован.
	Unban(ctx context.Context, userID int64) (bool, error)
	// IsBanned проверяет блокировку.
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

type userDocument struct {
	UserID      int64     `bson:"user_id"`
	Username    string    `bson:"username,omitempty"`
	FirstName   string    `bson:"first_name,omitempty"`
	LastSeen    time.Time `bson:"last_seen"`
	SearchCount int64     `bson:"search_count"`
}

// userRepo — реализация UserRepository через mongo-driver.
type userRepo struct {
	col *mongo.Collection
	now func() time.Time
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db *mongo.Database) UserRepository {
	return &userRepo{col: db.Collection(usersCollection), now: time.Now}
}

func (r *userRepo) Touch(ctx context.Context, userID int64, username, firstName string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{
				"user_id":    userID,
				"username":   username,
				"first_name": firstName,
				"last_seen":  r.now().UTC(),
			},
			"$setOnInsert": bson.M{"search_count": int64(0)},
		},
		options.Update().SetUpsert(true),
	)
	return wrapErr("user_touch", err)
}

func (r *userRepo) IncrementSearchCount(ctx context.Context, userID int64, username string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{"user_id": userID, "username": username, "last_seen": r.now().UTC()},
			"$inc": bson.M{"search_count": int64(1)},
		},
		options.Update().SetUpsert(true),
	)
	return wrapErr("user_increment_search", err)
}

func (r *userRepo) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrapErr("user_get", err)
	}
	return &model.UserRecord{
		UserID:      doc.UserID,
		Username:    doc.Username,
		FirstName:   doc.FirstName,
		LastSeen:    doc.LastSeen,
		SearchCount: doc.SearchCount,
	}, nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	return n, wrapErr("user_count", err)
}

func (r *userRepo) IDs(ctx context.Context) ([]int64, error) {
	cursor, err := r.col.Aggregate(ctx, recipientsPipeline())
	if err != nil {
		return nil, wrapErr("user_ids", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		UserID int64 `bson:"user_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapErr("user_ids", err)
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.UserID)
	}
	return ids, nil
}

// recipientsPipeline отбирает пользователей без записи в banned_users.
func recipientsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         bannedCollection,
			"localField":   "user_id",
			"foreignField": "user_id",
			"as":           "ban",
		}}},
		{{Key: "$match", Value: bson.M{"ban": bson.M{"$size": 0}}}},
		{{Key: "$project", Value: bson.M{"_id": 0, "user_id": 1}}},
	}
}

// banRepo — реализация BanRepository через mongo-driver.
type banRepo struct {
	col *mongo.Collection
	now func() time.Time
}

// NewBanRepository создаёт репозиторий заблокированных пользователей.
func NewBanRepository(db *mongo.Database) BanRepository {
	return &banRepo{col: db.Collection(bannedCollection), now: time.Now}
}

func (r *banRepo) Ban(ctx context.Context, userID int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"user_id": userID, "banned_at": r.now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return wrapErr("ban", err)
}

func (r *banRepo) Unban(ctx context.Context, userID int64) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return false, wrapErr("unban", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *banRepo) IsBanned(ctx context.Context, userID int64) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrapErr("is_banned", err)
	}
	return n > 0, nil
}
