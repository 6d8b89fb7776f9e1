package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/viizet/Inline10/internal/domain/model"
)

// EventRepository — журналы поисков и аналитика по ним.
// Журналы append-only, без ограничений уникальности.
type EventRepository interface {
	// LogSearch записывает успешный поиск.
	LogSearch(ctx context.Context, ev model.SearchEvent) error
	// LogNotFound записывает поиск без результатов.
	LogNotFound(ctx context.Context, ev model.SearchEvent) error
	// TopSearchedQueries — самые частые запросы.
	TopSearchedQueries(ctx context.Context, limit int) ([]model.QueryCount, error)
	// MostSearchedNotFound — самые частые запросы без результатов.
	MostSearchedNotFound(ctx context.Context, limit int) ([]model.QueryCount, error)
	// MostActiveUsers — пользователи с наибольшим числом поисков.
	MostActiveUsers(ctx context.Context, limit int) ([]model.UserActivity, error)
}

type eventDocument struct {
	UserID    int64     `bson:"user_id"`
	Username  string    `bson:"username,omitempty"`
	Query     string    `bson:"query"`
	Timestamp time.Time `bson:"timestamp"`
}

// eventRepo — реализация EventRepository через mongo-driver.
type eventRepo struct {
	searches *mongo.Collection
	notFound *mongo.Collection
}

// NewEventRepository создаёт репозиторий журналов поиска.
func NewEventRepository(db *mongo.Database) EventRepository {
	return &eventRepo{
		searches: db.Collection(searchLogsCollection),
		notFound: db.Collection(notFoundLogsCollection),
	}
}

func toEventDocument(ev model.SearchEvent) eventDocument {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return eventDocument{UserID: ev.UserID, Username: ev.Username, Query: ev.Query, Timestamp: ts.UTC()}
}

func (r *eventRepo) LogSearch(ctx context.Context, ev model.SearchEvent) error {
	_, err := r.searches.InsertOne(ctx, toEventDocument(ev))
	return wrapErr("log_search", err)
}

func (r *eventRepo) LogNotFound(ctx context.Context, ev model.SearchEvent) error {
	_, err := r.notFound.InsertOne(ctx, toEventDocument(ev))
	return wrapErr("log_not_found", err)
}

func (r *eventRepo) TopSearchedQueries(ctx context.Context, limit int) ([]model.QueryCount, error) {
	rows, err := aggregateQueryCounts(ctx, r.searches, limit)
	return rows, wrapErr("top_searched", err)
}

func (r *eventRepo) MostSearchedNotFound(ctx context.Context, limit int) ([]model.QueryCount, error) {
	rows, err := aggregateQueryCounts(ctx, r.notFound, limit)
	return rows, wrapErr("top_not_found", err)
}

func (r *eventRepo) MostActiveUsers(ctx context.Context, limit int) ([]model.UserActivity, error) {
	cursor, err := r.searches.Aggregate(ctx, mostActiveUsersPipeline(limit))
	if err != nil {
		return nil, wrapErr("most_active_users", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UserID   int64  `bson:"_id"`
		Username string `bson:"username"`
		Count    int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapErr("most_active_users", err)
	}

	out := make([]model.UserActivity, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.UserActivity{UserID: row.UserID, Username: row.Username, Count: row.Count})
	}
	return out, nil
}

// queryCountsPipeline — group-by(lower(query)) → count → sort desc → limit.
func queryCountsPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$toLower", Value: "$query"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

// mostActiveUsersPipeline — group-by(user_id) → count → sort desc → limit.
func mostActiveUsersPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user_id"},
			{Key: "username", Value: bson.D{{Key: "$last", Value: "$username"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
}

func aggregateQueryCounts(ctx context.Context, col *mongo.Collection, limit int) ([]model.QueryCount, error) {
	cursor, err := col.Aggregate(ctx, queryCountsPipeline(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Query string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	out := make([]model.QueryCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.QueryCount{Query: row.Query, Count: row.Count})
	}
	return out, nil
}
