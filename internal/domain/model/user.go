package model

import "time"

// UserRecord — пользователь, запускавший бота.
type UserRecord struct {
	UserID      int64
	Username    string
	FirstName   string
	LastSeen    time.Time
	SearchCount int64
}

// BannedUser — заблокированный пользователь.
type BannedUser struct {
	UserID   int64
	BannedAt time.Time
}

// SearchEvent — запись журнала поиска (search_logs / not_found_logs).
type SearchEvent struct {
	UserID    int64
	Username  string
	Query     string
	Timestamp time.Time
}

// QueryCount — строка аналитики: запрос и количество повторов.
type QueryCount struct {
	Query string
	Count int64
}

// UserActivity — строка аналитики: пользователь и количество поисков.
type UserActivity struct {
	UserID   int64
	Username string
	Count    int64
}
