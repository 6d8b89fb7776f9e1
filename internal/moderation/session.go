// Пакет moderation — массовые операции администратора:
// удаление по запросу (с подтверждением), переименование и рассылка.
package moderation

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/viizet/Inline10/internal/domain/model"
)

// maxSessions — верхняя граница числа ожидающих подтверждений.
const maxSessions = 256

// Pending — операция, ожидающая подтверждения.
type Pending struct {
	// Query — исходный поисковый запрос
	Query string
	// Items — записи, найденные на момент запроса
	Items []*model.MediaRecord
	// CreatedAt — время создания
	CreatedAt time.Time
}

// SessionStore — ожидающие подтверждения по user id.
// Запись истекает через ttl; новый /remove того же пользователя заменяет прежний.
type SessionStore struct {
	cache *expirable.LRU[int64, *Pending]
}

// NewSessionStore создаёт хранилище с указанным временем жизни записей.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{cache: expirable.NewLRU[int64, *Pending](maxSessions, nil, ttl)}
}

// Put сохраняет ожидающую операцию пользователя.
func (s *SessionStore) Put(userID int64, p *Pending) {
	s.cache.Add(userID, p)
}

// Get возвращает ожидающую операцию, не удаляя её.
func (s *SessionStore) Get(userID int64) (*Pending, bool) {
	return s.cache.Get(userID)
}

// Clear удаляет ожидающую операцию. true — она была.
func (s *SessionStore) Clear(userID int64) bool {
	return s.cache.Remove(userID)
}
