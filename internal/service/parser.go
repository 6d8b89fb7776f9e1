// Пакет service — бизнес-логика поиска: разбор запроса, поиск с кэшем,
// аналитика и мониторинг зависимостей.
package service

import (
	"strings"

	"github.com/viizet/Inline10/internal/domain/model"
)

// filterDelimiter — разделитель термина и фильтра типа.
const filterDelimiter = " | "

// ParsedQuery — результат разбора строки inline-запроса.
type ParsedQuery struct {
	// Term — поисковый термин (без пробелов по краям)
	Term string
	// Filter — фильтр типа в нижнем регистре (nil — разделителя не было)
	Filter *string
}

// ParseQuery делит строку по первому вхождению " | ".
// "batman | video" → ("batman", "video"); "a | b | c" → ("a", "b | c").
func ParseQuery(raw string) ParsedQuery {
	term, filter, found := strings.Cut(raw, filterDelimiter)
	q := ParsedQuery{Term: strings.TrimSpace(term)}
	if found {
		f := strings.ToLower(strings.TrimSpace(filter))
		q.Filter = &f
	}
	return q
}

// IsBrowse сообщает, что термин пуст и вместо поиска нужен просмотр последних записей.
func (q ParsedQuery) IsBrowse() bool {
	return q.Term == ""
}

// FilterKind возвращает тип из фильтра. ok = false, если фильтра нет
// или значение не является известным типом.
func (q ParsedQuery) FilterKind() (model.MediaKind, bool) {
	if q.Filter == nil {
		return "", false
	}
	return model.ParseKind(*q.Filter)
}

// cacheKey — ключ кэша результатов: термин без учёта регистра + фильтр.
func (q ParsedQuery) cacheKey() string {
	key := strings.ToLower(q.Term)
	if q.Filter != nil {
		key += "\x00" + *q.Filter
	}
	return key
}
