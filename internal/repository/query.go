package repository

import (
	"regexp"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// captionMinTermLength — термины такой длины и короче ищутся только по имени файла.
const captionMinTermLength = 3

// SearchParams — параметры поиска медиа.
type SearchParams struct {
	// Term — поисковый термин (не пустой; пустой запрос обслуживается RecentMixed)
	Term string
	// Type — фильтр по file_type (nil = фильтр не применяется).
	// Сравнение точное: неизвестный тип даёт пустой результат.
	Type *string
	// CaptionSearch — разрешён ли поиск по подписи (USE_CAPTION_FILTER)
	CaptionSearch bool
	// Limit — максимум результатов
	Limit int
}

// IncludesCaption сообщает, будет ли запрос сопоставляться с подписью.
func (p SearchParams) IncludesCaption() bool {
	return p.CaptionSearch && utf8.RuneCountInString(p.Term) > captionMinTermLength
}

// buildSearchFilter строит фильтр поиска:
// префикс ИЛИ подстрока по file_name (без учёта регистра),
// для длинных терминов — то же по caption; фильтр типа накладывается через AND.
// Все метасимволы regex в термине экранируются.
func buildSearchFilter(params SearchParams) bson.M {
	escaped := regexp.QuoteMeta(params.Term)
	prefix := primitive.Regex{Pattern: "^" + escaped, Options: "i"}
	substring := primitive.Regex{Pattern: escaped, Options: "i"}

	or := bson.A{
		bson.M{"file_name": prefix},
		bson.M{"file_name": substring},
	}
	if params.IncludesCaption() {
		or = append(or,
			bson.M{"caption": prefix},
			bson.M{"caption": substring},
		)
	}

	filter := bson.M{"$or": or}
	if params.Type != nil {
		filter["file_type"] = *params.Type
	}
	return filter
}
