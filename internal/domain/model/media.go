// Пакет model — доменные модели бота поиска медиа.
// MediaRecord — одна проиндексированная запись из отслеживаемого канала.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind — тип медиа. Закрытое множество из пяти значений.
type MediaKind string

// Поддерживаемые типы медиа.
const (
	KindVideo    MediaKind = "video"
	KindDocument MediaKind = "document"
	KindAudio    MediaKind = "audio"
	KindPhoto    MediaKind = "photo"
	KindGIF      MediaKind = "gif"
)

// AllKinds — все поддерживаемые типы в порядке отображения.
var AllKinds = []MediaKind{KindVideo, KindDocument, KindAudio, KindPhoto, KindGIF}

// ParseKind возвращает MediaKind для строкового значения (регистр не важен).
// ok = false для неизвестного типа.
func ParseKind(s string) (MediaKind, bool) {
	k := MediaKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindVideo, KindDocument, KindAudio, KindPhoto, KindGIF:
		return k, true
	}
	return k, false
}

// Emoji возвращает значок типа для заголовков результатов.
func (k MediaKind) Emoji() string {
	switch k {
	case KindVideo:
		return "🎬"
	case KindDocument:
		return "📄"
	case KindAudio:
		return "🎵"
	case KindPhoto:
		return "🖼"
	case KindGIF:
		return "🎞"
	default:
		return "📎"
	}
}

// Attributes — типо-специфичные атрибуты записи.
// Реализуется ровно пятью типами ниже (sealed через неэкспортируемый метод).
type Attributes interface {
	Kind() MediaKind
	sealed()
}

// VideoAttrs — атрибуты видео.
type VideoAttrs struct {
	Duration int
	Width    int
	Height   int
	MimeType string
}

// DocumentAttrs — атрибуты документа.
type DocumentAttrs struct {
	MimeType string
}

// AudioAttrs — атрибуты аудио.
type AudioAttrs struct {
	Duration  int
	Performer string
	Title     string
	MimeType  string
}

// PhotoAttrs — атрибуты фото.
type PhotoAttrs struct {
	Width  int
	Height int
}

// GIFAttrs — атрибуты анимации.
type GIFAttrs struct {
	Duration int
	Width    int
	Height   int
	MimeType string
}

func (VideoAttrs) Kind() MediaKind    { return KindVideo }
func (DocumentAttrs) Kind() MediaKind { return KindDocument }
func (AudioAttrs) Kind() MediaKind    { return KindAudio }
func (PhotoAttrs) Kind() MediaKind    { return KindPhoto }
func (GIFAttrs) Kind() MediaKind      { return KindGIF }

func (VideoAttrs) sealed()    {}
func (DocumentAttrs) sealed() {}
func (AudioAttrs) sealed()    {}
func (PhotoAttrs) sealed()    {}
func (GIFAttrs) sealed()      {}

// MediaRecord — проиндексированный файл.
// (ChatID, MessageID) — ключ для удаления и переименования,
// FileUniqueID — глобально уникальный ключ (уникальность обеспечивает БД).
type MediaRecord struct {
	// FileUniqueID — уникальный идентификатор файла в Telegram
	FileUniqueID string
	// FileID — дескриптор для повторной отправки файла
	FileID string
	// FileType — тип медиа. Для записей из БД может быть неизвестным значением.
	FileType MediaKind
	// FileName — имя файла (синтезируется из message id, если отсутствует)
	FileName string
	// FileSize — размер в байтах (0 — неизвестен)
	FileSize int64
	// Caption — подпись сообщения
	Caption string
	// ChatID — канал, из которого проиндексирован файл
	ChatID int64
	// ChatTitle — название канала на момент индексации
	ChatTitle string
	// MessageID — идентификатор сообщения в канале
	MessageID int
	// FromUserID — автор сообщения (0 — неизвестен)
	FromUserID int64
	// Date — дата сообщения, ключ сортировки по новизне
	Date time.Time
	// Attrs — типо-специфичные атрибуты (nil для неизвестного типа)
	Attrs Attributes
}

// NewMediaRecord создаёт запись, согласуя FileType с типом атрибутов.
func NewMediaRecord(attrs Attributes) *MediaRecord {
	return &MediaRecord{FileType: attrs.Kind(), Attrs: attrs}
}

// Validate проверяет обязательные поля записи перед сохранением.
func (r *MediaRecord) Validate() error {
	if r.FileUniqueID == "" {
		return fmt.Errorf("пустой file_unique_id")
	}
	if r.FileID == "" {
		return fmt.Errorf("пустой file_id")
	}
	if r.Attrs != nil && r.Attrs.Kind() != r.FileType {
		return fmt.Errorf("тип записи %q не совпадает с атрибутами %q", r.FileType, r.Attrs.Kind())
	}
	return nil
}

// Stats — агрегированная статистика коллекции.
type Stats struct {
	// TotalCount — общее количество записей
	TotalCount int64
	// CountsByType — количество записей по типам
	CountsByType map[MediaKind]int64
}
