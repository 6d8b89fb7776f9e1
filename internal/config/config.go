// Пакет config — загрузка и валидация конфигурации бота
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации бота.
type Config struct {
	// --- HTTP keep-alive сервер ---

	// Порт HTTP-сервера (liveness-страница, health, metrics)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Путь к файлу лога для /logger (пусто — только stdout)
	LogFile string

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Telegram ---

	// Токен Bot API
	BotToken string
	// Базовый URL Bot API (используется и для мониторинга зависимости)
	TelegramAPIURL string

	// --- MongoDB ---

	// URI подключения к MongoDB
	DatabaseURI string
	// Имя базы данных
	DatabaseName string
	// Имя основной коллекции медиа
	CollectionName string
	// Таймаут подключения к MongoDB
	DBConnectTimeout time.Duration

	// --- Доступ ---

	// Администраторы бота
	Admins []int64
	// Отслеживаемые каналы
	Channels []int64
	// Канал обязательной подписки (0 — проверка отключена)
	AuthChannel int64
	// Allowlist пользователей (пусто — бот открыт всем)
	AuthUsers []int64

	// --- Поиск ---

	// cache_time ответа на inline-запрос с поиском (секунды)
	CacheTime int
	// cache_time ответа на пустой inline-запрос (секунды)
	BrowseCacheTime int
	// Максимум результатов поиска
	MaxResults int
	// Количество записей в пустом (browse) запросе
	BrowseLimit int
	// Поиск по подписи файла
	UseCaptionFilter bool
	// Размер LRU-кэша результатов поиска
	SearchCacheSize int

	// --- Оформление результатов ---

	// Подпись, добавляемая к видео-результату
	VideoCaptionSignature string
	// Ссылка кнопки «Join» у видео-результата (пусто — кнопка не показывается)
	JoinURL string

	// --- Пакетные операции ---

	// Чат для пересылки сообщений при /index (0 — первый администратор)
	IndexDumpChat int64
	// Время жизни неподтверждённой операции /remove
	PendingTTL time.Duration
	// Пауза между элементами пакетной операции
	BatchItemDelay time.Duration
	// Порог подряд идущих ошибок, после которого пакет прерывается
	BatchMaxConsecutiveFailures int
	// Максимальный limit для /index
	IndexMaxLimit int

	// --- topologymetrics ---

	// Мониторинг зависимостей включён
	DephealthEnabled bool
	// Имя группы в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.LogFile = getEnvDefault("LOG_FILE", "bot.log")

	if cfg.HTTPReadTimeout, err = getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Telegram ---

	if cfg.BotToken, err = getEnvRequired("BOT_TOKEN"); err != nil {
		return nil, err
	}
	cfg.TelegramAPIURL = strings.TrimRight(getEnvDefault("TELEGRAM_API_URL", "https://api.telegram.org"), "/")

	// --- MongoDB ---

	if cfg.DatabaseURI, err = getEnvRequired("DATABASE_URI"); err != nil {
		return nil, err
	}
	cfg.DatabaseName = getEnvDefault("DATABASE_NAME", "mediasearch")
	cfg.CollectionName = getEnvDefault("COLLECTION_NAME", "media")
	if cfg.DBConnectTimeout, err = getEnvDurationFallback("DB_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("DB_CONNECT_TIMEOUT: %w", err)
	}

	// --- Доступ ---

	if cfg.Admins, err = getEnvInt64List("ADMINS"); err != nil {
		return nil, fmt.Errorf("ADMINS: %w", err)
	}
	if len(cfg.Admins) == 0 {
		return nil, fmt.Errorf("ADMINS: необходимо указать хотя бы одного администратора")
	}

	if cfg.Channels, err = getEnvInt64List("CHANNELS"); err != nil {
		return nil, fmt.Errorf("CHANNELS: %w", err)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("CHANNELS: необходимо указать хотя бы один канал")
	}

	if cfg.AuthChannel, err = getEnvInt64("AUTH_CHANNEL", 0); err != nil {
		return nil, fmt.Errorf("AUTH_CHANNEL: %w", err)
	}
	if cfg.AuthUsers, err = getEnvInt64List("AUTH_USERS"); err != nil {
		return nil, fmt.Errorf("AUTH_USERS: %w", err)
	}

	// --- Поиск ---

	if cfg.CacheTime, err = getEnvInt("CACHE_TIME", 300); err != nil {
		return nil, fmt.Errorf("CACHE_TIME: %w", err)
	}
	if cfg.BrowseCacheTime, err = getEnvInt("BROWSE_CACHE_TIME", 10); err != nil {
		return nil, fmt.Errorf("BROWSE_CACHE_TIME: %w", err)
	}
	if cfg.CacheTime < 0 || cfg.BrowseCacheTime < 0 {
		return nil, fmt.Errorf("CACHE_TIME, BROWSE_CACHE_TIME: значение должно быть >= 0")
	}

	if cfg.MaxResults, err = getEnvInt("MAX_RESULTS", 50); err != nil {
		return nil, fmt.Errorf("MAX_RESULTS: %w", err)
	}
	if cfg.MaxResults < 1 || cfg.MaxResults > 1000 {
		return nil, fmt.Errorf("MAX_RESULTS: значение %d вне диапазона 1..1000", cfg.MaxResults)
	}

	if cfg.BrowseLimit, err = getEnvInt("BROWSE_LIMIT", 30); err != nil {
		return nil, fmt.Errorf("BROWSE_LIMIT: %w", err)
	}
	if cfg.BrowseLimit < 1 || cfg.BrowseLimit > 50 {
		return nil, fmt.Errorf("BROWSE_LIMIT: значение %d вне диапазона 1..50", cfg.BrowseLimit)
	}

	if cfg.UseCaptionFilter, err = getEnvBool("USE_CAPTION_FILTER", true); err != nil {
		return nil, fmt.Errorf("USE_CAPTION_FILTER: %w", err)
	}
	if cfg.SearchCacheSize, err = getEnvInt("SEARCH_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("SEARCH_CACHE_SIZE: %w", err)
	}
	if cfg.SearchCacheSize < 1 {
		return nil, fmt.Errorf("SEARCH_CACHE_SIZE: значение должно быть > 0")
	}

	// --- Оформление результатов ---

	cfg.VideoCaptionSignature = os.Getenv("VIDEO_CAPTION_SIGNATURE")
	cfg.JoinURL = os.Getenv("JOIN_URL")

	// --- Пакетные операции ---

	if cfg.IndexDumpChat, err = getEnvInt64("INDEX_DUMP_CHAT", cfg.Admins[0]); err != nil {
		return nil, fmt.Errorf("INDEX_DUMP_CHAT: %w", err)
	}
	if cfg.PendingTTL, err = getEnvDurationFallback("PENDING_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("PENDING_TTL: %w", err)
	}
	if cfg.BatchItemDelay, err = getEnvDuration("BATCH_ITEM_DELAY", 100*time.Millisecond); err != nil {
		return nil, fmt.Errorf("BATCH_ITEM_DELAY: %w", err)
	}
	if cfg.BatchMaxConsecutiveFailures, err = getEnvInt("BATCH_MAX_CONSECUTIVE_FAILURES", 20); err != nil {
		return nil, fmt.Errorf("BATCH_MAX_CONSECUTIVE_FAILURES: %w", err)
	}
	if cfg.BatchMaxConsecutiveFailures < 1 {
		return nil, fmt.Errorf("BATCH_MAX_CONSECUTIVE_FAILURES: значение должно быть > 0")
	}
	if cfg.IndexMaxLimit, err = getEnvInt("INDEX_MAX_LIMIT", 1000); err != nil {
		return nil, fmt.Errorf("INDEX_MAX_LIMIT: %w", err)
	}

	// --- topologymetrics ---

	if cfg.DephealthEnabled, err = getEnvBool("DEPHEALTH_ENABLED", true); err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("DEPHEALTH_GROUP", "mediasearch")
	if cfg.DephealthCheckInterval, err = getEnvDurationFallback("DEPHEALTH_CHECK_INTERVAL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admins, userID)
}

// IsMonitoredChannel проверяет, отслеживается ли канал.
func (c *Config) IsMonitoredChannel(chatID int64) bool {
	return slices.Contains(c.Channels, chatID)
}

// IsAllowlisted проверяет allowlist. Пустой allowlist пропускает всех.
func (c *Config) IsAllowlisted(userID int64) bool {
	if len(c.AuthUsers) == 0 {
		return true
	}
	return slices.Contains(c.AuthUsers, userID) || c.IsAdmin(userID)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// extra — дополнительные приёмники (например, файл лога для /logger).
func SetupLogger(cfg *Config, extra ...io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	if len(extra) > 0 {
		out = io.MultiWriter(append([]io.Writer{os.Stdout}, extra...)...)
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 — как getEnvInt, но для идентификаторов чатов (int64).
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный идентификатор: %q", val)
	}
	return n, nil
}

// getEnvInt64List разбирает список идентификаторов, разделённых пробелами или запятыми.
func getEnvInt64List(key string) ([]int64, error) {
	fields := strings.FieldsFunc(os.Getenv(key), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})

	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный идентификатор: %q", f)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationFallback возвращает time.Duration из переменной окружения.
// Если переменная не задана, используется fallbackVal.
// Если задана — парсится и валидируется (> 0).
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
