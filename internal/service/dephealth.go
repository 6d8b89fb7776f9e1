// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Бот мониторит две critical-зависимости:
//   - Telegram Bot API — HTTP checker к базовому URL;
//   - MongoDB — TCP checker к первому хосту DATABASE_URI. Для mongodb+srv
//     адрес узла заранее неизвестен, тогда остаётся только ping в /health/ready.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/tcpcheck"  // регистрация TCP checker factory
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// telegramHealthPath — путь проверки Bot API (без токена, чтобы он не попал в метрики).
const telegramHealthPath = "/"

// mongoDefaultPort — порт MongoDB, если в URI он не указан.
const mongoDefaultPort = "27017"

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (e.g. "inline-bot")
//   - group — имя группы в метриках (DEPHEALTH_GROUP)
//   - telegramURL — базовый URL Bot API (TELEGRAM_API_URL)
//   - mongoURI — строка подключения MongoDB (DATABASE_URI)
//   - checkInterval — интервал проверки (DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(
	serviceID string,
	group string,
	telegramURL string,
	mongoURI string,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, telegramURL, mongoURI, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	telegramURL string,
	mongoURI string,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, telegramURL, mongoURI, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	telegramURL string,
	mongoURI string,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	depOpts := []dephealth.DependencyOption{
		dephealth.FromURL(telegramURL),
		dephealth.WithHTTPHealthPath(telegramHealthPath),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(telegramURL); err == nil && parsed.Scheme == "https" {
		depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP("telegram-bot-api", depOpts...),
	)
	if host, port, ok := mongoEndpoint(mongoURI); ok {
		opts = append(opts, dephealth.TCP("mongodb",
			dephealth.FromParams(host, port),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		))
	} else {
		logger.Warn("MongoDB не добавлен в мониторинг: адрес узла не определяется по URI")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// mongoEndpoint возвращает хост и порт первого узла из строки подключения.
// false — URI не разбирается или использует mongodb+srv.
func mongoEndpoint(uri string) (host, port string, ok bool) {
	// Parse для mongodb+srv выполняет DNS-запрос, поэтому схема проверяется до разбора.
	if strings.HasPrefix(uri, connstring.SchemeMongoDBSRV+"://") {
		return "", "", false
	}
	cs, err := connstring.Parse(uri)
	if err != nil || len(cs.Hosts) == 0 {
		return "", "", false
	}
	host, port, err = net.SplitHostPort(cs.Hosts[0])
	if err != nil {
		return cs.Hosts[0], mongoDefaultPort, true
	}
	return host, port, true
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
