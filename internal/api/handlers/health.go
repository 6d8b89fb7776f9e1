// health.go — обработчики keep-alive сервера бота.
// /             — страница «online» для внешних uptime-мониторов
// /health/live  — liveness probe (процесс жив)
// /health/ready — readiness probe (MongoDB доступна, Bot API — degraded при сбое)
// /metrics      — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viizet/Inline10/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "inline-bot"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// DependencyHealth возвращает состояние внешних зависимостей
// (ключ — имя зависимости, true — доступна).
type DependencyHealth func() map[string]bool

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	mongoChecker ReadinessChecker
	deps         DependencyHealth
	promHandler  http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// mongoChecker — проверка MongoDB (nil — readiness вернёт "fail").
// deps — состояние зависимостей из dephealth (nil — проверка пропускается).
func NewHealthHandler(mongoChecker ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		mongoChecker: mongoChecker,
		deps:         deps,
		promHandler:  promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

const onlinePage = `<!DOCTYPE html>
<html>
<head><title>Media Search Bot</title></head>
<body><h1>Bot is online</h1><p>Media Search Bot is running.</p></body>
</html>
`

// Online — статическая страница для uptime-мониторов.
func (h *HealthHandler) Online(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(onlinePage))
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady — readiness probe. MongoDB обязательна, недоступность
// остальных зависимостей понижает статус до degraded.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult),
	}

	if h.mongoChecker != nil {
		st, msg := h.mongoChecker.CheckReady()
		resp.Checks["mongodb"] = healthCheckResult{Status: st, Message: msg}
	} else {
		resp.Checks["mongodb"] = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	if h.deps != nil {
		for name, ok := range h.deps() {
			if ok {
				resp.Checks[name] = healthCheckResult{Status: statusOK}
			} else {
				resp.Checks[name] = healthCheckResult{Status: statusDegraded, Message: "зависимость недоступна"}
			}
		}
	}

	statuses := make([]string, 0, len(resp.Checks))
	for _, c := range resp.Checks {
		statuses = append(statuses, c.Status)
	}
	resp.Status = overallStatus(statuses...)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == statusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
