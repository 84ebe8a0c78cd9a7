// health.go — probes и метрики:
// /health/live — процесс жив; /health/ready — PostgreSQL доступен
// и стартовые задачи выполнены; /metrics — Prometheus.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/fantasy-cricket/internal/config"
)

const serviceName = "fantasy-cricket"

// Статусы проверок готовности.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

type namedChecker struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler — обработчик probes.
type HealthHandler struct {
	checks      []namedChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик probes. nil-проверка всегда даёт "fail".
func NewHealthHandler(pgChecker, startupChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: []namedChecker{
			{name: "postgresql", checker: pgChecker},
			{name: "startup", checker: startupChecker},
		},
		promHandler: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type probeResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func newProbeResponse(status string) probeResponse {
	return probeResponse{
		Status:    status,
		Service:   serviceName,
		Version:   config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthLive — всегда 200, пока процесс отвечает.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newProbeResponse(statusOK))
}

// HealthReady — 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := newProbeResponse(statusOK)
	resp.Checks = make(map[string]checkResult, len(h.checks))

	for _, c := range h.checks {
		res := checkResult{Status: statusFail, Message: "не инициализирован"}
		if c.checker != nil {
			res.Status, res.Message = c.checker.CheckReady()
		}
		resp.Checks[c.name] = res
		resp.Status = worse(resp.Status, res.Status)
	}

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// worse возвращает худший из двух статусов: fail > degraded > ok.
// Неизвестный статус считается fail.
func worse(a, b string) string {
	if a == statusFail || b == statusFail {
		return statusFail
	}
	for _, s := range []string{a, b} {
		if s != statusOK && s != statusDegraded {
			return statusFail
		}
	}
	if a == statusDegraded || b == statusDegraded {
		return statusDegraded
	}
	return statusOK
}
