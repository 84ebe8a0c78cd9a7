// jobs.go — общее состояние фоновых задач (live-scoring, wallet-fix).
package service

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
)

// Prometheus-метрики фоновых задач.
var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fc_job_runs_total",
		Help: "Количество запусков фоновых задач",
	}, []string{"job", "result"}) // result: ok, error

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fc_job_duration_seconds",
		Help:    "Длительность одного запуска фоновой задачи",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job"})

	jobRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fc_job_running",
		Help: "Запущена ли фоновая задача (1 — да)",
	}, []string{"job"})
)

// jobState — потокобезопасное состояние фоновой задачи для Status().
type jobState struct {
	name string

	mu        sync.Mutex
	running   bool
	lastRunAt *time.Time
	lastError string
	runs      int64
}

func newJobState(name string) *jobState {
	return &jobState{name: name}
}

func (j *jobState) setRunning(running bool) {
	j.mu.Lock()
	j.running = running
	j.mu.Unlock()

	v := 0.0
	if running {
		v = 1
	}
	jobRunning.WithLabelValues(j.name).Set(v)
}

// record фиксирует результат одного запуска.
func (j *jobState) record(startedAt time.Time, err error) {
	jobDuration.WithLabelValues(j.name).Observe(time.Since(startedAt).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobRunsTotal.WithLabelValues(j.name, result).Inc()

	j.mu.Lock()
	defer j.mu.Unlock()
	t := startedAt.UTC()
	j.lastRunAt = &t
	j.runs++
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
}

func (j *jobState) status() model.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := model.JobStatus{
		Name:      j.name,
		Running:   j.running,
		LastError: j.lastError,
		Runs:      j.runs,
	}
	if j.lastRunAt != nil {
		t := *j.lastRunAt
		st.LastRunAt = &t
	}
	return st
}
