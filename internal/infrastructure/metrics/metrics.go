package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 钱包核心指标，nil 接收者安全，测试中可直接传 nil
type Metrics struct {
	settlementsTotal   *prometheus.CounterVec
	settlementDuration *prometheus.HistogramVec
	replaysTotal       *prometheus.CounterVec
	jobRunsTotal       *prometheus.CounterVec
	jobItemsTotal      *prometheus.CounterVec
	jobLastRunUnix     *prometheus.GaugeVec
	outboxSentTotal    *prometheus.CounterVec
	commissionsTotal   *prometheus.CounterVec
}

// New 在指定 Registerer 上注册指标
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		settlementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "settlement",
				Name:      "events_total",
				Help:      "Settlement events partitioned by provider, action and result.",
			},
			[]string{"provider", "action", "result"},
		),
		settlementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "game_wallet",
				Subsystem: "settlement",
				Name:      "duration_seconds",
				Help:      "Settlement processing latency by action.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		replaysTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "settlement",
				Name:      "replays_total",
				Help:      "Duplicate settlement events answered from the ledger.",
			},
			[]string{"provider", "action"},
		),
		jobRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "job",
				Name:      "runs_total",
				Help:      "Batch job runs by job name and result.",
			},
			[]string{"job", "result"},
		),
		jobItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "job",
				Name:      "items_total",
				Help:      "Batch job items by job name and outcome.",
			},
			[]string{"job", "outcome"},
		),
		jobLastRunUnix: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "game_wallet",
				Subsystem: "job",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent run per job.",
			},
			[]string{"job"},
		),
		outboxSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "outbox",
				Name:      "messages_total",
				Help:      "Outbox messages by topic and result.",
			},
			[]string{"topic", "result"},
		),
		commissionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "game_wallet",
				Subsystem: "affiliate",
				Name:      "commissions_total",
				Help:      "CPA commissions credited by level.",
			},
			[]string{"level"},
		),
	}
}

func (m *Metrics) ObserveSettlement(provider, action, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(provider, action, result).Inc()
	m.settlementDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) IncReplay(provider, action string) {
	if m == nil {
		return
	}
	m.replaysTotal.WithLabelValues(provider, action).Inc()
}

// ObserveJob 记录一次批处理结果
func (m *Metrics) ObserveJob(job string, processed, created, failed int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRunsTotal.WithLabelValues(job, result).Inc()
	m.jobItemsTotal.WithLabelValues(job, "processed").Add(float64(processed))
	m.jobItemsTotal.WithLabelValues(job, "created").Add(float64(created))
	m.jobItemsTotal.WithLabelValues(job, "failed").Add(float64(failed))
	m.jobLastRunUnix.WithLabelValues(job).Set(float64(time.Now().Unix()))
}

func (m *Metrics) IncOutbox(topic, result string) {
	if m == nil {
		return
	}
	m.outboxSentTotal.WithLabelValues(topic, result).Inc()
}

func (m *Metrics) IncCommission(level string) {
	if m == nil {
		return
	}
	m.commissionsTotal.WithLabelValues(level).Inc()
}
