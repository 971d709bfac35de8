package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

// PrometheusRecorder 记录评估次数、优惠金额分布与缓存命中
type PrometheusRecorder struct {
	evaluations  *prometheus.CounterVec
	discounts    prometheus.Histogram
	latency      prometheus.Histogram
	configErrors prometheus.Counter
	cache        *prometheus.CounterVec
}

var _ port.MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder 创建并注册指标, reg 为 nil 时使用默认注册表
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricepoint",
			Name:      "discount_evaluations_total",
			Help:      "Number of discount evaluations by result status.",
		}, []string{"status"}),
		discounts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricepoint",
			Name:      "discount_total_amount",
			Help:      "Total discount granted per successful evaluation.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricepoint",
			Name:      "discount_evaluation_seconds",
			Help:      "Time spent evaluating a cart.",
			Buckets:   prometheus.DefBuckets,
		}),
		configErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricepoint",
			Name:      "discount_configuration_errors_total",
			Help:      "Evaluations rejected because of invalid campaign or cart configuration.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricepoint",
			Name:      "campaign_cache_lookups_total",
			Help:      "Campaign snapshot cache lookups by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.evaluations, r.discounts, r.latency, r.configErrors, r.cache)
	return r
}

func (r *PrometheusRecorder) ObserveEvaluation(result *domain.DiscountResult, elapsed time.Duration) {
	r.evaluations.WithLabelValues(string(result.Status)).Inc()
	r.latency.Observe(elapsed.Seconds())
	if result.Status == domain.StatusConfigurationError {
		r.configErrors.Inc()
	}
	if result.Succeeded() {
		r.discounts.Observe(result.TotalDiscount.InexactFloat64())
	}
}

func (r *PrometheusRecorder) ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cache.WithLabelValues(outcome).Inc()
}
