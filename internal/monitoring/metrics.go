package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesDeleted prometheus.Counter
	MailboxesPurged  prometheus.Counter

	// SMTP 接收指标
	SMTPSessionsTotal      prometheus.Counter
	SMTPRecipientsAccepted prometheus.Counter
	SMTPRecipientsRejected prometheus.Counter
	MessagesStored         prometheus.Counter
	MessagesRejected       prometheus.Counter

	// 清理任务指标
	SweepRuns     prometheus.Counter
	SweepFailures prometheus.Counter
}

// NewMetrics 创建监控指标并注册到独立的 Registry。
// 使用独立 Registry 而非全局默认，测试中可以安全地重复创建。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_mailboxes_created_total",
			Help: "Total number of mailboxes provisioned",
		}),
		MailboxesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_mailboxes_deleted_total",
			Help: "Total number of mailboxes deleted via the API",
		}),
		MailboxesPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_mailboxes_purged_total",
			Help: "Total number of expired mailboxes purged by the sweeper",
		}),

		SMTPSessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_smtp_sessions_total",
			Help: "Total number of inbound SMTP sessions",
		}),
		SMTPRecipientsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_smtp_recipients_accepted_total",
			Help: "Total number of accepted RCPT commands",
		}),
		SMTPRecipientsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_smtp_recipients_rejected_total",
			Help: "Total number of rejected RCPT commands",
		}),
		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_messages_stored_total",
			Help: "Total number of messages persisted per recipient",
		}),
		MessagesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_messages_rejected_total",
			Help: "Total number of payloads rejected with a transient failure",
		}),

		SweepRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_sweep_runs_total",
			Help: "Total number of retention sweep cycles",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "nmail_sweep_failures_total",
			Help: "Total number of failed sweep operations",
		}),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器。
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware 返回记录 HTTP 请求指标的 Gin 中间件。
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}
