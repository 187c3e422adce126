package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results
const (
	DeliverySent    = "sent"
	DeliveryDropped = "dropped"
)

type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec
	online     prometheus.Gauge
	joins      *prometheus.CounterVec
	events     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	relayed    *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	online := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "admins_online", Help: "Admin sessions currently joined on this instance."})
	joins := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "joins_total"}, []string{"result"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_published_total"}, []string{"kind"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "deliveries_total"}, []string{"result"})
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "relay_events_total"}, []string{"direction"})
	r.MustRegister(online, joins, events, deliveries, relayed)

	return &Metrics{
		registry:   r,
		namespace:  ns,
		httpReqCnt: httpReqCnt,
		httpDur:    httpDur,
		httpInfl:   httpInfl,
		online:     online,
		joins:      joins,
		events:     events,
		deliveries: deliveries,
		relayed:    relayed,
	}
}

func (m *Metrics) SetOnline(n int) {
	m.online.Set(float64(n))
}

// JoinResult counts a handshake outcome: accepted, invalid_credential, malformed
func (m *Metrics) JoinResult(result string) {
	m.joins.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(kind string) {
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(result string) {
	m.deliveries.WithLabelValues(result).Inc()
}

// Relayed counts events written to (out) or read from (in) the relay stream
func (m *Metrics) Relayed(direction string) {
	m.relayed.WithLabelValues(direction).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := httpStatus(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatus(code int) string { return strconv.Itoa(code) }
