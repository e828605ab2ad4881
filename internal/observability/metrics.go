package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// Metrics owns a private registry; nothing is registered globally so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpCalls     *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	apiInflight   prometheus.Gauge
	requestBytes  *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	regions       prometheus.Counter
	conflicts     prometheus.Counter
	mergeDuration *prometheus.HistogramVec
	redisUp       prometheus.Gauge
	redisPing     prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "up", Help: "Whether the server is up."}, func() float64 {
		return 1
	}))

	m := &Metrics{
		registry: reg,
		httpCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cov_http_calls_total",
			Help: "Calls per public endpoint.",
		}, []string{"endpoint"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cov_api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cov_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cov_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		requestBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cov_api_request_body_bytes",
			Help:    "Size of POST bodies by route.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"route"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cov_submissions_total",
			Help: "Submissions by outcome: ok, duplicate, dry_run, or the InvalidReport value.",
		}, []string{"result"}),
		regions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cov_regions_merged_total",
			Help: "Validated regions merged into stored reports.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cov_statement_conflicts_total",
			Help: "Merges that left a region with disagreeing statement counts.",
		}),
		mergeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cov_merge_duration_seconds",
			Help:    "Time spent in one scope's critical section.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"status"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cov_redis_up",
			Help: "Whether the report bus redis answers pings.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cov_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		m.httpCalls,
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.requestBytes,
		m.submissions,
		m.regions,
		m.conflicts,
		m.mergeDuration,
		m.redisUp,
		m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncHTTPCall(endpoint string) {
	if m == nil {
		return
	}
	m.httpCalls.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveRequestBytes(route string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.requestBytes.WithLabelValues(route).Observe(float64(n))
}

func (m *Metrics) IncSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) AddRegions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.regions.Add(float64(n))
}

func (m *Metrics) AddConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}

func (m *Metrics) ObserveMerge(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.mergeDuration.WithLabelValues(status).Observe(dur.Seconds())
}

// RegisterDB exports database/sql pool statistics.
func (m *Metrics) RegisterDB(db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return m.registry.Register(collectors.NewDBStatsCollector(sqlDB, "coverage"))
}

// StartRedisCollector pings redis every interval and records the result.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string, interval time.Duration) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer rdb.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// NewRouter serves /metrics and /healthz on the observability listener.
func NewRouter(m *Metrics, health *Health) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status, body := health.Report()
		c.JSON(status, body)
	})
	return r
}

// Serve runs the observability listener until ctx is done.
func Serve(ctx context.Context, log *logger.Logger, addr string, handler http.Handler) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && log != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}()
	if log != nil {
		log.Info("metrics server listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
