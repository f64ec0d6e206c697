package monitoring

import (
	"time"

	"camcast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	broadcastsActive  prometheus.Gauge
	broadcastsTotal   prometheus.Counter
	sessionsActive    prometheus.Gauge
	phaseTransitions  *prometheus.CounterVec
	deviceFailures    *prometheus.CounterVec
	gatewayOpDuration *prometheus.HistogramVec
	gatewayOpErrors   *prometheus.CounterVec
	liveFeedClients   prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		broadcastsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camcast_broadcasts_active",
			Help: "Number of broadcasts currently on air",
		}),

		broadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camcast_broadcasts_total",
			Help: "Total number of broadcasts started",
		}),

		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camcast_sessions_active",
			Help: "Number of live broadcaster sessions",
		}),

		phaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camcast_session_phase_transitions_total",
			Help: "Session phase transitions by source and target phase",
		}, []string{"from", "to"}),

		deviceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camcast_device_acquire_failures_total",
			Help: "Capture device acquisition failures by class",
		}, []string{"kind"}),

		gatewayOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "camcast_gateway_op_duration_seconds",
			Help:    "Duration of broadcast record gateway operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),

		gatewayOpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camcast_gateway_op_errors_total",
			Help: "Failed broadcast record gateway operations",
		}, []string{"op"}),

		liveFeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camcast_live_feed_clients",
			Help: "Number of connected live feed websocket clients",
		}),
	}
}

func (p *PrometheusCollector) RecordBroadcastCreated() {
	p.broadcastsActive.Inc()
	p.broadcastsTotal.Inc()
}

func (p *PrometheusCollector) RecordBroadcastEnded() {
	p.broadcastsActive.Dec()
}

func (p *PrometheusCollector) RecordGatewayOp(op string, duration time.Duration, err error) {
	p.gatewayOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		p.gatewayOpErrors.WithLabelValues(op).Inc()
	}
}

func (p *PrometheusCollector) RecordPhaseChange(from, to domain.Phase) {
	p.phaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (p *PrometheusCollector) RecordDeviceAcquireFailure(kind domain.DeviceErrorKind) {
	p.deviceFailures.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordSessionOpened() {
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) RecordSessionClosed() {
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) RecordLiveFeedClientConnected() {
	p.liveFeedClients.Inc()
}

func (p *PrometheusCollector) RecordLiveFeedClientDisconnected() {
	p.liveFeedClients.Dec()
}
