package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics accumulates gateway counters; the exporter reads them on scrape.
type Metrics struct {
	mu                   sync.Mutex
	serviceInvocations   map[string]float64
	inboxSize            map[string]float64
	modemErrors          map[string]float64
	messagesDeleted      float64
	eventPublishFailures float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		serviceInvocations: make(map[string]float64),
		inboxSize:          make(map[string]float64),
		modemErrors:        make(map[string]float64),
	}
}

func (m *Metrics) ServiceInvoked(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceInvocations[service]++
}

func (m *Metrics) InboxObserved(host string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboxSize[host] = float64(size)
}

func (m *Metrics) ModemError(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modemErrors[host]++
}

func (m *Metrics) MessagesDeleted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesDeleted += float64(n)
}

func (m *Metrics) EventPublishFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventPublishFailures++
}

// PrometheusExporter exposes metrics on its own listener.
type PrometheusExporter struct {
	Path   string // e.g. "/metrics"
	Listen string // e.g. ":2550"
}

// Start begins the HTTP server to serve Prometheus metrics.
func (e *PrometheusExporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle(e.Path, promhttp.Handler())
	return http.ListenAndServe(e.Listen, mux)
}

// MetricExporter publishes the gateway's counters as Prometheus metrics.
type MetricExporter struct {
	desc      map[string]*prometheus.Desc
	gateway   *Gateway
	startTime time.Time
}

// NewMetricExporter initializes the exporter with descriptions for each
// required metric.
func NewMetricExporter(gateway *Gateway) *MetricExporter {
	metricDesc := map[string]*prometheus.Desc{
		"service_invocations":    prometheus.NewDesc("sms_service_invocations_total", "Service invocations by operation", []string{"service"}, nil),
		"inbox_size":             prometheus.NewDesc("sms_inbox_size", "Inbox size last observed per modem host", []string{"host"}, nil),
		"modem_errors":           prometheus.NewDesc("sms_modem_errors_total", "Modem call failures per host", []string{"host"}, nil),
		"messages_deleted":       prometheus.NewDesc("sms_messages_deleted_total", "Messages deleted from modem inboxes", nil, nil),
		"event_publish_failures": prometheus.NewDesc("sms_event_publish_failures_total", "Result events that could not be delivered", nil, nil),
		"configured_modems":      prometheus.NewDesc("sms_configured_modems", "Number of configured modem connections", nil, nil),
		"uptime":                 prometheus.NewDesc("sms_uptime_seconds", "Seconds since the gateway exporter started", nil, nil),
	}

	return &MetricExporter{desc: metricDesc, gateway: gateway, startTime: time.Now()}
}

// Describe sends all metric descriptions to the Prometheus channel.
func (e *MetricExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range e.desc {
		ch <- desc
	}
}

// Collect gathers metrics by examining the state of the gateway.
func (e *MetricExporter) Collect(ch chan<- prometheus.Metric) {
	m := e.gateway.Metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	for service, count := range m.serviceInvocations {
		ch <- prometheus.MustNewConstMetric(e.desc["service_invocations"], prometheus.CounterValue, count, service)
	}
	for host, size := range m.inboxSize {
		ch <- prometheus.MustNewConstMetric(e.desc["inbox_size"], prometheus.GaugeValue, size, host)
	}
	for host, count := range m.modemErrors {
		ch <- prometheus.MustNewConstMetric(e.desc["modem_errors"], prometheus.CounterValue, count, host)
	}
	ch <- prometheus.MustNewConstMetric(e.desc["messages_deleted"], prometheus.CounterValue, m.messagesDeleted)
	ch <- prometheus.MustNewConstMetric(e.desc["event_publish_failures"], prometheus.CounterValue, m.eventPublishFailures)
	ch <- prometheus.MustNewConstMetric(e.desc["configured_modems"], prometheus.GaugeValue, float64(len(e.gateway.Modems)))
	ch <- prometheus.MustNewConstMetric(e.desc["uptime"], prometheus.GaugeValue, time.Since(e.startTime).Seconds())
}
