package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	OperationCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xoss_operations_total",
		Help: "The total number of device operations attempted",
	}, []string{"operation", "status"})

	ErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xoss_errors_total",
		Help: "The total number of device operation errors, by error family",
	}, []string{"kind"})

	BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xoss_bytes_total",
		Help: "The total number of bytes transferred over YMODEM file operations",
	}, []string{"direction"})

	// Gauges
	DeviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xoss_device_connected",
		Help: "1 if a device session is currently open, 0 otherwise",
	})

	BatteryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xoss_battery_percent",
		Help: "The last-read battery level of the connected device",
	})

	// Histograms
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xoss_operation_duration_seconds",
		Help:    "Time taken to complete a device operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Direction constants for BytesTransferred.
const (
	DirectionUpload   = "upload"   // host to device (WriteFile)
	DirectionDownload = "download" // device to host (ReadFile)
)

// Status constants for OperationCount.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IncOperation increments the operation counter.
func IncOperation(operation, status string) {
	OperationCount.WithLabelValues(operation, status).Inc()
}

// IncError increments the error counter for the given error family.
func IncError(kind string) {
	ErrorCount.WithLabelValues(kind).Inc()
}

// AddBytes adds n bytes transferred in the given direction.
func AddBytes(direction string, n int) {
	BytesTransferred.WithLabelValues(direction).Add(float64(n))
}

// SetDeviceConnected records whether a device session is open.
func SetDeviceConnected(connected bool) {
	if connected {
		DeviceConnected.Set(1)
	} else {
		DeviceConnected.Set(0)
	}
}

// SetBatteryPercent records the last-read battery level.
func SetBatteryPercent(pct int32) {
	BatteryPercent.Set(float64(pct))
}

// ObserveOperationDuration records how long an operation took.
func ObserveOperationDuration(operation string, seconds float64) {
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}
