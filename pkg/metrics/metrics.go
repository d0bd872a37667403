package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
	"go.uber.org/zap"
)

// Metric names
const (
	SessionAcquire   = "wabothub_session_acquire"
	SessionReady     = "wabothub_session_ready"
	SessionDropped   = "wabothub_session_dropped"
	ReconnectAttempt = "wabothub_reconnect_attempt"
	CredentialPurge  = "wabothub_credential_purge"
	MessageInbound   = "wabothub_message_inbound"
	MessageReply     = "wabothub_message_reply"
	ReplyFallback    = "wabothub_reply_fallback"
	OnlineSessions   = "wabothub_online_sessions"
)

var (
	storage tstorage.Storage
	once    sync.Once
)

// InitMetrics opens the embedded time series store under the workdir.
func InitMetrics(workdir string) {
	once.Do(func() {
		var err error
		storage, err = tstorage.NewStorage(
			tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
			tstorage.WithTimestampPrecision(tstorage.Seconds),
			tstorage.WithRetention(90*24*time.Hour),
		)
		if err != nil {
			zap.L().Error("metrics storage init failed", zap.Error(err))
		}
	})
}

// Counter records a single increment for the metric.
func Counter(name string, labels ...tstorage.Label) {
	Gauge(name, 1, labels...)
}

// Gauge records one sample for the metric.
func Gauge(name string, value float64, labels ...tstorage.Label) {
	if storage == nil {
		return
	}
	err := storage.InsertRows([]tstorage.Row{
		{
			Metric: name,
			Labels: labels,
			DataPoint: tstorage.DataPoint{
				Timestamp: time.Now().Unix(),
				Value:     value,
			},
		},
	})
	if err != nil {
		zap.L().Debug("metrics insert failed", zap.String("metric", name), zap.Error(err))
	}
}

// Select returns the stored points for a metric in [start, end].
func Select(name string, start, end int64, labels ...tstorage.Label) ([]*tstorage.DataPoint, error) {
	if storage == nil {
		return nil, nil
	}
	return storage.Select(name, labels, start, end)
}

// TenantLabel builds the standard tenant label.
func TenantLabel(tenantKey string) tstorage.Label {
	return tstorage.Label{Name: "tenant", Value: tenantKey}
}

// Close flushes and closes the metrics store.
func Close() {
	if storage == nil {
		return
	}
	if err := storage.Close(); err != nil {
		zap.L().Warn("metrics storage close failed", zap.Error(err))
	}
}
