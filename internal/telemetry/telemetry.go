// Package telemetry names the metrics and log attributes shared by the
// engine and the dispatcher.
package telemetry

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	// MetricEngineDeliveredCount counts delivery envelopes posted to the host.
	MetricEngineDeliveredCount = []string{"switchboard", "engine", "delivered", "count"}
	// MetricEngineResolveCount counts resolution attempts, retries included.
	MetricEngineResolveCount = []string{"switchboard", "engine", "resolve", "count"}
	// MetricEngineDroppedCount counts messages that resolved to nobody and
	// were not eligible for retry.
	MetricEngineDroppedCount   = []string{"switchboard", "engine", "dropped", "count"}
	MetricEngineRetriedCount   = []string{"switchboard", "engine", "retried", "count"}
	MetricEnginePurgedCount    = []string{"switchboard", "engine", "purged", "count"}
	MetricEngineRetryQueueSize = []string{"switchboard", "engine", "retry", "queue", "size"}
	MetricEngineStoreFallback  = []string{"switchboard", "engine", "store", "fallback", "count"}
	MetricEngineStoreErrCount  = []string{"switchboard", "engine", "store", "error", "count"}
	MetricEngineRejectedCount  = []string{"switchboard", "engine", "rejected", "count"}

	MetricHostInvokedCount    = []string{"switchboard", "host", "invoked", "count"}
	MetricHostEvictedCount    = []string{"switchboard", "host", "evicted", "count"}
	MetricHostQueuedCount     = []string{"switchboard", "host", "queued", "count"}
	MetricHostCompactionCount = []string{"switchboard", "host", "compaction", "count"}
	MetricHostStaleCount      = []string{"switchboard", "host", "stale", "delivery", "count"}
)

type TelemetryLabel string

var (
	LabelError     TelemetryLabel = "error"
	LabelRecipient TelemetryLabel = "recipient"
	LabelSlot      TelemetryLabel = "slot"
	LabelSlots     TelemetryLabel = "slots"
	LabelUID       TelemetryLabel = "uid"
	LabelMessageID TelemetryLabel = "message_id"
	LabelReplyID   TelemetryLabel = "reply_id"
	LabelType      TelemetryLabel = "type"
	LabelEpoch     TelemetryLabel = "epoch"
	LabelAttempt   TelemetryLabel = "attempt"
	LabelCount     TelemetryLabel = "count"
	LabelSession   TelemetryLabel = "session"
	LabelPath      TelemetryLabel = "path"
	LabelInterval  TelemetryLabel = "interval"
	LabelCode      TelemetryLabel = "code"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// SinkOrBlackhole returns sink, or a sink that discards everything when sink
// is nil.
func SinkOrBlackhole(sink metrics.MetricSink) metrics.MetricSink {
	if sink == nil {
		return &metrics.BlackholeSink{}
	}
	return sink
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LoggerOrDiscard returns logger, or DiscardLogger when it is nil.
func LoggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return DiscardLogger()
	}
	return logger
}
