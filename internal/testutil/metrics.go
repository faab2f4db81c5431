package testutil

import (
	"strings"
	"time"

	"github.com/hashicorp/go-metrics"
)

// NewSink returns an in-memory metric sink whose interval outlasts any test.
func NewSink() *metrics.InmemSink {
	return metrics.NewInmemSink(time.Hour, time.Hour)
}

// Counter sums a counter across every retained interval of sink.
func Counter(sink *metrics.InmemSink, key []string) int {
	name := strings.Join(key, ".")
	total := 0
	for _, iv := range sink.Data() {
		if c, ok := iv.Counters[name]; ok {
			total += c.Count
		}
	}
	return total
}
