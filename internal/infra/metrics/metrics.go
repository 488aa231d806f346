// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	registerMu sync.Mutex
	pending    []prometheus.Collector
)

// register queues a collector for MustRegister. Called from init() in the
// per-concern files so each file owns its own collectors.
func register(cs ...prometheus.Collector) {
	registerMu.Lock()
	defer registerMu.Unlock()
	pending = append(pending, cs...)
}

// MustRegister registers all collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		registerMu.Lock()
		defer registerMu.Unlock()
		prometheus.MustRegister(pending...)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
