package opt

import (
	"sort"
	"sync"
)

type key struct {
	Instance string
	Method   string
}

var (
	mu    sync.Mutex
	store = map[key]Metrics{}
)

// RecordMetrics keeps the latest run metrics per instance and construction method.
func RecordMetrics(instance, method string, m Metrics) {
	mu.Lock()
	store[key{Instance: instance, Method: method}] = m
	mu.Unlock()
}

// GetMetrics returns the recorded metrics of an instance keyed by method.
func GetMetrics(instance string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range store {
		if k.Instance == instance {
			out[k.Method] = v
		}
	}
	return out
}

// RecordedInstances lists instance names with recorded metrics.
func RecordedInstances() []string {
	mu.Lock()
	defer mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k := range store {
		if !seen[k.Instance] {
			seen[k.Instance] = true
			out = append(out, k.Instance)
		}
	}
	sort.Strings(out)
	return out
}
