// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"
)

// metrics is the process wide meter provider. It is a no-op until
// InitializePrometheusMetrics is called.
var metrics Metrics = defaultNoopMetrics()

// Metrics creates and caches meters by name.
type Metrics interface {
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter
	GetOrCreateHandler() http.Handler
}

var (
	// BucketLayers is for histograms of trie log layer counts.
	BucketLayers = []int64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}
	// BucketHTTPReqs is for histograms of request durations in milliseconds.
	BucketHTTPReqs = []int64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}
)

type (
	// CountMeter is a monotonically increasing counter.
	CountMeter interface{ Add(int64) }
	// CountVecMeter is a counter partitioned by labels.
	CountVecMeter interface {
		AddWithLabel(int64, map[string]string)
	}
	// GaugeMeter is a value that can go up and down.
	GaugeMeter interface {
		Add(int64)
		Set(int64)
	}
	// HistogramMeter samples observations into buckets.
	HistogramMeter interface{ Observe(int64) }
)

// HTTPHandler serves the registered meters.
func HTTPHandler() http.Handler { return metrics.GetOrCreateHandler() }

func Counter(name string) CountMeter { return metrics.GetOrCreateCountMeter(name) }
func Gauge(name string) GaugeMeter   { return metrics.GetOrCreateGaugeMeter(name) }

func CounterVec(name string, labels []string) CountVecMeter {
	return metrics.GetOrCreateCountVecMeter(name, labels)
}

func Histogram(name string, buckets []int64) HistogramMeter {
	return metrics.GetOrCreateHistogramMeter(name, buckets)
}

// LazyLoad defers creating a meter until first use, so package level meters
// are bound to whichever provider is active at that time.
func LazyLoad[T any](f func() T) func() T {
	return sync.OnceValue(f)
}

func LazyLoadCounter(name string) func() CountMeter {
	return LazyLoad(func() CountMeter { return Counter(name) })
}

func LazyLoadCounterVec(name string, labels []string) func() CountVecMeter {
	return LazyLoad(func() CountVecMeter { return CounterVec(name, labels) })
}

func LazyLoadGauge(name string) func() GaugeMeter {
	return LazyLoad(func() GaugeMeter { return Gauge(name) })
}

func LazyLoadHistogram(name string, buckets []int64) func() HistogramMeter {
	return LazyLoad(func() HistogramMeter { return Histogram(name, buckets) })
}
