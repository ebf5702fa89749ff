// Package metrics exposes run counters through a private Prometheus
// registry. Every method is safe on a nil *Metrics so callers can leave
// metrics disabled without guarding each call.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

const namespace = "collection_sync"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	itemsAdded        *prometheus.CounterVec
	addFailures       *prometheus.CounterVec
	collectionsLocked *prometheus.CounterVec
	syncFailures      *prometheus.CounterVec
	discoveryPages    *prometheus.CounterVec
	itemsDiscovered   *prometheus.CounterVec
	collectionItems   *prometheus.GaugeVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		itemsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_added_total",
			Help:      "Items successfully placed into a collection.",
		}, []string{"tag", "collection"}),
		addFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "add_failures_total",
			Help:      "Placements that failed after every retry.",
		}, []string{"tag", "collection"}),
		collectionsLocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_locked_total",
			Help:      "Collections permanently locked after reaching capacity.",
		}, []string{"tag"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Collection syncs whose membership never loaded.",
		}, []string{"tag", "collection"}),
		discoveryPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_pages_total",
			Help:      "Workshop listing pages read during discovery.",
		}, []string{"tag"}),
		itemsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_discovered_total",
			Help:      "New items found by discovery.",
		}, []string{"tag"}),
		collectionItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_items",
			Help:      "Last known item count per collection.",
		}, []string{"tag", "collection"}),
	}

	m.registry.MustRegister(
		m.itemsAdded,
		m.addFailures,
		m.collectionsLocked,
		m.syncFailures,
		m.discoveryPages,
		m.itemsDiscovered,
		m.collectionItems,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ItemAdded(tag types.Tag, id types.CollectionID) {
	if m == nil {
		return
	}
	m.itemsAdded.WithLabelValues(string(tag), string(id)).Inc()
}

func (m *Metrics) AddFailed(tag types.Tag, id types.CollectionID) {
	if m == nil {
		return
	}
	m.addFailures.WithLabelValues(string(tag), string(id)).Inc()
}

func (m *Metrics) CollectionLocked(tag types.Tag) {
	if m == nil {
		return
	}
	m.collectionsLocked.WithLabelValues(string(tag)).Inc()
}

func (m *Metrics) SyncFailed(tag types.Tag, id types.CollectionID) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(string(tag), string(id)).Inc()
}

func (m *Metrics) PageListed(tag types.Tag) {
	if m == nil {
		return
	}
	m.discoveryPages.WithLabelValues(string(tag)).Inc()
}

func (m *Metrics) ItemsDiscovered(tag types.Tag, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsDiscovered.WithLabelValues(string(tag)).Add(float64(n))
}

// SetCollectionItems records the latest known count for a collection.
func (m *Metrics) SetCollectionItems(tag types.Tag, id types.CollectionID, n int) {
	if m == nil {
		return
	}
	m.collectionItems.WithLabelValues(string(tag), string(id)).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node exporter textfile
// collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
