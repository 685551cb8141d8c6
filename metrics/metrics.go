// Package metrics declares the repository core's prometheus collectors:
// rebuild progress, store insert activity, and merge conflict counts,
// published over statusd's /metrics endpoint.
//
// Package-level collector vars are built with
// prometheus.NewGauge/NewCounter(Vec) and registered once in init().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RebuildProgressPermille tracks rebuild.Rebuild's completion fraction
	// (0..1000), so a long rebuild is observable without coupling the
	// rebuilder to any presentation layer.
	RebuildProgressPermille = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repocore_rebuild_progress_permille",
			Help: "Completion fraction of the most recent rebuild, in permille",
		},
	)

	// RebuildManifestsLinked counts manifests linked by the most recent
	// rebuild run.
	RebuildManifestsLinked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repocore_rebuild_manifests_linked",
			Help: "Number of manifests linked in the most recent rebuild",
		},
	)

	// StoreInsertsTotal is labeled for store.Store.Insert outcomes
	// (raw, delta, dedup, shunned); the store does not update it, so it
	// stays at zero.
	StoreInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repocore_store_inserts_total",
			Help: "Total number of artifact store inserts by outcome",
		},
		[]string{"outcome"},
	)

	// StoreBlobsTotal is declared for the BLOB table row count; the store
	// does not set it, so it stays at zero.
	StoreBlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repocore_store_blobs_total",
			Help: "Current number of rows in the BLOB table",
		},
	)

	// MergeConflictsTotal counts conflicts reported through ObserveMerge,
	// which workcopy.Checkout.Merge calls once per whole-check-in merge.
	MergeConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repocore_merge_conflicts_total",
			Help: "Total number of conflict blocks emitted by three-way merges",
		},
	)

	// MergesTotal counts merge operations by outcome (clean, conflict).
	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repocore_merges_total",
			Help: "Total number of three-way merges by outcome",
		},
		[]string{"outcome"},
	)

	// StashEntriesTotal reports the current number of live stash entries
	// across all open working copies this process has touched.
	StashEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repocore_stash_entries_total",
			Help: "Current number of stash entries",
		},
	)
)

func init() {
	prometheus.MustRegister(RebuildProgressPermille)
	prometheus.MustRegister(RebuildManifestsLinked)
	prometheus.MustRegister(StoreInsertsTotal)
	prometheus.MustRegister(StoreBlobsTotal)
	prometheus.MustRegister(MergeConflictsTotal)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(StashEntriesTotal)
}

// ObserveRebuildProgress is a rebuild.Options.Progress-shaped callback that
// publishes the permille value to RebuildProgressPermille.
func ObserveRebuildProgress(permille int) {
	RebuildProgressPermille.Set(float64(permille))
}

// ObserveMerge records one merge.Result's outcome.
func ObserveMerge(conflicts int) {
	MergeConflictsTotal.Add(float64(conflicts))
	if conflicts > 0 {
		MergesTotal.WithLabelValues("conflict").Inc()
	} else {
		MergesTotal.WithLabelValues("clean").Inc()
	}
}
