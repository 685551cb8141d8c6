package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRebuildProgressSetsGauge(t *testing.T) {
	ObserveRebuildProgress(417)
	require.Equal(t, 417.0, testutil.ToFloat64(RebuildProgressPermille))
}

func TestObserveMergeIncrementsCountersByOutcome(t *testing.T) {
	clean := MergesTotal.WithLabelValues("clean")
	conflict := MergesTotal.WithLabelValues("conflict")

	beforeClean := testutil.ToFloat64(clean)
	ObserveMerge(0)
	require.Equal(t, beforeClean+1, testutil.ToFloat64(clean))

	beforeConflict := testutil.ToFloat64(conflict)
	ObserveMerge(2)
	require.Equal(t, beforeConflict+1, testutil.ToFloat64(conflict))
	require.Equal(t, 2.0, testutil.ToFloat64(MergeConflictsTotal))
}
