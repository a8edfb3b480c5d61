package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBatchCommitted(t *testing.T) {
	before := testutil.ToFloat64(BatchesCommitted.WithLabelValues("Vara"))

	RecordBatchCommitted("Vara", 120, 0.2)

	assert.Equal(t, before+1, testutil.ToFloat64(BatchesCommitted.WithLabelValues("Vara")))
	assert.Equal(t, float64(120), testutil.ToFloat64(LastCommittedBlock.WithLabelValues("Vara")))
}

func TestRecordEvent(t *testing.T) {
	handled := testutil.ToFloat64(EventsHandled.WithLabelValues("Ethereum", "k"))
	ignored := testutil.ToFloat64(EventsIgnored.WithLabelValues("Ethereum", "k"))

	RecordEvent("Ethereum", "k", false)
	RecordEvent("Ethereum", "k", true)
	RecordEvent("Ethereum", "k", true)

	assert.Equal(t, handled+1, testutil.ToFloat64(EventsHandled.WithLabelValues("Ethereum", "k")))
	assert.Equal(t, ignored+2, testutil.ToFloat64(EventsIgnored.WithLabelValues("Ethereum", "k")))
}

func TestRecordBatchFailure(t *testing.T) {
	RecordBatchFailure("Vara", "commit")
	assert.Equal(t, float64(1), testutil.ToFloat64(BatchFailures.WithLabelValues("Vara", "commit")))
}
