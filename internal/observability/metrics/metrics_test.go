package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFinal_TagsNoneForUntagged(t *testing.T) {
	m := DefaultMetrics
	before := testutil.ToFloat64(m.KeyMoments.WithLabelValues("none"))

	m.RecordFinal("")

	if got := testutil.ToFloat64(m.KeyMoments.WithLabelValues("none")); got != before+1 {
		t.Errorf("expected none counter %v, got %v", before+1, got)
	}
}

func TestRecordSession_TogglesGauge(t *testing.T) {
	m := DefaultMetrics
	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.Listening); got != 1 {
		t.Errorf("expected listening gauge 1, got %v", got)
	}
	m.RecordSessionStop()
	if got := testutil.ToFloat64(m.Listening); got != 0 {
		t.Errorf("expected listening gauge 0, got %v", got)
	}
}

func TestRecordKafkaPublish_CountsErrors(t *testing.T) {
	m := DefaultMetrics
	before := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("t", "e"))

	m.RecordKafkaPublish("t", "e", nil, 0.01)
	m.RecordKafkaPublish("t", "e", errors.New("boom"), 0.01)

	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("t", "e")); got != before+1 {
		t.Errorf("expected one error recorded, got %v", got-before)
	}
}

func TestRecordDebit_NegativeBalanceLeavesGauge(t *testing.T) {
	m := DefaultMetrics
	m.RecordDebit("ok", 42)
	m.RecordDebit("error", -1)
	if got := testutil.ToFloat64(m.CachedCredits); got != 42 {
		t.Errorf("expected cached credits 42, got %v", got)
	}
}
