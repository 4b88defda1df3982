package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordError_CountsByCategory(t *testing.T) {
	before := testutil.ToFloat64(errorsTotal.WithLabelValues("BROKER_REJECTION"))

	RecordError("BROKER_REJECTION")
	RecordError("BROKER_REJECTION")

	assert.Equal(t, before+2, testutil.ToFloat64(errorsTotal.WithLabelValues("BROKER_REJECTION")))
}

func TestSetDiversificationScore(t *testing.T) {
	SetDiversificationScore(0.73)
	assert.Equal(t, 0.73, testutil.ToFloat64(diversificationScore))
}
