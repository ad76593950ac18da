package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthorizationsCounter(t *testing.T) {
	counter := AuthorizationsTotal.WithLabelValues("ai_search", "authorized")
	before := testutil.ToFloat64(counter)

	counter.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
