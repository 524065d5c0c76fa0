package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()
}

func TestExpansionCacheTotal_Labels(t *testing.T) {
	before := testutil.ToFloat64(ExpansionCacheTotal.WithLabelValues("memory", "hit"))
	ExpansionCacheTotal.WithLabelValues("memory", "hit").Inc()
	after := testutil.ToFloat64(ExpansionCacheTotal.WithLabelValues("memory", "hit"))
	if after-before != 1 {
		t.Errorf("expected +1, got %f", after-before)
	}
}
