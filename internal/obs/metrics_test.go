package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(replaysTotal)
	ObserveReplay()
	if got := testutil.ToFloat64(replaysTotal); got != before+1 {
		t.Fatalf("replaysTotal = %v, want %v", got, before+1)
	}

	ObserveRefresh("failure")
	if got := testutil.ToFloat64(refreshTotal.WithLabelValues("failure")); got < 1 {
		t.Fatalf("refreshTotal{failure} = %v, want >= 1", got)
	}

	ObserveRequest("GET", "200", 0.01)
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("GET", "200")); got < 1 {
		t.Fatalf("requestsTotal{GET,200} = %v, want >= 1", got)
	}
}
