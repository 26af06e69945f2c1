package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisteredCounters(t *testing.T) {
	BacktestsTotal.WithLabelValues("AAPL", "mean_reversion").Inc()
	SignalsTotal.WithLabelValues("AAPL", "BUY").Inc()
	TradesTotal.WithLabelValues("AAPL", "SELL").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"backtests_total": false,
		"signals_total":   false,
		"trades_total":    false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

func TestServe(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	if srv == nil {
		t.Fatal("expected a server handle")
	}
	defer srv.Close()
}
