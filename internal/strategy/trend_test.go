package strategy

import (
	"errors"
	"testing"

	"quantbt-go/internal/series"
)

func trendFixture() TrendParams {
	return TrendParams{FastMAWindow: 2, SlowMAWindow: 3, MAType: "sma", ATRWindow: 2}
}

func TestTrendDefaults(t *testing.T) {
	tf, err := NewTrendFollowing(TrendParams{})
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	p := tf.Params()
	if p.FastMAWindow != 10 || p.SlowMAWindow != 30 || p.MAType != "ema" {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if p.ATRWindow != 14 || p.RiskPct != 0.01 || p.PositionSizePct != 0.2 {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestTrendValidation(t *testing.T) {
	cases := []struct {
		params TrendParams
		option string
	}{
		{TrendParams{FastMAWindow: -1}, "fast_ma_window"},
		{TrendParams{SlowMAWindow: -1}, "slow_ma_window"},
		{TrendParams{FastMAWindow: 30, SlowMAWindow: 10}, "fast_ma_window"},
		{TrendParams{MAType: "wma"}, "ma_type"},
		{TrendParams{ATRWindow: -3}, "atr_window"},
		{TrendParams{RiskPct: 0.5}, "risk_pct"},
		{TrendParams{PositionSizePct: 2}, "position_size_pct"},
	}
	for _, tc := range cases {
		_, err := NewTrendFollowing(tc.params)
		var cerr ConfigError
		if !errors.As(err, &cerr) || cerr.Option != tc.option {
			t.Fatalf("params %+v: expected ConfigError on %s, got %v", tc.params, tc.option, err)
		}
	}
}

func TestTrendCrossoverSignals(t *testing.T) {
	tf, err := NewTrendFollowing(trendFixture())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Fast crosses above slow at the rebound, then back below on the drop.
	out, err := tf.GenerateSignals(closesSeries(t, 10, 9, 8, 8, 12, 15, 9))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wantBuy, wantSell := 4, 6
	for i := 0; i < out.Len(); i++ {
		want := series.Hold
		if i == wantBuy {
			want = series.Buy
		} else if i == wantSell {
			want = series.Sell
		}
		if got := out.SignalAt(i); got != want {
			t.Fatalf("signal at %d: want %d got %d", i, want, got)
		}
	}
}

func TestTrendFlatSeriesNoCrossover(t *testing.T) {
	tf, _ := NewTrendFollowing(trendFixture())
	out, err := tf.GenerateSignals(closesSeries(t, 10, 10, 10, 10, 10, 10))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 0; i < out.Len(); i++ {
		if out.SignalAt(i) != series.Hold {
			t.Fatalf("flat series should not cross, signal at %d", i)
		}
	}
}

func TestTrendPositionSizesLatestBarOnly(t *testing.T) {
	tf, _ := NewTrendFollowing(trendFixture())
	out, err := tf.GenerateSignals(closesSeries(t, 10, 9, 8, 8, 12))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.SignalAt(4) != series.Buy {
		t.Fatalf("fixture should end on a buy, got %v", out.SignalAt(4))
	}
	out, err = tf.PositionSizes(out, 10000)
	if err != nil {
		t.Fatalf("sizes: %v", err)
	}
	sizes := sizeColumn(t, out)
	// ATR(2) at the last bar is 3.5, so a 2-ATR stop risks 7 per share and
	// the 1% risk budget of 100 buys 100/7 shares. The 20% allocation cap
	// allows far more, so the risk size wins.
	if !approx(sizes[4], 100.0/7.0) {
		t.Fatalf("want %f shares, got %f", 100.0/7.0, sizes[4])
	}
	for i := 0; i < 4; i++ {
		if sizes[i] != 0 {
			t.Fatalf("expected zero size at %d, got %f", i, sizes[i])
		}
	}
}

func TestTrendPositionSizesHoldLatest(t *testing.T) {
	tf, _ := NewTrendFollowing(trendFixture())
	out, err := tf.GenerateSignals(closesSeries(t, 10, 10, 10, 10, 10))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	out, err = tf.PositionSizes(out, 10000)
	if err != nil {
		t.Fatalf("sizes: %v", err)
	}
	for i, size := range sizeColumn(t, out) {
		if size != 0 {
			t.Fatalf("hold latest signal should size zero, got %f at %d", size, i)
		}
	}
}
