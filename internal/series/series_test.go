package series

import (
	"errors"
	"math"
	"testing"
	"time"
)

func makeBars(closes ...float64) []Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Ts:     start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}

func TestNewRejectsUnorderedBars(t *testing.T) {
	bars := makeBars(1, 2, 3)
	bars[2].Ts = bars[1].Ts
	if _, err := New(bars); err == nil {
		t.Fatal("expected error for duplicate timestamps")
	}
	bars = makeBars(1, 2, 3)
	bars[1].Ts = bars[0].Ts.Add(-time.Hour)
	var derr DataError
	if _, err := New(bars); !errors.As(err, &derr) {
		t.Fatalf("expected DataError, got %v", err)
	}
}

func TestWithColumnDoesNotMutateSource(t *testing.T) {
	s, err := New(makeBars(1, 2, 3))
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	out, err := s.WithColumn("extra", []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("with column: %v", err)
	}
	if s.HasColumn("extra") {
		t.Fatal("source series gained a column")
	}
	if !out.HasColumn("extra") {
		t.Fatal("copy missing added column")
	}
}

func TestWithColumnLengthMismatch(t *testing.T) {
	s, _ := New(makeBars(1, 2, 3))
	if _, err := s.WithColumn("bad", []float64{1, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestPrefixTruncatesColumns(t *testing.T) {
	s, _ := New(makeBars(1, 2, 3, 4))
	s, err := s.WithColumn("x", []float64{10, 20, 30, 40})
	if err != nil {
		t.Fatalf("with column: %v", err)
	}
	p := s.Prefix(2)
	if p.Len() != 2 {
		t.Fatalf("expected 2 bars, got %d", p.Len())
	}
	values, ok := p.Column("x")
	if !ok || len(values) != 2 || values[1] != 20 {
		t.Fatalf("unexpected truncated column %v", values)
	}
	if got := s.Prefix(10).Len(); got != 4 {
		t.Fatalf("oversized prefix should clamp, got %d", got)
	}
}

func TestSignalAt(t *testing.T) {
	s, _ := New(makeBars(1, 2, 3))
	if got := s.SignalAt(0); got != Hold {
		t.Fatalf("missing column should read Hold, got %d", got)
	}
	s, err := s.WithColumn(ColSignal, []float64{1, math.NaN(), -1})
	if err != nil {
		t.Fatalf("with column: %v", err)
	}
	checks := []Signal{Buy, Hold, Sell}
	for i, want := range checks {
		if got := s.SignalAt(i); got != want {
			t.Fatalf("signal at %d: want %d got %d", i, want, got)
		}
	}
	if got := s.SignalAt(5); got != Hold {
		t.Fatalf("out of range should read Hold, got %d", got)
	}
}

func TestFieldPrefersRawBars(t *testing.T) {
	s, _ := New(makeBars(5, 6))
	closes, ok := s.Field("close")
	if !ok || closes[1] != 6 {
		t.Fatalf("unexpected closes %v", closes)
	}
	if _, ok := s.Field("nope"); ok {
		t.Fatal("unknown field should be absent")
	}
	s, _ = s.WithColumn("rsi", []float64{50, 60})
	derived, ok := s.Field("rsi")
	if !ok || derived[0] != 50 {
		t.Fatalf("unexpected derived field %v", derived)
	}
}
