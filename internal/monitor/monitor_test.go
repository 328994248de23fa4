package monitor

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rewired-gh/mvrvdca/internal/metrics"
	"github.com/rewired-gh/mvrvdca/internal/models"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
	"github.com/rewired-gh/mvrvdca/internal/storage"
)

type fakeNotifier struct {
	sent []models.Signal
	err  error
}

func (f *fakeNotifier) Send(sig models.Signal) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sig)
	return nil
}

func newTestAnalyzer(t *testing.T) *momentum.Analyzer {
	t.Helper()
	cfg := momentum.DefaultConfig()
	cfg.EMAPeriod = 1
	cfg.SlopePeriod = 3
	a, err := momentum.New(cfg)
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}
	return a
}

func newStartedMonitor(t *testing.T, cfg Config, opts Options) *Monitor {
	t.Helper()
	m := New(newTestAnalyzer(t), cfg, opts)
	if _, err := m.Start("test"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

// feed processes z values and returns the emitted signals.
func feed(t *testing.T, m *Monitor, zs ...float64) []*models.Signal {
	t.Helper()
	var signals []*models.Signal
	for _, z := range zs {
		_, sig, err := m.Process(models.Reading{Z: z, Price: 50000})
		if err != nil {
			t.Fatalf("Process(%v): %v", z, err)
		}
		if sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

func TestProcess_PhaseChangeSignals(t *testing.T) {
	n := &fakeNotifier{}
	m := newStartedMonitor(t, DefaultConfig(), Options{Notifier: n})

	// DG, DG, ACCUMULATION, RAPID_ASCENT, RAPID_ASCENT, PLATEAU
	signals := feed(t, m, 1, 1, 1, 4, 4, 4)

	want := []struct {
		from, to models.Phase
		seq      int
	}{
		{models.PhaseDataGathering, models.PhaseAccumulation, 2},
		{models.PhaseAccumulation, models.PhaseRapidAscent, 3},
		{models.PhaseRapidAscent, models.PhasePlateau, 5},
	}
	if len(signals) != len(want) {
		t.Fatalf("Expected %d signals, got %d", len(want), len(signals))
	}
	for i, w := range want {
		s := signals[i]
		if s.From != w.from || s.To != w.to || s.Seq != w.seq {
			t.Errorf("signal %d = %s -> %s @%d, want %s -> %s @%d", i, s.From, s.To, s.Seq, w.from, w.to, w.seq)
		}
		if !s.Advisory {
			t.Errorf("signal %d should be advisory", i)
		}
		if s.Result.Phase != s.To {
			t.Errorf("signal %d result phase %s != %s", i, s.Result.Phase, s.To)
		}
	}

	// Accumulation is outside the default notify set.
	if len(n.sent) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(n.sent))
	}
	if n.sent[0].To != models.PhaseRapidAscent || n.sent[1].To != models.PhasePlateau {
		t.Errorf("Unexpected notifications: %s, %s", n.sent[0].To, n.sent[1].To)
	}
	if signals[0].Notified || !signals[1].Notified || !signals[2].Notified {
		t.Errorf("Unexpected notified flags: %v %v %v", signals[0].Notified, signals[1].Notified, signals[2].Notified)
	}
}

func TestProcess_Cooldown(t *testing.T) {
	tests := []struct {
		name     string
		cooldown int
		wantSent int
	}{
		{"re-entry suppressed", 10, 2},
		{"no cooldown", 0, 3},
		{"cooldown elapsed", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CooldownSamples = tt.cooldown
			n := &fakeNotifier{}
			m := newStartedMonitor(t, cfg, Options{Notifier: n})

			// ... RAPID_ASCENT @3, PLATEAU @5, RAPID_ASCENT @6
			signals := feed(t, m, 1, 1, 1, 4, 4, 4, 5)
			if len(signals) != 4 {
				t.Fatalf("Expected 4 signals, got %d", len(signals))
			}
			if len(n.sent) != tt.wantSent {
				t.Errorf("Expected %d notifications, got %d", tt.wantSent, len(n.sent))
			}
		})
	}
}

func TestProcess_NotifierFailureDoesNotFailSample(t *testing.T) {
	n := &fakeNotifier{err: errors.New("telegram unavailable")}
	m := newStartedMonitor(t, DefaultConfig(), Options{Notifier: n})

	signals := feed(t, m, 1, 1, 1, 4)
	if len(signals) != 2 {
		t.Fatalf("Expected 2 signals, got %d", len(signals))
	}
	if signals[1].Notified {
		t.Error("Signal should not be marked notified after a failed send")
	}

	// A failed send does not start the cooldown.
	n.err = nil
	feed(t, m, 4, 4, 5)
	if len(n.sent) != 2 {
		t.Errorf("Expected 2 notifications after recovery, got %d", len(n.sent))
	}
}

func TestProcess_RejectsInvalidReading(t *testing.T) {
	reg := prometheus.NewRegistry()
	mx, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	m := newStartedMonitor(t, DefaultConfig(), Options{Metrics: mx})

	feed(t, m, 1, 1)
	for _, rd := range []models.Reading{{Z: math.NaN()}, {Z: math.Inf(1)}, {Z: 1, Price: -1}} {
		if _, sig, err := m.Process(rd); err == nil || sig != nil {
			t.Errorf("Expected rejection for %+v", rd)
		}
	}
	if m.Samples() != 2 {
		t.Errorf("Rejected readings changed sample count: %d", m.Samples())
	}

	m.Reject(errors.New("malformed feed row: row 9"))
	if m.Rejected() != 4 {
		t.Errorf("Expected 4 rejected readings, got %d", m.Rejected())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
		}
	}
	if values["mvrvdca_rejected_samples_total"] != 4 {
		t.Errorf("Expected 4 rejected samples, got %v", values["mvrvdca_rejected_samples_total"])
	}
	if values["mvrvdca_samples_total"] != 2 {
		t.Errorf("Expected 2 samples, got %v", values["mvrvdca_samples_total"])
	}
}

func TestProcess_RequiresStart(t *testing.T) {
	m := New(newTestAnalyzer(t), DefaultConfig(), Options{})
	if _, _, err := m.Process(models.Reading{Z: 1}); err == nil {
		t.Error("Expected error when processing before Start")
	}
}

func TestProcess_Journal(t *testing.T) {
	s, err := storage.New(10, ":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer s.Close()

	n := &fakeNotifier{}
	m := New(newTestAnalyzer(t), DefaultConfig(), Options{Storage: s, Notifier: n})
	run, err := m.Start("journal.csv")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	feed(t, m, 1, 1, 1, 4, 4, 4)

	results, err := s.Results(run.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("Expected 6 journaled results, got %d", len(results))
	}
	if results[5].Result.Phase != models.PhasePlateau {
		t.Errorf("Last journaled phase = %s, want PLATEAU", results[5].Result.Phase)
	}

	signals, err := s.Signals(run.ID)
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("Expected 3 journaled signals, got %d", len(signals))
	}
	notified := 0
	for _, sig := range signals {
		if sig.Notified {
			notified++
		}
	}
	if notified != 2 {
		t.Errorf("Expected 2 signals marked notified, got %d", notified)
	}

	m.Shutdown()
}

func TestStatus(t *testing.T) {
	m := New(newTestAnalyzer(t), DefaultConfig(), Options{})
	if got := m.Status(); !strings.Contains(got, "No samples") {
		t.Errorf("Unexpected status before start: %q", got)
	}

	run, err := m.Start("status")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.ID == "" {
		t.Error("Expected run ID without storage")
	}

	feed(t, m, 4, 4, 4)
	got := m.Status()
	for _, want := range []string{"PLATEAU", "smoothed Z 4.00", "samples 3", "signals 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("Status %q missing %q", got, want)
		}
	}

	rd, res, ok := m.Last()
	if !ok || rd.Z != 4 || res.Phase != models.PhasePlateau {
		t.Errorf("Unexpected Last(): %+v %+v %v", rd, res, ok)
	}
}
