package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/mvrvdca/internal/logger"
	"github.com/rewired-gh/mvrvdca/internal/metrics"
	"github.com/rewired-gh/mvrvdca/internal/models"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
	"github.com/rewired-gh/mvrvdca/internal/storage"
)

type Config struct {
	Advisory        bool
	NotifyPhases    []models.Phase
	CooldownSamples int
}

func DefaultConfig() Config {
	return Config{
		Advisory: true,
		NotifyPhases: []models.Phase{
			models.PhaseRapidAscent,
			models.PhasePlateau,
			models.PhaseDecline,
		},
		CooldownSamples: 7,
	}
}

// Notifier delivers phase-change signals.
type Notifier interface {
	Send(sig models.Signal) error
}

// Options carries the optional output consumers of a Monitor. Nil fields are skipped.
type Options struct {
	Storage  *storage.Storage
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Monitor drives one analyzer over a single series and turns phase changes into
// signals. Process must be called from one goroutine; Status may be called from any.
type Monitor struct {
	analyzer *momentum.Analyzer
	storage  *storage.Storage
	notifier Notifier
	metrics  *metrics.Metrics
	config   Config
	notify   map[models.Phase]bool

	// phase -> seq of the last delivered signal into it
	notified map[models.Phase]int

	mu          sync.RWMutex
	run         *models.Run
	seq         int
	lastPhase   models.Phase
	lastResult  models.AnalysisResult
	lastReading models.Reading
	signals     int
	rejected    int
}

func New(a *momentum.Analyzer, config Config, opts Options) *Monitor {
	notify := make(map[models.Phase]bool, len(config.NotifyPhases))
	for _, p := range config.NotifyPhases {
		notify[p] = true
	}
	return &Monitor{
		analyzer: a,
		storage:  opts.Storage,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		config:   config,
		notify:   notify,
		notified: make(map[models.Phase]int),
	}
}

// Start opens a run for source. It must be called before Process.
func (m *Monitor) Start(source string) (*models.Run, error) {
	cfg := m.analyzer.Config()
	run := &models.Run{
		Source:      source,
		EMAPeriod:   cfg.EMAPeriod,
		SlopePeriod: cfg.SlopePeriod,
		StartedAt:   time.Now(),
	}

	if m.storage != nil {
		if err := m.storage.StartRun(run); err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
	} else {
		run.ID = uuid.New().String()
	}

	m.mu.Lock()
	m.run = run
	m.mu.Unlock()

	logger.Info("Started run %s (source: %s, ema_period: %d, slope_period: %d)",
		run.ID, source, run.EMAPeriod, run.SlopePeriod)
	return run, nil
}

// Process feeds one reading through the analyzer. It returns the analysis and, when
// the phase differs from the previous sample's, the phase-change signal. Invalid
// readings are rejected without changing any state. Journal and notification
// failures are logged and do not fail the sample.
func (m *Monitor) Process(rd models.Reading) (models.AnalysisResult, *models.Signal, error) {
	m.mu.RLock()
	run := m.run
	m.mu.RUnlock()
	if run == nil {
		return models.AnalysisResult{}, nil, fmt.Errorf("monitor not started")
	}

	if err := rd.Validate(); err != nil {
		m.reject()
		return models.AnalysisResult{}, nil, err
	}
	res, err := m.analyzer.Update(rd.Z)
	if err != nil {
		m.reject()
		return models.AnalysisResult{}, nil, err
	}

	m.mu.Lock()
	seq := m.seq
	prev := m.lastPhase
	m.seq++
	m.lastPhase = res.Phase
	m.lastResult = res
	m.lastReading = rd
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Observe(res)
	}

	if m.storage != nil {
		rec := &models.ResultRecord{RunID: run.ID, Seq: seq, Reading: rd, Result: res}
		if err := m.storage.AddResult(rec); err != nil {
			logger.Warn("Failed to journal result %d: %v", seq, err)
		}
	}

	logger.Debug("Sample %d: z=%.4f smoothed=%.4f slope=%.5f phase=%s sell=%.4f",
		seq, rd.Z, res.SmoothedZ, res.Slope, res.Phase, res.SellPercentage)

	if prev == "" || prev == res.Phase {
		return res, nil, nil
	}

	sig := &models.Signal{
		RunID:      run.ID,
		From:       prev,
		To:         res.Phase,
		Seq:        seq,
		Reading:    rd,
		Result:     res,
		Advisory:   m.config.Advisory,
		DetectedAt: time.Now(),
	}
	m.handleSignal(sig)

	return res, sig, nil
}

// Reject counts a reading that failed before reaching the analyzer, such as a
// malformed feed row.
func (m *Monitor) Reject(err error) {
	logger.Warn("Rejected reading: %v", err)
	m.reject()
}

func (m *Monitor) reject() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ObserveRejected()
	}
}

func (m *Monitor) handleSignal(sig *models.Signal) {
	m.mu.Lock()
	m.signals++
	m.mu.Unlock()

	logger.Info("Phase change %s -> %s at sample %d (smoothed_z: %.2f, slope: %.4f, sell: %.2f%%, advisory: %v)",
		sig.From, sig.To, sig.Seq, sig.Result.SmoothedZ, sig.Result.Slope, sig.Result.SellPercentage*100, sig.Advisory)

	if m.metrics != nil {
		m.metrics.ObservePhaseChange(sig.From, sig.To)
	}

	if m.storage != nil {
		if err := m.storage.AddSignal(sig); err != nil {
			logger.Warn("Failed to journal signal %s -> %s: %v", sig.From, sig.To, err)
		}
	}

	if m.notifier == nil || !m.shouldNotify(sig) {
		return
	}
	if err := m.notifier.Send(*sig); err != nil {
		logger.Error("Failed to send phase change notification: %v", err)
		return
	}
	m.recordNotified(sig)
}

// shouldNotify applies the notify set and the per-phase cooldown.
func (m *Monitor) shouldNotify(sig *models.Signal) bool {
	if !m.notify[sig.To] {
		logger.Debug("Phase %s not in notify set, skipping notification", sig.To)
		return false
	}
	if last, ok := m.notified[sig.To]; ok && sig.Seq-last < m.config.CooldownSamples {
		logger.Debug("Phase %s notified %d samples ago, within cooldown of %d",
			sig.To, sig.Seq-last, m.config.CooldownSamples)
		return false
	}
	return true
}

func (m *Monitor) recordNotified(sig *models.Signal) {
	m.notified[sig.To] = sig.Seq
	sig.Notified = true
	if m.storage != nil && sig.ID != "" {
		if err := m.storage.MarkNotified(sig.ID); err != nil {
			logger.Warn("Failed to mark signal %s notified: %v", sig.ID, err)
		}
	}
}

// Status renders the latest analysis as a single line.
func (m *Monitor) Status() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.run == nil || m.seq == 0 {
		return "No samples processed yet"
	}
	r := m.lastResult
	return fmt.Sprintf("%s | smoothed Z %.2f | slope %.4f | sell %.2f%% | samples %d | signals %d",
		r.Phase, r.SmoothedZ, r.Slope, r.SellPercentage*100, m.seq, m.signals)
}

// Last returns the latest reading and its analysis, and false before the first sample.
func (m *Monitor) Last() (models.Reading, models.AnalysisResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReading, m.lastResult, m.seq > 0
}

// Rejected returns the number of readings refused so far.
func (m *Monitor) Rejected() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rejected
}

// Samples returns the number of accepted readings.
func (m *Monitor) Samples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// Shutdown logs the run summary and prunes the journal to its run cap.
func (m *Monitor) Shutdown() {
	m.mu.RLock()
	samples, signals, phase := m.seq, m.signals, m.lastPhase
	m.mu.RUnlock()

	logger.Info("Shutting down after %d samples, %d phase changes (last phase: %s)", samples, signals, phase)
	if m.storage != nil {
		if err := m.storage.RotateRuns(); err != nil {
			logger.Warn("Failed to rotate runs: %v", err)
		}
	}
}
