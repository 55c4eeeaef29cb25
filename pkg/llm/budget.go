package llm

import "sync"

// BudgetConfig bounds the fraction of documents allowed onto the paid
// fallback path. Target is the planning ceiling; Ceiling is the alert
// ceiling. The monitor only reports, it never blocks processing.
type BudgetConfig struct {
	Ceiling float64
	Target  float64
	Window  int
}

// BudgetStatus is a point-in-time snapshot of the monitor.
type BudgetStatus struct {
	Ratio       float64 `json:"ratio"`
	Ceiling     float64 `json:"ceiling"`
	Target      float64 `json:"target"`
	Alert       bool    `json:"alert"`
	AboveTarget bool    `json:"above_target"`
	Samples     int     `json:"samples"`
	Fallback    uint64  `json:"fallback_total"`
	Processed   uint64  `json:"processed_total"`
}

// BudgetMonitor tracks the rolling fraction of processed documents that
// took the fallback path. Safe for concurrent use.
type BudgetMonitor struct {
	mu      sync.Mutex
	config  BudgetConfig
	samples []bool
	next    int
	filled  int

	fallbackTotal  uint64
	processedTotal uint64
}

func NewBudgetMonitor(config BudgetConfig) *BudgetMonitor {
	if config.Ceiling == 0 {
		config.Ceiling = 0.15
	}
	if config.Target == 0 {
		config.Target = 0.10
	}
	if config.Window == 0 {
		config.Window = 500
	}

	return &BudgetMonitor{
		config:  config,
		samples: make([]bool, config.Window),
	}
}

// Record registers one processed document and whether it took the
// fallback path.
func (m *BudgetMonitor) Record(tookFallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[m.next] = tookFallback
	m.next = (m.next + 1) % len(m.samples)
	if m.filled < len(m.samples) {
		m.filled++
	}

	m.processedTotal++
	if tookFallback {
		m.fallbackTotal++
	}
}

// Ratio returns the fallback fraction over the rolling window.
func (m *BudgetMonitor) Ratio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ratioLocked()
}

func (m *BudgetMonitor) ratioLocked() float64 {
	if m.filled == 0 {
		return 0
	}
	count := 0
	for i := 0; i < m.filled; i++ {
		if m.samples[i] {
			count++
		}
	}
	return float64(count) / float64(m.filled)
}

// Status returns the current snapshot, including whether the ratio has
// crossed the alert ceiling or the planning target.
func (m *BudgetMonitor) Status() BudgetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	ratio := m.ratioLocked()
	return BudgetStatus{
		Ratio:       ratio,
		Ceiling:     m.config.Ceiling,
		Target:      m.config.Target,
		Alert:       ratio > m.config.Ceiling,
		AboveTarget: ratio > m.config.Target,
		Samples:     m.filled,
		Fallback:    m.fallbackTotal,
		Processed:   m.processedTotal,
	}
}
