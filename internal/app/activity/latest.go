// internal/app/activity/latest.go
package activity

import "sync"

// LatestReport holds the most recent batch report for the status API.
// Safe for concurrent use by the tailer, HTTP handlers, and health checks.
type LatestReport struct {
	mu     sync.RWMutex
	report Report
	set    bool
}

// Set records a new report.
func (l *LatestReport) Set(r Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.report = r
	l.set = true
}

// Get returns the most recent report, and false if none has been recorded.
func (l *LatestReport) Get() (Report, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.report, l.set
}
