package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Ticks older than this mark the feed as stale
const tickStaleness = 2 * time.Minute

type HealthChecker struct {
	mu        sync.RWMutex
	startTime time.Time
	lastTick  time.Time
	lastMark  float64
	connected bool
	degraded  bool
	errors    []string
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastTick  time.Time `json:"last_tick"`
	LastMark  float64   `json:"last_mark"`
	Connected bool      `json:"connected"`
	Degraded  bool      `json:"degraded"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		errors:    make([]string, 0),
	}
}

// RecordTick notes that fresh market data arrived
func (h *HealthChecker) RecordTick(mark float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = time.Now()
	h.lastMark = mark
	h.connected = true
}

// SetConnected updates the feed connectivity flag
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = connected
}

// SetDegraded updates the degraded flag
func (h *HealthChecker) SetDegraded(degraded bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.degraded = degraded
}

// AddError appends to the reported error list
func (h *HealthChecker) AddError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.connected || h.degraded ||
		(!h.lastTick.IsZero() && time.Since(h.lastTick) > tickStaleness) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	health := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastTick:  h.lastTick,
		LastMark:  h.lastMark,
		Connected: h.connected,
		Degraded:  h.degraded,
		Uptime:    time.Since(h.startTime).String(),
		Errors:    h.errors,
	}

	json.NewEncoder(w).Encode(health)
}
