package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// componentState is one subsystem's last reported condition.
type componentState struct {
	healthy    bool
	detail     string
	reportedAt time.Time
	staleAfter time.Duration // 0 means reports never go stale
}

// statusBoard tracks the condition of the daemon's subsystems for the
// health and readiness endpoints. Background loops report in as they
// run; a subsystem with a staleness bound counts as unhealthy once it
// stops reporting.
type statusBoard struct {
	mu         sync.RWMutex
	version    string
	startedAt  time.Time
	components map[string]*componentState
}

var board = newStatusBoard()

func newStatusBoard() *statusBoard {
	return &statusBoard{
		startedAt:  time.Now(),
		components: make(map[string]*componentState),
	}
}

// SetVersion records the version string returned by the endpoints.
func SetVersion(version string) {
	board.mu.Lock()
	board.version = version
	board.mu.Unlock()
}

// TrackComponent registers a subsystem on the status board. It is not
// ready until its first healthy report. staleAfter bounds how long a
// report stays trusted; 0 disables the staleness check.
func TrackComponent(name string, staleAfter time.Duration) {
	board.mu.Lock()
	board.components[name] = &componentState{staleAfter: staleAfter}
	board.mu.Unlock()
}

// ReportHealthy marks a tracked subsystem healthy. Reports for
// untracked names are dropped, so packages can report unconditionally.
func ReportHealthy(name string) {
	report(name, true, "")
}

// ReportUnhealthy marks a tracked subsystem unhealthy with a reason.
func ReportUnhealthy(name string, detail string) {
	report(name, false, detail)
}

func report(name string, healthy bool, detail string) {
	board.mu.Lock()
	if c, ok := board.components[name]; ok {
		c.healthy = healthy
		c.detail = detail
		c.reportedAt = time.Now()
	}
	board.mu.Unlock()
}

// ComponentReport is the per-subsystem entry in endpoint responses.
type ComponentReport struct {
	State  string `json:"state"` // "healthy", "unhealthy", "stale", "starting"
	Detail string `json:"detail,omitempty"`
}

// StatusReport is the body served by the health and readiness
// endpoints.
type StatusReport struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	UptimeSecs int64                      `json:"uptime_secs"`
	Components map[string]ComponentReport `json:"components"`
}

func (c *componentState) stateAt(now time.Time) ComponentReport {
	switch {
	case c.reportedAt.IsZero():
		return ComponentReport{State: "starting"}
	case !c.healthy:
		return ComponentReport{State: "unhealthy", Detail: c.detail}
	case c.staleAfter > 0 && now.Sub(c.reportedAt) > c.staleAfter:
		return ComponentReport{State: "stale"}
	default:
		return ComponentReport{State: "healthy"}
	}
}

// healthAt reports unhealthy when any subsystem has reported a
// failure or stopped reporting. Subsystems still starting do not
// fail the health check; readiness covers those.
func (b *statusBoard) healthAt(now time.Time) StatusReport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := StatusReport{
		Status:     "healthy",
		Version:    b.version,
		UptimeSecs: int64(now.Sub(b.startedAt).Seconds()),
		Components: make(map[string]ComponentReport, len(b.components)),
	}
	for name, c := range b.components {
		r := c.stateAt(now)
		out.Components[name] = r
		if r.State == "unhealthy" || r.State == "stale" {
			out.Status = "unhealthy"
		}
	}
	return out
}

// readinessAt reports ready only when every tracked subsystem has
// reported in and is currently healthy.
func (b *statusBoard) readinessAt(now time.Time) StatusReport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := StatusReport{
		Status:     "ready",
		Version:    b.version,
		UptimeSecs: int64(now.Sub(b.startedAt).Seconds()),
		Components: make(map[string]ComponentReport, len(b.components)),
	}
	for name, c := range b.components {
		r := c.stateAt(now)
		out.Components[name] = r
		if r.State != "healthy" {
			out.Status = "not_ready"
		}
	}
	return out
}

// GetHealth returns the current overall health.
func GetHealth() StatusReport {
	return board.healthAt(time.Now())
}

// GetReadiness returns the current readiness.
func GetReadiness() StatusReport {
	return board.readinessAt(time.Now())
}

// HealthHandler serves the /health endpoint: 503 once any subsystem
// reports a failure or goes stale.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, GetHealth(), "healthy")
	}
}

// ReadyHandler serves the /ready endpoint: 503 until every subsystem
// has reported healthy.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, GetReadiness(), "ready")
	}
}

func writeStatus(w http.ResponseWriter, report StatusReport, okStatus string) {
	w.Header().Set("Content-Type", "application/json")
	if report.Status != okStatus {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler serves the /live endpoint: 200 whenever the process
// is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(board.startedAt).String(),
		})
	}
}
