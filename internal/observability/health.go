package observability

import (
	"maps"
	"net/http"
	"sync"
)

// Health tracks the state of named components (database, redis, archive).
type Health struct {
	mu         sync.RWMutex
	components map[string]Component
}

type Component struct {
	Healthy bool
	// Status is a human-readable message for healthy and unhealthy states alike.
	Status string
}

type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func NewHealth() *Health {
	return &Health{components: map[string]Component{}}
}

func (h *Health) MarkHealthy(name, why string) { h.set(name, Component{Healthy: true, Status: why}) }

func (h *Health) MarkUnhealthy(name, why string) { h.set(name, Component{Healthy: false, Status: why}) }

func (h *Health) set(name string, c Component) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.components[name] = c
	h.mu.Unlock()
}

// Components returns a copy of the current state.
func (h *Health) Components() map[string]Component {
	if h == nil {
		return map[string]Component{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.components)
}

// Report renders the state for /healthz: 200 when every component is
// healthy, 503 otherwise.
func (h *Health) Report() (int, HealthReport) {
	out := HealthReport{Status: "healthy", Components: map[string]string{}}
	status := http.StatusOK
	for name, c := range h.Components() {
		state := "healthy"
		if !c.Healthy {
			state = "unhealthy"
			out.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		out.Components[name] = state + ": " + c.Status
	}
	return status, out
}
