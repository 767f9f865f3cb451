package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/procat/backend/internal/httpapi"
)

type dependencyStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Breaker string `json:"breaker"`
}

// DependenciesHandler probes every configured upstream's /health endpoint and
// reports it alongside the breaker state.
func (p *Proxy) DependenciesHandler() http.HandlerFunc {
	probe := &http.Client{Timeout: 2 * time.Second}
	return func(w http.ResponseWriter, r *http.Request) {
		states := p.BreakerStates()

		var wg sync.WaitGroup
		results := make([]dependencyStatus, len(p.config.Routes))
		for i, route := range p.config.Routes {
			wg.Add(1)
			go func(i int, route Route) {
				defer wg.Done()
				status := "healthy"
				resp, err := probe.Get(route.Upstream + "/health")
				if err != nil || resp.StatusCode != http.StatusOK {
					status = "unhealthy"
				}
				if resp != nil {
					resp.Body.Close()
				}
				breaker := states[route.Name]
				if breaker == "" {
					breaker = StateClosed.String()
				}
				results[i] = dependencyStatus{Name: route.Name, Status: status, Breaker: breaker}
			}(i, route)
		}
		wg.Wait()

		overall := "healthy"
		for _, dep := range results {
			if dep.Status != "healthy" {
				overall = "degraded"
				break
			}
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":       overall,
			"dependencies": results,
		})
	}
}
