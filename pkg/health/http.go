package health

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// Response is the JSON body served by the probe handlers.
type Response struct {
	Status  string                 `json:"status"` // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus is one check's entry in Response.
type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Handler serves the checks of kind: 200 when healthy, 503 otherwise.
func (c *Checker) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := c.Run(r.Context(), kind)

		resp := Response{Status: "healthy", Checks: make(map[string]CheckStatus, len(status.Checks))}
		code := http.StatusOK
		if !status.Healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			if err != nil {
				resp.Message = err.Error()
			}
		}
		for _, res := range status.Checks {
			cs := CheckStatus{Status: "ok", Latency: res.Latency.String()}
			if !res.Healthy {
				cs.Status = "error"
				cs.Error = res.Error
			}
			resp.Checks[res.Name] = cs
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			c.log.Error("Failed to encode health response", logger.ErrorField(err))
		}
	}
}
