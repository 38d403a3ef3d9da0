package health

import (
	"encoding/json"
	"net/http"
)

// Handler returns an http.Handler serving r's current health as JSON,
// responding 200 when healthy and 503 when not.
func Handler(r Reporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		result := Check(req.Context(), r)

		w.Header().Set("Content-Type", "application/json")
		if !result.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
}
