package handler

import "net/http"

// Health handles GET /health — a liveness check for load balancers and
// container orchestrators. The queue manager has no failure mode that should
// take the process out of rotation, so reachability is the whole check.
//
// @Summary  Liveness check
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "up",
		"service": "hookpace",
	})
}
