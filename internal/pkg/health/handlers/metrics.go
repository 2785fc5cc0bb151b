package handlers

import (
	"net/http"

	"github.com/Vodeneev/livewatch/internal/pkg/performance"
)

// Metrics serves the tracker's counters as JSON.
func Metrics(tracker *performance.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tracker.GetMetrics())
	}
}
