package handlers

import (
	"net/http"
	"sync"
)

// Stop cancels the poll loop. Only the first call has an effect.
func Stop(stop func()) http.HandlerFunc {
	var once sync.Once
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		stopped := false
		once.Do(func() {
			stop()
			stopped = true
		})

		if !stopped {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "already_stopped",
				"message": "Scraper is not running",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "stopped",
			"message": "Scraper stop requested",
		})
	}
}
