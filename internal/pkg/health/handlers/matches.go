package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// SnapshotSource exposes what the poll loop last published.
type SnapshotSource interface {
	Latest() (models.Batch, bool)
	Statuses() []models.StatusEvent
}

// Matches serves the latest batch grouped by league.
func Matches(src SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")

		batch, ok := src.Latest()
		leagues := models.GroupByLeague(batch.Records)
		if leagues == nil {
			leagues = []models.LeagueGroup{}
		}

		meta := map[string]interface{}{
			"count":    len(batch.Records),
			"leagues":  len(leagues),
			"duration": time.Since(startTime).String(),
		}
		if ok {
			meta["fingerprint"] = batch.Fingerprint
			meta["fetched_at"] = batch.FetchedAt
		}

		w.Header().Set("X-Matches-Count", fmt.Sprintf("%d", len(batch.Records)))
		w.Header().Set("X-Source", "memory")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"leagues": leagues,
			"changes": batch.Changes,
			"meta":    meta,
		})
	}
}

// Status serves recent status events, newest last, with their rendered text.
func Status(src SnapshotSource) http.HandlerFunc {
	type view struct {
		models.StatusEvent
		Text string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		events := src.Statuses()
		out := make([]view, 0, len(events))
		for _, e := range events {
			out = append(out, view{StatusEvent: e, Text: e.Text()})
		}

		resp := map[string]interface{}{"events": out}
		if len(out) > 0 {
			resp["current"] = out[len(out)-1]
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
