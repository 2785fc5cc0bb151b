package models

import (
	"fmt"
	"time"
)

// StatusKind is the kind of a watcher status event.
type StatusKind string

const (
	StatusStarting StatusKind = "starting"
	StatusFetching StatusKind = "fetching"
	StatusSuccess  StatusKind = "success"
	StatusNoChange StatusKind = "no_change"
	StatusWarning  StatusKind = "warning"
	StatusBackoff  StatusKind = "backoff"
	StatusFatal    StatusKind = "fatal"
	StatusStopped  StatusKind = "stopped"
)

// StatusEvent is one entry of the watcher status stream.
type StatusEvent struct {
	Kind       StatusKind    `json:"kind"`
	Time       time.Time     `json:"time"`
	URL        string        `json:"url,omitempty"`
	ErrorCount int           `json:"error_count,omitempty"`
	Message    string        `json:"message,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
}

// Text renders the event the way the status line shows it.
func (e StatusEvent) Text() string {
	switch e.Kind {
	case StatusStarting:
		return "Starting the scraper..."
	case StatusFetching:
		return fmt.Sprintf("Fetching data from %s...", e.URL)
	case StatusSuccess:
		return fmt.Sprintf("Data updated at %s", e.Time.Format("15:04:05"))
	case StatusNoChange:
		return fmt.Sprintf("No changes detected at %s", e.Time.Format("15:04:05"))
	case StatusWarning:
		return fmt.Sprintf("Scrape error (%d): %s", e.ErrorCount, e.Message)
	case StatusBackoff:
		return fmt.Sprintf("Too many errors, waiting %s before retry...", e.Wait)
	case StatusFatal:
		return fmt.Sprintf("Fatal error: %s", e.Message)
	case StatusStopped:
		return "Scraper stopped"
	default:
		return string(e.Kind)
	}
}
