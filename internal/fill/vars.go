// Package fill computes the time-window variables and materializes the
// runtime_plan from a strategy's declarative tool_chain.
package fill

import (
	"time"

	"scoutline.dev/orchestrator/internal/model"
)

// TimeWindowVars computes the wall-clock-derived variables every strategy
// can reference in its templates: current_date, start_date, end_date, and
// the search_recency_filter passed straight through to providers that accept
// it (Sonar/Exa both use the same vocabulary: day/week/month/year).
func TimeWindowVars(window model.TimeWindow, now time.Time) map[string]string {
	vars := map[string]string{
		"current_date":          now.Format("2006-01-02"),
		"search_recency_filter": string(window),
	}

	var span time.Duration
	switch window {
	case model.TimeWindowDay:
		span = 24 * time.Hour
	case model.TimeWindowWeek:
		span = 7 * 24 * time.Hour
	case model.TimeWindowMonth:
		span = 30 * 24 * time.Hour
	case model.TimeWindowYear:
		span = 365 * 24 * time.Hour
	default:
		span = 7 * 24 * time.Hour
	}

	vars["start_date"] = now.Add(-span).Format("2006-01-02")
	vars["end_date"] = vars["current_date"]

	return vars
}
