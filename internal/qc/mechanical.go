// Package qc validates a synthesized report: mechanical structural checks
// always run; an optional LLM grounding check adds advisory warnings. QC
// never rejects a result — every outcome is annotated onto state.warnings.
package qc

import (
	"fmt"
	"strings"
	"time"

	"scoutline.dev/orchestrator/internal/evidence"
	"scoutline.dev/orchestrator/internal/model"
)

// MechanicalChecks runs the always-on structural validations and returns the
// warnings to append to state.Warnings. It never returns an error: every
// finding is advisory.
func MechanicalChecks(strategy model.Strategy, write model.WriteState, now time.Time) []string {
	var warnings []string

	warnings = append(warnings, checkRequiredSections(strategy, write)...)
	warnings = append(warnings, checkMinCitations(strategy, write)...)
	warnings = append(warnings, checkCitationDates(strategy, write, now)...)
	warnings = append(warnings, checkDuplicateFingerprints(write)...)

	return warnings
}

func checkRequiredSections(strategy model.Strategy, write model.WriteState) []string {
	if len(strategy.Render.Sections) == 0 {
		return nil
	}

	present := make(map[string]bool, len(write.Sections))
	for _, section := range write.Sections {
		present[strings.ToLower(heading(section))] = true
	}

	var warnings []string
	for _, required := range strategy.Render.Sections {
		if !present[strings.ToLower(required)] {
			warnings = append(warnings, fmt.Sprintf("missing required section %q", required))
		}
	}
	return warnings
}

func heading(section string) string {
	line, _, _ := strings.Cut(section, "\n")
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "## "))
}

func checkMinCitations(strategy model.Strategy, write model.WriteState) []string {
	if strategy.Limits.MinCitations <= 0 {
		return nil
	}

	count := 0
	for _, c := range write.Citations {
		if isNonSentinelCitation(c) {
			count++
		}
	}
	if count < strategy.Limits.MinCitations {
		return []string{fmt.Sprintf("only %d non-sentinel citations, strategy requires at least %d", count, strategy.Limits.MinCitations)}
	}
	return nil
}

func isNonSentinelCitation(citation string) bool {
	_, url, ok := strings.Cut(citation, "): ")
	return ok && strings.Contains(url, "://")
}

func checkCitationDates(strategy model.Strategy, write model.WriteState, now time.Time) []string {
	span := evidence.WindowDuration(strategy.Meta.TimeWindow)
	cutoff := now.Add(-span)

	var warnings []string
	for _, c := range write.Citations {
		date, ok := citationDate(c)
		if !ok {
			continue
		}
		if date.Before(cutoff) || date.After(now) {
			warnings = append(warnings, fmt.Sprintf("citation date %s outside time_window %s: %s", date.Format("2006-01-02"), strategy.Meta.TimeWindow, c))
		}
	}
	return warnings
}

func citationDate(citation string) (time.Time, bool) {
	open := strings.IndexByte(citation, '(')
	closeIdx := strings.IndexByte(citation, ')')
	if open < 0 || closeIdx < 0 || closeIdx <= open {
		return time.Time{}, false
	}
	raw := citation[open+1 : closeIdx]
	if raw == "n.d." {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func checkDuplicateFingerprints(write model.WriteState) []string {
	seen := make(map[string]bool, len(write.Sections))
	var warnings []string
	for _, section := range write.Sections {
		fp := fingerprintPrefix(section)
		if seen[fp] {
			warnings = append(warnings, "defensive: duplicate section fingerprint survived finalize dedupe")
			continue
		}
		seen[fp] = true
	}
	return warnings
}

func fingerprintPrefix(section string) string {
	if len(section) > 200 {
		return section[:200]
	}
	return section
}
