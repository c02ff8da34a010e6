package finalize

import (
	"fmt"
	"strings"

	"scoutline.dev/orchestrator/internal/evidence"
	"scoutline.dev/orchestrator/internal/model"
)

// BuildCitations emits one citation per unique canonical URL referenced in
// sections, formatted "publication (date): url". Sentinel evidence (no URL)
// is included only when its snippet text appears to have been referenced.
func BuildCitations(sections []string, records []model.Evidence) []string {
	body := strings.Join(sections, "\n")

	seen := make(map[string]bool)
	var out []string

	for _, e := range records {
		if e.Sentinel() {
			if referencesSnippet(body, e.Snippet) {
				out = append(out, formatCitation(e))
			}
			continue
		}

		canon, err := evidence.CanonicalizeURL(e.URL)
		if err != nil {
			continue
		}
		if !strings.Contains(body, e.URL) && !strings.Contains(body, canon) {
			continue
		}
		if seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, formatCitation(e))
	}

	return out
}

func formatCitation(e model.Evidence) string {
	publisher := e.Publisher
	if publisher == "" {
		publisher = e.Title
	}
	if publisher == "" {
		publisher = "unknown"
	}

	date := "n.d."
	if e.PublishedAt != nil {
		date = e.PublishedAt.Format("2006-01-02")
	}

	return fmt.Sprintf("%s (%s): %s", publisher, date, e.URL)
}

func referencesSnippet(body, snippet string) bool {
	if snippet == "" {
		return false
	}
	probe := snippet
	if len(probe) > 40 {
		probe = probe[:40]
	}
	return strings.Contains(body, probe)
}
