// Package evidence implements normalization, URL canonicalization,
// deduplication, scoring, and budget-trimming of research evidence.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"scoutline.dev/orchestrator/internal/model"
)

const maxSnippetLen = 500

// trackingParamPrefixes and trackingParamNames are stripped during
// canonicalization so that otherwise-identical URLs dedupe together.
var trackingParamPrefixes = []string{"utm_"}
var trackingParamNames = map[string]bool{
	"ref":    true,
	"fbclid": true,
	"gclid":  true,
}

// Normalize validates and trims a raw Evidence record: snippet is truncated
// to 500 chars, URL is canonicalized, and the non-empty-URL invariant is
// enforced for non-sentinel tools.
func Normalize(raw model.Evidence) (model.Evidence, error) {
	e := raw

	if e.Snippet != "" && len(e.Snippet) > maxSnippetLen {
		e.Snippet = e.Snippet[:maxSnippetLen]
	}

	if e.URL == "" {
		if !model.IsSentinelTool(e.Tool) {
			return model.Evidence{}, fmt.Errorf("evidence: empty url for non-sentinel tool %q", e.Tool)
		}
		return e, nil
	}

	canon, err := CanonicalizeURL(e.URL)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("evidence: canonicalize url: %w", err)
	}
	e.URL = canon

	return e, nil
}

// CanonicalizeURL lowercases scheme and host, strips default ports and the
// fragment, removes deny-listed tracking query parameters, and trims a
// trailing slash from the path unless the path is exactly "/".
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(stripDefaultPort(u.Scheme, u.Host))
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if trackingParamNames[lower] || hasTrackingPrefix(lower) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

func hasTrackingPrefix(key string) bool {
	for _, p := range trackingParamPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func stripDefaultPort(scheme, host string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

// DedupeKey returns the key Merge and Filter use to identify duplicate
// evidence: the canonical URL for ordinary records, or a content hash for
// sentinel records (which may legitimately share an empty URL while still
// being distinct answers).
func DedupeKey(e model.Evidence) string {
	if e.URL != "" {
		return e.URL
	}
	sum := sha256.Sum256([]byte(e.Tool + "\x00" + e.Snippet))
	return "sentinel:" + hex.EncodeToString(sum[:])
}

// Store accumulates Evidence across research iterations, deduplicating by
// DedupeKey as records are merged in.
type Store struct {
	order []string
	byKey map[string]model.Evidence
}

// NewStore creates an empty evidence accumulator.
func NewStore() *Store {
	return &Store{byKey: map[string]model.Evidence{}}
}

// Merge folds incoming records into the store. Dedupe keeps the first
// occurrence's metadata, but takes the maximum score and the longest
// non-empty snippet across duplicates — so arrival order never changes the
// final merged set (commutativity modulo the fixed sort in Filter).
func (s *Store) Merge(incoming []model.Evidence) {
	for _, e := range incoming {
		key := DedupeKey(e)
		existing, ok := s.byKey[key]
		if !ok {
			s.byKey[key] = e
			s.order = append(s.order, key)
			continue
		}

		merged := existing
		if e.Score > merged.Score {
			merged.Score = e.Score
		}
		if len(e.Snippet) > len(merged.Snippet) {
			merged.Snippet = e.Snippet
		}
		s.byKey[key] = merged
	}
}

// All returns the accumulated evidence in first-seen order.
func (s *Store) All() []model.Evidence {
	out := make([]model.Evidence, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byKey[key])
	}
	return out
}

// Len reports the number of distinct evidence records accumulated so far.
func (s *Store) Len() int {
	return len(s.order)
}

// ScoreWeights are the tunable coefficients of Score. Exact weights are not
// pinned by the design; callers should treat the defaults as a starting
// point and override per deployment (e.g. for A/B comparison).
type ScoreWeights struct {
	DomainAuthority float64
	Recency         float64
	SnippetBonus    float64
}

// DefaultScoreWeights is a reasonable starting point satisfying the
// monotonicity invariant: recency and domain-authority never make an
// on-list, more-recent source score below an off-list, less-recent one with
// an identical snippet.
var DefaultScoreWeights = ScoreWeights{
	DomainAuthority: 0.4,
	Recency:         0.4,
	SnippetBonus:    0.2,
}

// Score combines domain-authority, recency decay within the strategy's
// time_window, and a snippet-presence bonus.
func Score(e model.Evidence, window model.TimeWindow, domainAllowList map[string]bool, weights ScoreWeights, now time.Time) float64 {
	var score float64

	if domainAllowList[domainOf(e.URL)] {
		score += weights.DomainAuthority
	}

	score += weights.Recency * recencyDecay(e.PublishedAt, window, now)

	if e.Snippet != "" {
		score += weights.SnippetBonus
	}

	return score
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// recencyDecay returns 1.0 for a publish date at the front of the window,
// decaying linearly to 0 at the back edge; missing dates decay to 0 so they
// never outrank a dated record with an identical snippet.
func recencyDecay(publishedAt *time.Time, window model.TimeWindow, now time.Time) float64 {
	if publishedAt == nil {
		return 0
	}

	span := windowDuration(window)
	age := now.Sub(*publishedAt)
	if age <= 0 {
		return 1
	}
	if age >= span {
		return 0
	}
	return 1 - float64(age)/float64(span)
}

// WindowDuration returns the calendar span a TimeWindow represents, used by
// both scoring and downstream citation-date validation.
func WindowDuration(window model.TimeWindow) time.Duration {
	return windowDuration(window)
}

func windowDuration(window model.TimeWindow) time.Duration {
	switch window {
	case model.TimeWindowDay:
		return 24 * time.Hour
	case model.TimeWindowWeek:
		return 7 * 24 * time.Hour
	case model.TimeWindowMonth:
		return 30 * 24 * time.Hour
	case model.TimeWindowYear:
		return 365 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Filter sorts the store's accumulated evidence (score DESC, recency DESC
// with missing dates last, explicit sources before sentinel URLs — stable)
// and trims it to maxResults. maxResults <= 0 means unbounded.
func Filter(all []model.Evidence, maxResults int) []model.Evidence {
	out := append([]model.Evidence(nil), all...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if a.Score != b.Score {
			return a.Score > b.Score
		}

		if ad, bd := a.PublishedAt, b.PublishedAt; ad != nil || bd != nil {
			if ad == nil {
				return false
			}
			if bd == nil {
				return true
			}
			if !ad.Equal(*bd) {
				return ad.After(*bd)
			}
		}

		aSentinel, bSentinel := a.Sentinel(), b.Sentinel()
		if aSentinel != bSentinel {
			return !aSentinel
		}

		return false
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
