package model

import (
	"encoding/json"
	"time"
)

// SentinelTool names identify Evidence produced without a retrievable URL —
// a direct LLM answer rather than a web source. Sentinel evidence is excluded
// from diversity counts but may still be cited.
const (
	ToolLLMAnalysisResult = "llm_analysis_result"
	ToolExaAnswer         = "exa_answer"
	ToolSonarAnswer       = "sonar_answer"
)

// IsSentinelTool reports whether tool names evidence exempt from the
// non-empty-URL invariant.
func IsSentinelTool(tool string) bool {
	return tool == ToolLLMAnalysisResult || tool == ToolExaAnswer || tool == ToolSonarAnswer
}

// Evidence is a normalized record of a retrieved source. It is a closed
// struct by design: adapters stash provider-specific payloads in Raw rather
// than widening the type.
type Evidence struct {
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Snippet     string          `json:"snippet"`
	Publisher   string          `json:"publisher"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Tool        string          `json:"tool"`
	Score       float64         `json:"score"`
	Raw         json.RawMessage `json:"-"`
}

// Sentinel reports whether this record is exempt from the non-empty-URL
// invariant (a direct LLM answer rather than a web source).
func (e Evidence) Sentinel() bool {
	return IsSentinelTool(e.Tool)
}
