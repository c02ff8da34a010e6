package research

// legacyDispatch maps a tool_chain step's legacy `name:` to the
// "<provider>.<method>" string the adapter registry understands. Strategies
// authored before the extended `use:`/`inputs:` form still resolve through
// this table so older YAML keeps working unchanged.
var legacyDispatch = map[string]string{
	"sonar_overview":        "sonar.overview",
	"sonar_search":          "sonar.search",
	"sonar_answer":          "sonar.answer",
	"exa_search_semantic":   "exa.search",
	"exa_search_contents":   "exa.contents",
	"exa_answer":            "exa.answer",
	"llm_analyze":           "llm_analyzer.call",
	"typesense_search":      "typesense.search",
	"typesense_find_similar": "typesense.find_similar",
}
