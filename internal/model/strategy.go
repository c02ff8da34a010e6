package model

import (
	"encoding/json"
	"fmt"
)

// FanOutMode selects how the research executor iterates the plan.
type FanOutMode string

const (
	FanOutNone FanOutMode = "none"
	FanOutTask FanOutMode = "task"
	FanOutVar  FanOutMode = "var"
)

// FanOut describes the research phase's iteration strategy.
type FanOut struct {
	Mode  FanOutMode `yaml:"mode" json:"mode"`
	Var   string     `yaml:"var,omitempty" json:"var,omitempty"`
	MapTo string     `yaml:"map_to,omitempty" json:"map_to,omitempty"`
	Limit int        `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// RequiredVariable is a variable the scope classifier must populate for a
// strategy to be eligible.
type RequiredVariable struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// RenderSpec describes the expected output shape of Finalize.
type RenderSpec struct {
	Sections     []string `yaml:"sections,omitempty" json:"sections,omitempty"`
	CitationStyle string  `yaml:"citation_style,omitempty" json:"citation_style,omitempty"`
}

// FinalizeSpec configures the Finalize phase.
type FinalizeSpec struct {
	Reactive      bool   `yaml:"reactive" json:"reactive"`
	Instructions  string `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// LLMPhaseOverride overrides model parameters for one phase.
type LLMPhaseOverride struct {
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// LLMOverrides maps phase name ("scope", "fill", "research", "finalize",
// "qc") to a per-phase model override.
type LLMOverrides map[string]LLMPhaseOverride

// Limits bounds a strategy's tool chain and evidence budget.
type Limits struct {
	MaxResults    int `yaml:"max_results,omitempty" json:"max_results,omitempty"`
	MaxLLMQueries int `yaml:"max_llm_queries,omitempty" json:"max_llm_queries,omitempty"`
	MinCitations  int `yaml:"min_citations,omitempty" json:"min_citations,omitempty"`
}

// StepKind discriminates the ToolStep tagged union.
type StepKind string

const (
	StepLegacy   StepKind = "legacy"
	StepExtended StepKind = "extended"
)

// ToolStep is one entry of a strategy's tool_chain. Exactly one of the
// legacy (Name/Params) or extended (Use/Inputs) field groups is populated,
// selected by Kind.
type ToolStep struct {
	Kind StepKind

	// Legacy form.
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// Extended form.
	Use     string         `yaml:"use,omitempty" json:"use,omitempty"`
	Inputs  map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	LLMFill []string       `yaml:"llm_fill,omitempty" json:"llm_fill,omitempty"`
	Foreach string         `yaml:"foreach,omitempty" json:"foreach,omitempty"`
	When    string         `yaml:"when,omitempty" json:"when,omitempty"`
	SaveAs  string         `yaml:"save_as,omitempty" json:"save_as,omitempty"`

	// Shared, both forms.
	Phase       string `yaml:"phase,omitempty" json:"phase,omitempty"`
	MaxTokens   int    `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// stepRaw mirrors ToolStep's field set for generic (un)marshaling without
// recursing back into ToolStep's custom hooks.
type stepRaw struct {
	Name        string         `yaml:"name,omitempty" json:"name,omitempty"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Use         string         `yaml:"use,omitempty" json:"use,omitempty"`
	Inputs      map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	LLMFill     []string       `yaml:"llm_fill,omitempty" json:"llm_fill,omitempty"`
	Foreach     string         `yaml:"foreach,omitempty" json:"foreach,omitempty"`
	When        string         `yaml:"when,omitempty" json:"when,omitempty"`
	SaveAs      string         `yaml:"save_as,omitempty" json:"save_as,omitempty"`
	Phase       string         `yaml:"phase,omitempty" json:"phase,omitempty"`
	MaxTokens   int            `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
}

// UnmarshalYAML decodes either step form and sets Kind from which fields
// were present, per the tagged-union representation §9 of the design notes
// calls for (avoid untyped containers at the consumer boundary).
func (s *ToolStep) UnmarshalYAML(unmarshal func(any) error) error {
	var raw stepRaw
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return s.fromRaw(raw)
}

func (s *ToolStep) fromRaw(raw stepRaw) error {
	*s = ToolStep{
		Name:        raw.Name,
		Params:      raw.Params,
		Use:         raw.Use,
		Inputs:      raw.Inputs,
		LLMFill:     raw.LLMFill,
		Foreach:     raw.Foreach,
		When:        raw.When,
		SaveAs:      raw.SaveAs,
		Phase:       raw.Phase,
		MaxTokens:   raw.MaxTokens,
		Description: raw.Description,
	}

	switch {
	case raw.Name != "":
		s.Kind = StepLegacy
	case raw.Use != "":
		s.Kind = StepExtended
	default:
		return fmt.Errorf("tool_chain step has neither name nor use")
	}
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for strategies round-tripped through
// the persisted JSONB column.
func (s *ToolStep) UnmarshalJSON(data []byte) error {
	var raw stepRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.fromRaw(raw)
}

// StrategyMeta identifies and classifies a strategy.
type StrategyMeta struct {
	Slug       string     `yaml:"slug" json:"slug"`
	Version    int        `yaml:"version" json:"version"`
	Category   string     `yaml:"category" json:"category"`
	TimeWindow TimeWindow `yaml:"time_window" json:"time_window"`
	Depth      Depth      `yaml:"depth" json:"depth"`
	Priority   int        `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Strategy is the declarative blueprint for one class of request.
type Strategy struct {
	Meta              StrategyMeta       `yaml:"meta" json:"meta"`
	Queries           map[string]string  `yaml:"queries,omitempty" json:"queries,omitempty"`
	ToolChain         []ToolStep         `yaml:"tool_chain" json:"tool_chain"`
	Limits            Limits             `yaml:"limits,omitempty" json:"limits,omitempty"`
	FanOut            FanOut             `yaml:"fan_out" json:"fan_out"`
	RequiredVariables []RequiredVariable `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	Render            RenderSpec         `yaml:"render,omitempty" json:"render,omitempty"`
	Finalize          *FinalizeSpec      `yaml:"finalize,omitempty" json:"finalize,omitempty"`
	LLM               LLMOverrides       `yaml:"llm,omitempty" json:"llm,omitempty"`
	Description       string             `yaml:"description,omitempty" json:"description,omitempty"`
	IsActive          bool               `yaml:"-" json:"is_active"`
}

// StrategyIndexKey is the lookup key derived from classifier output.
type StrategyIndexKey struct {
	Category   string
	TimeWindow TimeWindow
	Depth      Depth
}
