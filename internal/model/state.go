package model

// TimeWindow is the recency scope of a request.
type TimeWindow string

const (
	TimeWindowDay   TimeWindow = "day"
	TimeWindowWeek  TimeWindow = "week"
	TimeWindowMonth TimeWindow = "month"
	TimeWindowYear  TimeWindow = "year"
)

// Depth is the thoroughness scope of a request.
type Depth string

const (
	DepthBrief         Depth = "brief"
	DepthOverview      Depth = "overview"
	DepthDeep          Depth = "deep"
	DepthComprehensive Depth = "comprehensive"
)

// ScopeState is produced by the scope classifier and carried unchanged
// through the remaining phases.
type ScopeState struct {
	UserRequest  string     `json:"user_request"`
	Category     string     `json:"category"`
	TimeWindow   TimeWindow `json:"time_window"`
	Depth        Depth      `json:"depth"`
	StrategySlug string     `json:"strategy_slug"`
}

// ResearchState accumulates across the research phase. Tasks and Queries are
// set once by Scope/Fill; Evidence is append-only.
type ResearchState struct {
	Tasks    []string          `json:"tasks"`
	Queries  map[string]string `json:"queries"`
	Evidence []Evidence        `json:"evidence"`
}

// WriteState accumulates the output of Finalize and QC.
type WriteState struct {
	Sections    []string       `json:"sections"`
	Citations   []string       `json:"citations"`
	Limitations []string       `json:"limitations"`
	Errors      []string       `json:"errors"`
	Warnings    []string       `json:"warnings"`
	Vars        map[string]any `json:"vars"`
}

// State is the full typed state threaded through the phase machine. Only the
// executor mutates it, and only between phases; sequence fields are
// append-only across phase transitions.
type State struct {
	ThreadID string `json:"thread_id"`

	Scope    ScopeState    `json:"scope"`
	Research ResearchState `json:"research"`
	Write    WriteState    `json:"write"`
}

// NewState seeds an empty State for a fresh workflow invocation.
func NewState(threadID, userRequest string) State {
	return State{
		ThreadID: threadID,
		Scope:    ScopeState{UserRequest: userRequest},
		Research: ResearchState{
			Queries: map[string]string{},
		},
		Write: WriteState{
			Vars: map[string]any{},
		},
	}
}

// Snapshot returns a deep-enough copy of State for checkpointing: sequence
// and map fields are copied so later in-place mutation of the live State
// cannot retroactively corrupt a stored checkpoint.
func (s State) Snapshot() State {
	cp := s

	cp.Research.Tasks = append([]string(nil), s.Research.Tasks...)
	cp.Research.Queries = copyStringMap(s.Research.Queries)
	cp.Research.Evidence = append([]Evidence(nil), s.Research.Evidence...)

	cp.Write.Sections = append([]string(nil), s.Write.Sections...)
	cp.Write.Citations = append([]string(nil), s.Write.Citations...)
	cp.Write.Limitations = append([]string(nil), s.Write.Limitations...)
	cp.Write.Errors = append([]string(nil), s.Write.Errors...)
	cp.Write.Warnings = append([]string(nil), s.Write.Warnings...)
	cp.Write.Vars = copyAnyMap(s.Write.Vars)

	return cp
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
